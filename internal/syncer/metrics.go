package syncer

import (
	"encoding/json"
	"strings"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/n8n"
)

// Usage is the AI token consumption extracted from an execution payload
type Usage struct {
	TotalTokens  int64
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Provider     string
}

// Rough per-1k-token rates used when the payload carries no cost of its
// own. Indexed by detected provider; blended input/output averages.
var aiRatesPer1K = map[string]struct{ input, output float64 }{
	"openai":    {0.0025, 0.01},
	"anthropic": {0.003, 0.015},
	"google":    {0.00125, 0.005},
}

// ExtractUsage walks an execution's result payload looking for token
// usage objects emitted by AI nodes, sums them, and estimates cost.
// Returns nil when the payload contains no AI activity.
func ExtractUsage(data json.RawMessage, nodes []n8n.Node) *Usage {
	if len(data) == 0 {
		return nil
	}

	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	usage := &Usage{}
	collectTokenUsage(payload, usage, 0)
	if usage.TotalTokens == 0 && usage.InputTokens == 0 && usage.OutputTokens == 0 {
		return nil
	}

	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	usage.Provider = detectAIProvider(nodes)
	if rates, ok := aiRatesPer1K[usage.Provider]; ok {
		usage.Cost = float64(usage.InputTokens)/1000*rates.input + float64(usage.OutputTokens)/1000*rates.output
	}

	return usage
}

const maxUsageDepth = 20

// collectTokenUsage recursively scans the payload for tokenUsage-shaped
// objects. n8n nests these unpredictably under run data, so a bounded
// full walk is the only reliable approach.
func collectTokenUsage(value interface{}, usage *Usage, depth int) {
	if depth > maxUsageDepth {
		return
	}

	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			if strings.EqualFold(key, "tokenUsage") || strings.EqualFold(key, "tokenUsageEstimate") {
				addTokenUsage(child, usage)
				continue
			}
			collectTokenUsage(child, usage, depth+1)
		}
	case []interface{}:
		for _, child := range v {
			collectTokenUsage(child, usage, depth+1)
		}
	}
}

func addTokenUsage(value interface{}, usage *Usage) {
	entry, ok := value.(map[string]interface{})
	if !ok {
		return
	}

	usage.TotalTokens += intField(entry, "totalTokens", "total_tokens")
	usage.InputTokens += intField(entry, "promptTokens", "inputTokens", "input_tokens")
	usage.OutputTokens += intField(entry, "completionTokens", "outputTokens", "output_tokens")
}

func intField(entry map[string]interface{}, keys ...string) int64 {
	for _, key := range keys {
		if v, ok := entry[key].(float64); ok {
			return int64(v)
		}
	}
	return 0
}

// detectAIProvider guesses the AI vendor from node types in the
// workflow definition. Empty when nothing matches.
func detectAIProvider(nodes []n8n.Node) string {
	for _, node := range nodes {
		nodeType := strings.ToLower(node.Type)
		switch {
		case strings.Contains(nodeType, "openai"):
			return "openai"
		case strings.Contains(nodeType, "anthropic"), strings.Contains(nodeType, "claude"):
			return "anthropic"
		case strings.Contains(nodeType, "gemini"), strings.Contains(nodeType, "googleai"), strings.Contains(nodeType, "vertex"):
			return "google"
		}
	}
	return ""
}
