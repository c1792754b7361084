package syncer

import (
	"encoding/json"
	"testing"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/n8n"
)

func TestExtractUsageNestedTokenUsage(t *testing.T) {
	data := json.RawMessage(`{
		"resultData": {
			"runData": {
				"OpenAI Chat Model": [
					{
						"data": {
							"main": [[{"json": {"tokenUsage": {"promptTokens": 120, "completionTokens": 80, "totalTokens": 200}}}]]
						}
					}
				]
			}
		}
	}`)
	nodes := []n8n.Node{{Type: "@n8n/n8n-nodes-langchain.lmChatOpenAi"}}

	usage := ExtractUsage(data, nodes)
	if usage == nil {
		t.Fatal("Expected usage to be extracted")
	}

	if usage.TotalTokens != 200 || usage.InputTokens != 120 || usage.OutputTokens != 80 {
		t.Errorf("Unexpected token counts: %+v", usage)
	}
	if usage.Provider != "openai" {
		t.Errorf("Expected openai provider, got %q", usage.Provider)
	}
	if usage.Cost <= 0 {
		t.Errorf("Expected a positive cost estimate, got %f", usage.Cost)
	}
}

func TestExtractUsageSumsMultipleNodes(t *testing.T) {
	data := json.RawMessage(`{
		"runData": {
			"First": [{"tokenUsage": {"promptTokens": 100, "completionTokens": 50}}],
			"Second": [{"tokenUsage": {"promptTokens": 30, "completionTokens": 20}}]
		}
	}`)
	nodes := []n8n.Node{{Type: "n8n-nodes-base.anthropic"}}

	usage := ExtractUsage(data, nodes)
	if usage == nil {
		t.Fatal("Expected usage to be extracted")
	}

	if usage.InputTokens != 130 || usage.OutputTokens != 70 {
		t.Errorf("Expected summed tokens 130/70, got %d/%d", usage.InputTokens, usage.OutputTokens)
	}
	// totalTokens absent in the payload, derived from the parts
	if usage.TotalTokens != 200 {
		t.Errorf("Expected derived total 200, got %d", usage.TotalTokens)
	}
	if usage.Provider != "anthropic" {
		t.Errorf("Expected anthropic provider, got %q", usage.Provider)
	}
}

func TestExtractUsageNoAIActivity(t *testing.T) {
	data := json.RawMessage(`{"resultData": {"runData": {"HTTP Request": [{"data": {"main": [[{"json": {"ok": true}}]]}}]}}}`)

	if usage := ExtractUsage(data, nil); usage != nil {
		t.Errorf("Expected nil usage for non-AI payload, got %+v", usage)
	}
}

func TestExtractUsageEmptyAndMalformed(t *testing.T) {
	if usage := ExtractUsage(nil, nil); usage != nil {
		t.Errorf("Expected nil for empty payload, got %+v", usage)
	}
	if usage := ExtractUsage(json.RawMessage(`{broken`), nil); usage != nil {
		t.Errorf("Expected nil for malformed payload, got %+v", usage)
	}
}

func TestDetectAIProvider(t *testing.T) {
	tests := []struct {
		nodeType string
		want     string
	}{
		{"@n8n/n8n-nodes-langchain.lmChatOpenAi", "openai"},
		{"@n8n/n8n-nodes-langchain.lmChatAnthropic", "anthropic"},
		{"@n8n/n8n-nodes-langchain.lmChatGoogleGemini", "google"},
		{"n8n-nodes-base.httpRequest", ""},
	}

	for _, tt := range tests {
		nodes := []n8n.Node{{Type: tt.nodeType}}
		if got := detectAIProvider(nodes); got != tt.want {
			t.Errorf("detectAIProvider(%q) = %q, want %q", tt.nodeType, got, tt.want)
		}
	}
}
