package syncer

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/n8n"
)

// Schedule kinds
const (
	ScheduleKindCron     = "cron"
	ScheduleKindInterval = "interval"
	ScheduleKindUnknown  = "unknown"
)

// Schedule is one extracted trigger schedule from a workflow definition
type Schedule struct {
	Kind       string `json:"kind"`
	Expression string `json:"expression,omitempty"`
	EveryUnit  string `json:"every_unit,omitempty"`
	EveryCount int    `json:"every_count,omitempty"`
	Source     string `json:"source"` // node name it was extracted from
	Valid      bool   `json:"valid"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func validCronExpression(expr string) bool {
	if expr == "" {
		return false
	}
	// Remote expressions often carry a leading seconds field; try the
	// five-field form first, then strip the first field.
	if _, err := cronParser.Parse(expr); err == nil {
		return true
	}
	fields := strings.Fields(expr)
	if len(fields) == 6 {
		if _, err := cronParser.Parse(strings.Join(fields[1:], " ")); err == nil {
			return true
		}
	}
	return false
}

// InferTriggerMode classifies how an execution was triggered. Trigger
// node types in the workflow definition take priority over the remote
// mode string, which lumps every trigger under "trigger".
func InferTriggerMode(nodes []n8n.Node, remoteMode string) string {
	var hasCron, hasWebhook, hasManual bool

	for _, node := range nodes {
		if node.Disabled {
			continue
		}
		nodeType := strings.ToLower(node.Type)
		switch {
		case strings.Contains(nodeType, "errortrigger"):
			return "error"
		case strings.Contains(nodeType, "scheduletrigger"),
			strings.Contains(nodeType, "crontrigger"),
			strings.Contains(nodeType, ".cron"),
			strings.Contains(nodeType, "interval"):
			hasCron = true
		case strings.Contains(nodeType, "webhook"):
			hasWebhook = true
		case strings.Contains(nodeType, "manualtrigger"):
			hasManual = true
		}
	}

	switch strings.ToLower(remoteMode) {
	case "manual":
		return "manual"
	case "webhook":
		return "webhook"
	case "error":
		return "error"
	case "trigger", "cron", "integrated", "retry":
		// Ambiguous remote mode: decide from the node types
		if hasCron {
			return "cron"
		}
		if hasWebhook {
			return "webhook"
		}
		return "cron"
	}

	if hasCron {
		return "cron"
	}
	if hasWebhook {
		return "webhook"
	}
	if hasManual {
		return "manual"
	}
	return "unknown"
}

// ExtractSchedules pattern-matches over trigger node parameters and
// returns every schedule the workflow declares. Unrecognized shapes
// become unknown entries rather than being dropped.
func ExtractSchedules(nodes []n8n.Node) []Schedule {
	var schedules []Schedule

	for _, node := range nodes {
		if node.Disabled {
			continue
		}
		nodeType := strings.ToLower(node.Type)

		switch {
		case strings.Contains(nodeType, "scheduletrigger"):
			schedules = append(schedules, extractScheduleTrigger(node)...)
		case strings.Contains(nodeType, "crontrigger"), strings.HasSuffix(nodeType, ".cron"):
			schedules = append(schedules, extractCronNode(node)...)
		case strings.Contains(nodeType, "interval"):
			schedules = append(schedules, extractIntervalNode(node)...)
		}
	}

	return schedules
}

// extractScheduleTrigger handles the modern scheduleTrigger node:
// parameters.rule.interval is a list of entries with a field unit and
// optional cron expression.
func extractScheduleTrigger(node n8n.Node) []Schedule {
	rule, ok := node.Parameters["rule"].(map[string]interface{})
	if !ok {
		return []Schedule{{Kind: ScheduleKindUnknown, Source: node.Name}}
	}
	intervals, ok := rule["interval"].([]interface{})
	if !ok || len(intervals) == 0 {
		return []Schedule{{Kind: ScheduleKindUnknown, Source: node.Name}}
	}

	var schedules []Schedule
	for _, raw := range intervals {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			schedules = append(schedules, Schedule{Kind: ScheduleKindUnknown, Source: node.Name})
			continue
		}

		field, _ := entry["field"].(string)
		if strings.EqualFold(field, "cronExpression") {
			expr, _ := entry["expression"].(string)
			schedules = append(schedules, Schedule{
				Kind:       ScheduleKindCron,
				Expression: expr,
				Source:     node.Name,
				Valid:      validCronExpression(expr),
			})
			continue
		}

		count := 1
		for _, key := range []string{"secondsInterval", "minutesInterval", "hoursInterval", "daysInterval", "weeksInterval", "monthsInterval"} {
			if v, ok := entry[key].(float64); ok && v > 0 {
				count = int(v)
				break
			}
		}
		unit := strings.ToLower(field)
		if unit == "" {
			unit = "unknown"
		}
		schedules = append(schedules, Schedule{
			Kind:       ScheduleKindInterval,
			EveryUnit:  unit,
			EveryCount: count,
			Source:     node.Name,
			Valid:      unit != "unknown",
		})
	}
	return schedules
}

// extractCronNode handles the legacy cron node: parameters.triggerTimes
// holds item entries, each either a custom cron expression or an
// everyX-style mode.
func extractCronNode(node n8n.Node) []Schedule {
	triggerTimes, ok := node.Parameters["triggerTimes"].(map[string]interface{})
	if !ok {
		return []Schedule{{Kind: ScheduleKindUnknown, Source: node.Name}}
	}
	items, ok := triggerTimes["item"].([]interface{})
	if !ok || len(items) == 0 {
		return []Schedule{{Kind: ScheduleKindUnknown, Source: node.Name}}
	}

	var schedules []Schedule
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			schedules = append(schedules, Schedule{Kind: ScheduleKindUnknown, Source: node.Name})
			continue
		}

		mode, _ := item["mode"].(string)
		if strings.EqualFold(mode, "custom") {
			expr, _ := item["cronExpression"].(string)
			schedules = append(schedules, Schedule{
				Kind:       ScheduleKindCron,
				Expression: expr,
				Source:     node.Name,
				Valid:      validCronExpression(expr),
			})
			continue
		}

		unit := strings.TrimPrefix(strings.ToLower(mode), "every")
		count := 1
		if v, ok := item["value"].(float64); ok && v > 0 {
			count = int(v)
		}
		if unit == "" {
			schedules = append(schedules, Schedule{Kind: ScheduleKindUnknown, Source: node.Name})
			continue
		}
		schedules = append(schedules, Schedule{
			Kind:       ScheduleKindInterval,
			EveryUnit:  unit,
			EveryCount: count,
			Source:     node.Name,
			Valid:      true,
		})
	}
	return schedules
}

// extractIntervalNode handles the legacy interval node: a flat unit and
// amount pair in the parameters.
func extractIntervalNode(node n8n.Node) []Schedule {
	unit, _ := node.Parameters["unit"].(string)
	if unit == "" {
		unit = "seconds"
	}

	count := 1
	for _, key := range []string{"interval", "amount", "value"} {
		if v, ok := node.Parameters[key].(float64); ok && v > 0 {
			count = int(v)
			break
		}
	}

	return []Schedule{{
		Kind:       ScheduleKindInterval,
		EveryUnit:  strings.ToLower(unit),
		EveryCount: count,
		Source:     node.Name,
		Valid:      true,
	}}
}

// DescribeSchedule renders a schedule for log lines and the dashboard
func DescribeSchedule(s Schedule) string {
	switch s.Kind {
	case ScheduleKindCron:
		return fmt.Sprintf("cron %q", s.Expression)
	case ScheduleKindInterval:
		return fmt.Sprintf("every %d %s", s.EveryCount, s.EveryUnit)
	default:
		return "unknown schedule"
	}
}
