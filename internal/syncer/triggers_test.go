package syncer

import (
	"testing"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/n8n"
)

func TestInferTriggerModeNodeTypesWin(t *testing.T) {
	tests := []struct {
		name       string
		nodes      []n8n.Node
		remoteMode string
		want       string
	}{
		{
			name:       "error trigger beats everything",
			nodes:      []n8n.Node{{Type: "n8n-nodes-base.errorTrigger"}, {Type: "n8n-nodes-base.webhook"}},
			remoteMode: "trigger",
			want:       "error",
		},
		{
			name:       "schedule trigger resolves ambiguous mode to cron",
			nodes:      []n8n.Node{{Type: "n8n-nodes-base.scheduleTrigger"}},
			remoteMode: "trigger",
			want:       "cron",
		},
		{
			name:       "webhook node resolves ambiguous mode to webhook",
			nodes:      []n8n.Node{{Type: "n8n-nodes-base.webhook"}},
			remoteMode: "trigger",
			want:       "webhook",
		},
		{
			name:       "manual remote mode is authoritative",
			nodes:      []n8n.Node{{Type: "n8n-nodes-base.scheduleTrigger"}},
			remoteMode: "manual",
			want:       "manual",
		},
		{
			name:       "disabled trigger nodes are ignored",
			nodes:      []n8n.Node{{Type: "n8n-nodes-base.webhook", Disabled: true}},
			remoteMode: "manual",
			want:       "manual",
		},
		{
			name:       "no nodes and ambiguous mode defaults to cron",
			nodes:      nil,
			remoteMode: "trigger",
			want:       "cron",
		},
		{
			name:       "nothing known",
			nodes:      nil,
			remoteMode: "",
			want:       "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferTriggerMode(tt.nodes, tt.remoteMode)
			if got != tt.want {
				t.Errorf("InferTriggerMode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSchedulesScheduleTrigger(t *testing.T) {
	node := n8n.Node{
		Name: "Every morning",
		Type: "n8n-nodes-base.scheduleTrigger",
		Parameters: map[string]interface{}{
			"rule": map[string]interface{}{
				"interval": []interface{}{
					map[string]interface{}{
						"field":      "cronExpression",
						"expression": "0 7 * * *",
					},
					map[string]interface{}{
						"field":         "hours",
						"hoursInterval": float64(6),
					},
				},
			},
		},
	}

	schedules := ExtractSchedules([]n8n.Node{node})
	if len(schedules) != 2 {
		t.Fatalf("Expected 2 schedules, got %d", len(schedules))
	}

	if schedules[0].Kind != ScheduleKindCron || schedules[0].Expression != "0 7 * * *" {
		t.Errorf("Unexpected cron schedule: %+v", schedules[0])
	}
	if !schedules[0].Valid {
		t.Error("Expected cron expression to validate")
	}

	if schedules[1].Kind != ScheduleKindInterval || schedules[1].EveryUnit != "hours" || schedules[1].EveryCount != 6 {
		t.Errorf("Unexpected interval schedule: %+v", schedules[1])
	}
}

func TestExtractSchedulesLegacyCronNode(t *testing.T) {
	node := n8n.Node{
		Name: "Nightly",
		Type: "n8n-nodes-base.cron",
		Parameters: map[string]interface{}{
			"triggerTimes": map[string]interface{}{
				"item": []interface{}{
					map[string]interface{}{
						"mode":           "custom",
						"cronExpression": "30 2 * * 1-5",
					},
					map[string]interface{}{
						"mode":  "everyMinute",
						"value": float64(15),
					},
				},
			},
		},
	}

	schedules := ExtractSchedules([]n8n.Node{node})
	if len(schedules) != 2 {
		t.Fatalf("Expected 2 schedules, got %d", len(schedules))
	}

	if schedules[0].Kind != ScheduleKindCron || !schedules[0].Valid {
		t.Errorf("Expected valid cron schedule, got %+v", schedules[0])
	}
	if schedules[1].Kind != ScheduleKindInterval || schedules[1].EveryUnit != "minute" {
		t.Errorf("Unexpected interval schedule: %+v", schedules[1])
	}
}

func TestExtractSchedulesIntervalNode(t *testing.T) {
	node := n8n.Node{
		Name: "Poller",
		Type: "n8n-nodes-base.interval",
		Parameters: map[string]interface{}{
			"unit":     "minutes",
			"interval": float64(10),
		},
	}

	schedules := ExtractSchedules([]n8n.Node{node})
	if len(schedules) != 1 {
		t.Fatalf("Expected 1 schedule, got %d", len(schedules))
	}
	s := schedules[0]
	if s.Kind != ScheduleKindInterval || s.EveryUnit != "minutes" || s.EveryCount != 10 {
		t.Errorf("Unexpected schedule: %+v", s)
	}
	if s.Source != "Poller" {
		t.Errorf("Expected source node name, got %q", s.Source)
	}
}

func TestExtractSchedulesMalformedParameters(t *testing.T) {
	node := n8n.Node{
		Name:       "Broken",
		Type:       "n8n-nodes-base.scheduleTrigger",
		Parameters: map[string]interface{}{"rule": "not-a-map"},
	}

	schedules := ExtractSchedules([]n8n.Node{node})
	if len(schedules) != 1 {
		t.Fatalf("Expected 1 schedule, got %d", len(schedules))
	}
	if schedules[0].Kind != ScheduleKindUnknown {
		t.Errorf("Expected unknown schedule for malformed parameters, got %+v", schedules[0])
	}
}

func TestValidCronExpression(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"0 7 * * *", true},
		{"*/5 * * * *", true},
		{"0 0 7 * * *", true}, // leading seconds field
		{"@daily", true},
		{"not a cron", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := validCronExpression(tt.expr); got != tt.want {
			t.Errorf("validCronExpression(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}
