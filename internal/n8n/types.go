package n8n

import (
	"bytes"
	"encoding/json"
	"time"
)

// FlexID accepts both JSON strings and numbers; the n8n API returns
// execution ids as numbers but workflow ids as strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string {
	return string(f)
}

// Tag is a workflow tag as returned by the remote API
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Node is one node of a remote workflow definition. Parameters stay
// loosely typed; the schedule extractor pattern-matches over them.
type Node struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	TypeVersion float64                `json:"typeVersion"`
	Disabled    bool                   `json:"disabled,omitempty"`
	Position    []float64              `json:"position,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// WorkflowSummary is the listing-endpoint shape: enough for change
// detection, no nodes or connections.
type WorkflowSummary struct {
	ID        FlexID    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	Tags      []Tag     `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Workflow is the full remote definition: nodes plus connections
type Workflow struct {
	ID          FlexID          `json:"id"`
	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	Nodes       []Node          `json:"nodes"`
	Connections json.RawMessage `json:"connections,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	Tags        []Tag           `json:"tags,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Execution is one remote workflow run. Data is only populated when the
// caller asked for the full payload.
type Execution struct {
	ID             FlexID          `json:"id"`
	WorkflowID     FlexID          `json:"workflowId"`
	Status         string          `json:"status"`
	Mode           string          `json:"mode"`
	Finished       bool            `json:"finished"`
	RetryOf        FlexID          `json:"retryOf,omitempty"`
	RetrySuccessID FlexID          `json:"retrySuccessId,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	StoppedAt      *time.Time      `json:"stoppedAt,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	WorkflowData   *Workflow       `json:"workflowData,omitempty"`
}

// ExecutionList is one page of the executions listing
type ExecutionList struct {
	Items      []Execution
	NextCursor string
}

// listEnvelope is the remote API's paging wrapper
type listEnvelope[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"nextCursor"`
}
