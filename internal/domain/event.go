package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event is an append-only record of agent or tool activity.
type Event struct {
	ID         int64           `json:"id"`
	OrgID      int64           `json:"org_id"`
	AgentID    int64           `json:"agent_id"`
	Name       EventName       `json:"event_name"`
	Property   json.RawMessage `json:"event_property,omitempty"`
	Properties Properties      `json:"-"`
	// ToolKey is the normalized tool name of a tool_used event, empty otherwise.
	ToolKey   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// EventInput is what producers submit to the event log.
type EventInput struct {
	AgentID  int64           `json:"agent_id"`
	Name     EventName       `json:"event_name"`
	Property json.RawMessage `json:"event_property"`
}

// EventFilter narrows an event listing.
type EventFilter struct {
	AgentID int64
	AfterID int64
	Names   []EventName
	Limit   int
}

// Properties is the typed payload of an event. The concrete type is
// determined by the event name.
type Properties interface {
	eventProperties()
}

// FlexString accepts either a JSON string or a JSON number and keeps its
// textual form. Execution ids arrive as both.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// RunCreatedProperties opens a run window.
type RunCreatedProperties struct {
	AgentExecutionID   FlexString `json:"agent_execution_id"`
	AgentExecutionName string     `json:"agent_execution_name,omitempty"`
}

// RunEndedProperties is carried by run_completed and run_iteration_limit_crossed.
type RunEndedProperties struct {
	AgentExecutionID FlexString `json:"agent_execution_id,omitempty"`
	Name             string     `json:"name,omitempty"`
	TokensConsumed   int64      `json:"tokens_consumed"`
	Calls            int64      `json:"calls"`
}

// ToolUsedProperties records a single tool invocation.
type ToolUsedProperties struct {
	ToolName         string     `json:"tool_name"`
	AgentExecutionID FlexString `json:"agent_execution_id,omitempty"`
}

// AgentCreatedProperties describes a newly created agent.
type AgentCreatedProperties struct {
	AgentName string `json:"agent_name"`
	Model     string `json:"model"`
}

// GenericProperties holds the payload of events without a dedicated schema.
type GenericProperties map[string]any

func (RunCreatedProperties) eventProperties()   {}
func (RunEndedProperties) eventProperties()     {}
func (ToolUsedProperties) eventProperties()     {}
func (AgentCreatedProperties) eventProperties() {}
func (GenericProperties) eventProperties()      {}

// DecodeProperties parses raw into the property type for name and validates it.
func DecodeProperties(name EventName, raw json.RawMessage) (Properties, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}

	switch name {
	case EventRunCreated:
		var p RunCreatedProperties
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventRunCompleted, EventRunIterationLimitCrossed:
		var p RunEndedProperties
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventToolUsed:
		var p ToolUsedProperties
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.ToolName) == "" {
			return nil, InvalidArgument("tool_used event requires tool_name")
		}
		return p, nil
	case EventAgentCreated:
		var p AgentCreatedProperties
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		if name == "" {
			return nil, InvalidArgument("event_name is required")
		}
		var p GenericProperties
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func decodeStrict(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return InvalidArgument("invalid event_property: " + err.Error())
	}
	return nil
}

// NormalizeToolName folds a tool name to the key stored on tool_used events:
// lowercase with spaces removed. It is idempotent.
func NormalizeToolName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "")
}

// ExecutionID returns the execution id carried by the event, if any.
func (e *Event) ExecutionID() string {
	switch p := e.Properties.(type) {
	case RunCreatedProperties:
		return string(p.AgentExecutionID)
	case RunEndedProperties:
		return string(p.AgentExecutionID)
	case ToolUsedProperties:
		return string(p.AgentExecutionID)
	case GenericProperties:
		switch v := p["agent_execution_id"].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
