package domain

import "time"

// Toolkit is a named group of tools sharing credentials.
type Toolkit struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OrgID       int64     `json:"org_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tool is a registered tool belonging to a toolkit.
type Tool struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ToolkitID   int64  `json:"toolkit_id"`
}

// ToolConfig is a credential or setting a toolkit requires.
type ToolConfig struct {
	ToolkitID  int64         `json:"toolkit_id"`
	Key        string        `json:"key"`
	KeyType    ConfigKeyType `json:"key_type"`
	IsRequired bool          `json:"is_required"`
	IsSecret   bool          `json:"is_secret"`
	Value      string        `json:"value,omitempty"`
}

// ToolUsage is the organisation-wide usage of one tool.
type ToolUsage struct {
	ToolName     string  `json:"tool_name"`
	UniqueAgents int64   `json:"unique_agents"`
	TotalUsage   int64   `json:"total_usage"`
	Toolkit      *string `json:"toolkit"`
}

// ToolUsageSummary is the usage of a single tool looked up by name.
type ToolUsageSummary struct {
	ToolCalls        int64 `json:"tool_calls"`
	ToolUniqueAgents int64 `json:"tool_unique_agents"`
}

// ToolEventRecord describes one completed run in which a tool was used.
type ToolEventRecord struct {
	AgentID            int64    `json:"agent_id"`
	CreatedAt          string   `json:"created_at"`
	AgentExecutionID   string   `json:"agent_execution_id"`
	TokensConsumed     int64    `json:"tokens_consumed"`
	Calls              int64    `json:"calls"`
	AgentExecutionName string   `json:"agent_execution_name"`
	OtherTools         []string `json:"other_tools"`
	AgentName          string   `json:"agent_name"`
	Model              string   `json:"model"`
}
