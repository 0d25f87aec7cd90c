// Package domain defines the core domain models for the analytics service.
package domain

// EventName identifies the kind of an event in the agent activity log.
type EventName string

const (
	EventRunCreated               EventName = "run_created"
	EventRunCompleted             EventName = "run_completed"
	EventRunIterationLimitCrossed EventName = "run_iteration_limit_crossed"
	EventToolUsed                 EventName = "tool_used"
	EventAgentCreated             EventName = "agent_created"

	// Lifecycle events that carry free-form properties.
	EventAgentRunPaused          EventName = "agent_run_paused"
	EventAgentRunResumed         EventName = "agent_run_resumed"
	EventAgentToolConfigUpdated  EventName = "agent_tool_config_updated"
	EventAgentDeleted            EventName = "agent_deleted"
	EventAgentResourceUploaded   EventName = "agent_resource_uploaded"
	EventAgentScheduledRunFailed EventName = "agent_scheduled_run_failed"
)

// IsTerminal reports whether the event closes a run semantically.
func (n EventName) IsTerminal() bool {
	return n == EventRunCompleted || n == EventRunIterationLimitCrossed
}

// StorageType is where a resource's bytes live.
type StorageType string

const (
	StorageTypeFile StorageType = "FILE"
	StorageTypeS3   StorageType = "S3"
)

// Channel tells whether a resource was given to the agent or produced by it.
type Channel string

const (
	ChannelInput  Channel = "INPUT"
	ChannelOutput Channel = "OUTPUT"
)

// ConfigKeyType is the value type of a toolkit credential key.
type ConfigKeyType string

const (
	ConfigKeyTypeString ConfigKeyType = "string"
	ConfigKeyTypeFile   ConfigKeyType = "file"
)

// ModelSource names the LLM provider configured for an organisation.
type ModelSource string

const (
	ModelSourceOpenAI      ModelSource = "OpenAi"
	ModelSourceGooglePalm  ModelSource = "Google Palm"
	ModelSourceReplicate   ModelSource = "Replicate"
	ModelSourceHuggingFace ModelSource = "Hugging Face"
)

// Well-known configuration keys.
const (
	AgentConfigUserTimezone     = "user_timezone"
	AgentConfigResourceSummary  = "resource_summary"
	AgentConfigLastResourceTime = "last_resource_time"

	OrgConfigModelAPIKey = "model_api_key"
	OrgConfigModelSource = "model_source"
)
