// Package repository defines the storage interface and its SQL implementations.
package repository

import (
	"context"

	"github.com/xiaot623/gogo/apm/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, orgID int64, filter domain.EventFilter) ([]domain.Event, error)
	// ListAgentStreams returns the organisation's events with the given names
	// ordered by (agent_id, id).
	ListAgentStreams(ctx context.Context, orgID int64, names []domain.EventName) ([]domain.Event, error)
	ToolUsageCounts(ctx context.Context, orgID int64) ([]domain.ToolUsage, error)
	ToolUsageByKey(ctx context.Context, orgID int64, toolKey string) (*domain.ToolUsageSummary, error)

	// Tool registry operations
	UpsertToolkit(ctx context.Context, toolkit *domain.Toolkit) error
	UpsertTool(ctx context.Context, tool *domain.Tool) error
	UpsertToolConfig(ctx context.Context, cfg *domain.ToolConfig) error
	GetToolByName(ctx context.Context, name string) (*domain.Tool, error)
	ListToolkits(ctx context.Context, orgID int64) ([]domain.Toolkit, error)
	ListTools(ctx context.Context, toolkitID int64) ([]domain.Tool, error)
	ListToolConfigs(ctx context.Context, toolkitID int64) ([]domain.ToolConfig, error)
	// ToolToolkitNames maps every tool name to the name of its toolkit.
	ToolToolkitNames(ctx context.Context) (map[string]string, error)

	// Agent operations
	CreateAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, agentID int64) (*domain.Agent, error)
	ListAgentsWithResources(ctx context.Context, channel domain.Channel) ([]int64, error)

	// Configuration operations. The bool result reports whether a row exists.
	GetAgentConfig(ctx context.Context, agentID int64, key string) (string, bool, error)
	SetAgentConfig(ctx context.Context, agentID int64, key, value string) error
	GetOrgConfig(ctx context.Context, orgID int64, key string) (string, bool, error)
	SetOrgConfig(ctx context.Context, orgID int64, key, value string) error

	// Resource operations
	CreateResource(ctx context.Context, resource *domain.Resource) error
	GetResource(ctx context.Context, resourceID int64) (*domain.Resource, error)
	ListResources(ctx context.Context, agentID int64, channel domain.Channel) ([]domain.Resource, error)
	UpdateResourceSummary(ctx context.Context, resourceID int64, summary *string) error

	// Lifecycle
	Close() error
}
