package service

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"
	"github.com/xiaot623/gogo/apm/internal/apm"
	"github.com/xiaot623/gogo/apm/internal/domain"
)

// CalculateToolUsage reports, per tool, how many agents used it, how often,
// and which toolkit it belongs to.
func (s *Service) CalculateToolUsage(ctx context.Context, orgID int64) ([]domain.ToolUsage, error) {
	if err := s.EnsureToolkits(ctx, orgID); err != nil {
		return nil, err
	}

	usage, err := s.store.ToolUsageCounts(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tool usage: %w", err)
	}
	toolkits, err := s.store.ToolToolkitNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load toolkits: %w", err)
	}
	return apm.JoinToolkits(usage, toolkits), nil
}

// GetToolUsageByName returns call and agent counts for one tool. It returns
// nil when the tool exists but was never used.
func (s *Service) GetToolUsageByName(ctx context.Context, orgID int64, toolName string) (*domain.ToolUsageSummary, error) {
	if err := s.requireTool(ctx, orgID, toolName); err != nil {
		return nil, err
	}

	summary, err := s.store.ToolUsageByKey(ctx, orgID, domain.NormalizeToolName(toolName))
	if err != nil {
		return nil, fmt.Errorf("failed to count tool usage: %w", err)
	}
	return summary, nil
}

// GetToolEventsByName lists the completed runs that used a tool, newest first.
func (s *Service) GetToolEventsByName(ctx context.Context, orgID int64, toolName string) ([]domain.ToolEventRecord, error) {
	if err := s.requireTool(ctx, orgID, toolName); err != nil {
		return nil, err
	}

	events, err := s.store.ListAgentStreams(ctx, orgID, apm.CorrelatedEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	correlator := apm.NewCorrelator(s.agentLocation)
	return correlator.ToolEvents(ctx, events, domain.NormalizeToolName(toolName)), nil
}

// requireTool reports NotFound for names that are neither stored nor declared
// by a registered toolkit. That path only reads. A declared tool that is not
// stored yet triggers the toolkit sync.
func (s *Service) requireTool(ctx context.Context, orgID int64, toolName string) error {
	tool, err := s.store.GetToolByName(ctx, toolName)
	if err != nil {
		return fmt.Errorf("failed to get tool: %w", err)
	}
	if tool != nil {
		return nil
	}
	if s.toolkits == nil || !s.toolkits.HasTool(toolName) {
		return domain.NotFound("Tool not found")
	}
	return s.EnsureToolkits(ctx, orgID)
}

// agentLocation resolves an agent's user_timezone. Anything unusable falls
// back to GMT.
func (s *Service) agentLocation(ctx context.Context, agentID int64) *time.Location {
	value, ok, err := s.store.GetAgentConfig(ctx, agentID, domain.AgentConfigUserTimezone)
	if err != nil {
		log.Warn().Err(err).Int64("agent_id", agentID).Msg("timezone lookup failed, using GMT")
		return apm.GMT
	}
	if !ok || value == "" || value == "None" {
		return apm.GMT
	}

	loc, err := time.LoadLocation(value)
	if err != nil {
		log.Warn().Err(err).Int64("agent_id", agentID).Str("timezone", value).Msg("unknown timezone, using GMT")
		return apm.GMT
	}
	return loc
}
