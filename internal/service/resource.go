package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xiaot623/gogo/apm/internal/domain"
)

// ResourceInput is an uploaded text resource.
type ResourceInput struct {
	Name    string         `json:"name"`
	Content string         `json:"content"`
	Channel domain.Channel `json:"channel,omitempty"`
}

// AddResource stores an uploaded resource for an agent, indexes and
// summarizes it, and records an agent_resource_uploaded event.
func (s *Service) AddResource(ctx context.Context, orgID, agentID int64, in ResourceInput) (*domain.Resource, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.InvalidArgument("name is required")
	}
	switch in.Channel {
	case "":
		in.Channel = domain.ChannelInput
	case domain.ChannelInput, domain.ChannelOutput:
	default:
		return nil, domain.InvalidArgument("channel must be INPUT or OUTPUT")
	}
	if err := s.requireAgent(ctx, orgID, agentID); err != nil {
		return nil, err
	}

	path, err := s.files.Save(agentID, in.Name, []byte(in.Content))
	if err != nil {
		return nil, domain.InvalidArgument(err.Error())
	}

	res := &domain.Resource{
		AgentID:     agentID,
		Name:        in.Name,
		Path:        path,
		StorageType: domain.StorageTypeFile,
		Channel:     in.Channel,
	}
	if err := s.store.CreateResource(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	docs, err := s.files.Load(ctx, *res)
	if err != nil {
		log.Warn().Err(err).Int64("resource_id", res.ID).Msg("unable to load resource")
	}
	if len(docs) > 0 && s.summarizer != nil {
		if err := s.summarizer.AddToVectorStoreAndCreateSummary(ctx, agentID, res.ID, docs); err != nil {
			return nil, err
		}
	}

	property, _ := json.Marshal(map[string]any{"resource_id": res.ID, "name": res.Name})
	if _, err := s.RecordEvent(ctx, orgID, domain.EventInput{
		AgentID:  agentID,
		Name:     domain.EventAgentResourceUploaded,
		Property: property,
	}); err != nil {
		log.Warn().Err(err).Int64("resource_id", res.ID).Msg("unable to record upload event")
	}

	stored, err := s.store.GetResource(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return stored, nil
}

// GetResourceSummary returns the agent's combined resource summary, building
// it when needed.
func (s *Service) GetResourceSummary(ctx context.Context, orgID, agentID int64, defaultSummary string) (string, error) {
	if err := s.requireAgent(ctx, orgID, agentID); err != nil {
		return "", err
	}
	if s.summarizer == nil {
		return defaultSummary, nil
	}
	return s.summarizer.FetchOrCreateAgentResourceSummary(ctx, agentID, defaultSummary)
}

// RefreshResourceSummaries regenerates stale summaries of every agent with
// input resources and returns how many agents were processed. Failures are
// logged per agent.
func (s *Service) RefreshResourceSummaries(ctx context.Context) (int, error) {
	if s.summarizer == nil {
		return 0, nil
	}
	agentIDs, err := s.store.ListAgentsWithResources(ctx, domain.ChannelInput)
	if err != nil {
		return 0, fmt.Errorf("failed to list agents: %w", err)
	}

	done := 0
	for _, id := range agentIDs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := s.summarizer.GenerateAgentSummary(ctx, id, false); err != nil {
			log.Error().Err(err).Int64("agent_id", id).Msg("resource summary refresh failed")
			continue
		}
		done++
	}
	return done, nil
}

// requireAgent reports NotFound for agents outside the organisation.
func (s *Service) requireAgent(ctx context.Context, orgID, agentID int64) error {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil || agent.OrgID != orgID {
		return domain.NotFound("Agent not found")
	}
	return nil
}
