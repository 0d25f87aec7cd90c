package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xiaot623/gogo/apm/internal/domain"
	"github.com/xiaot623/gogo/apm/internal/policy"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// RecordEvent validates an event, checks it against the admission policy,
// stores it and publishes it to live subscribers.
func (s *Service) RecordEvent(ctx context.Context, orgID int64, in domain.EventInput) (*domain.Event, error) {
	if in.AgentID <= 0 {
		return nil, domain.InvalidArgument("agent_id is required")
	}
	props, err := domain.DecodeProperties(in.Name, in.Property)
	if err != nil {
		return nil, err
	}

	event := &domain.Event{
		OrgID:      orgID,
		AgentID:    in.AgentID,
		Name:       in.Name,
		Property:   json.RawMessage(`{}`),
		Properties: props,
	}
	if len(bytes.TrimSpace(in.Property)) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, in.Property); err != nil {
			return nil, domain.InvalidArgument("event_property is not valid JSON")
		}
		event.Property = compact.Bytes()
	}
	if p, ok := props.(domain.ToolUsedProperties); ok {
		event.ToolKey = domain.NormalizeToolName(p.ToolName)
	}

	if s.policyEngine != nil {
		var property map[string]any
		_ = json.Unmarshal(event.Property, &property)
		decision, reason, err := s.policyEngine.Evaluate(ctx, policy.Input{
			OrgID:         orgID,
			AgentID:       event.AgentID,
			EventName:     string(event.Name),
			EventProperty: property,
			ToolKey:       event.ToolKey,
		})
		if err != nil {
			return nil, domain.Internal("policy evaluation failed", err)
		}
		if decision == policy.DecisionBlock {
			if reason == "" {
				reason = "event rejected by policy"
			}
			return nil, domain.Forbidden(reason)
		}
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	log.Debug().Int64("event_id", event.ID).Int64("org_id", orgID).Str("event_name", string(event.Name)).Msg("event recorded")

	if s.publisher != nil {
		if err := s.publisher.Publish(orgID, event); err != nil {
			log.Warn().Err(err).Int64("event_id", event.ID).Msg("failed to publish event")
		}
	}
	return event, nil
}

// ListEvents returns an organisation's events in id order.
func (s *Service) ListEvents(ctx context.Context, orgID int64, filter domain.EventFilter) ([]domain.Event, error) {
	switch {
	case filter.Limit < 0:
		return nil, domain.InvalidArgument("limit must not be negative")
	case filter.Limit == 0:
		filter.Limit = defaultEventLimit
	case filter.Limit > maxEventLimit:
		filter.Limit = maxEventLimit
	}

	events, err := s.store.ListEvents(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}
