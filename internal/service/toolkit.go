package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/apm/internal/domain"
)

// ToolkitView is a toolkit with its tools and config keys.
type ToolkitView struct {
	domain.Toolkit
	Tools   []domain.Tool       `json:"tools"`
	Configs []domain.ToolConfig `json:"configs"`
}

// EnsureToolkits writes the built-in toolkit catalog for an organisation the
// first time it is needed.
func (s *Service) EnsureToolkits(ctx context.Context, orgID int64) error {
	if s.toolkits == nil {
		return nil
	}
	if _, done := s.synced.Load(orgID); done {
		return nil
	}
	if err := s.toolkits.Sync(ctx, s.store, orgID); err != nil {
		return fmt.Errorf("failed to sync toolkits: %w", err)
	}
	s.synced.Store(orgID, struct{}{})
	return nil
}

// ListToolkits returns the organisation's toolkits. Secret config values are
// never returned.
func (s *Service) ListToolkits(ctx context.Context, orgID int64) ([]ToolkitView, error) {
	if err := s.EnsureToolkits(ctx, orgID); err != nil {
		return nil, err
	}

	toolkits, err := s.store.ListToolkits(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list toolkits: %w", err)
	}

	views := make([]ToolkitView, 0, len(toolkits))
	for _, tk := range toolkits {
		tools, err := s.store.ListTools(ctx, tk.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		configs, err := s.store.ListToolConfigs(ctx, tk.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list tool configs: %w", err)
		}
		for i := range configs {
			if configs[i].IsSecret {
				configs[i].Value = ""
			}
		}
		if tools == nil {
			tools = []domain.Tool{}
		}
		if configs == nil {
			configs = []domain.ToolConfig{}
		}
		views = append(views, ToolkitView{Toolkit: tk, Tools: tools, Configs: configs})
	}
	return views, nil
}
