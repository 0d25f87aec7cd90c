// Package toolkit declares the built-in toolkits and keeps the tool registry
// in the store in sync with them.
package toolkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xiaot623/gogo/apm/internal/domain"
	"github.com/xiaot623/gogo/apm/internal/repository"
)

// ToolSpec describes one tool of a toolkit.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ConfigKey is a credential or setting a toolkit needs.
type ConfigKey struct {
	Key        string               `json:"key"`
	KeyType    domain.ConfigKeyType `json:"key_type"`
	IsRequired bool                 `json:"is_required"`
	IsSecret   bool                 `json:"is_secret"`
}

// Toolkit is a named group of tools sharing configuration.
type Toolkit interface {
	Name() string
	Description() string
	Tools() []ToolSpec
	EnvKeys() []ConfigKey
}

// Registry stores toolkits keyed by name.
type Registry struct {
	mu       sync.RWMutex
	toolkits map[string]Toolkit
}

// DefaultRegistry holds the built-in toolkits.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty toolkit registry.
func NewRegistry() *Registry {
	return &Registry{
		toolkits: make(map[string]Toolkit),
	}
}

// Register adds a toolkit.
func (r *Registry) Register(tk Toolkit) error {
	if tk == nil {
		return fmt.Errorf("toolkit is required")
	}
	if tk.Name() == "" {
		return fmt.Errorf("toolkit name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.toolkits[tk.Name()]; exists {
		return fmt.Errorf("toolkit already registered: %s", tk.Name())
	}
	r.toolkits[tk.Name()] = tk
	return nil
}

// Get returns a toolkit by name.
func (r *Registry) Get(name string) (Toolkit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tk, ok := r.toolkits[name]
	return tk, ok
}

// HasTool reports whether any registered toolkit declares a tool with this
// exact name.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tk := range r.toolkits {
		for _, spec := range tk.Tools() {
			if spec.Name == name {
				return true
			}
		}
	}
	return false
}

// List returns all toolkits ordered by name.
func (r *Registry) List() []Toolkit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Toolkit, 0, len(r.toolkits))
	for _, tk := range r.toolkits {
		out = append(out, tk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Sync upserts every registered toolkit, its tools and its config keys for
// an organisation. Existing config values are preserved.
func (r *Registry) Sync(ctx context.Context, store repository.Store, orgID int64) error {
	for _, tk := range r.List() {
		row := &domain.Toolkit{Name: tk.Name(), Description: tk.Description(), OrgID: orgID}
		if err := store.UpsertToolkit(ctx, row); err != nil {
			return fmt.Errorf("failed to upsert toolkit %s: %w", tk.Name(), err)
		}
		for _, spec := range tk.Tools() {
			tool := &domain.Tool{Name: spec.Name, Description: spec.Description, ToolkitID: row.ID}
			if err := store.UpsertTool(ctx, tool); err != nil {
				return fmt.Errorf("failed to upsert tool %s: %w", spec.Name, err)
			}
		}
		for _, key := range tk.EnvKeys() {
			cfg := &domain.ToolConfig{
				ToolkitID:  row.ID,
				Key:        key.Key,
				KeyType:    key.KeyType,
				IsRequired: key.IsRequired,
				IsSecret:   key.IsSecret,
			}
			if err := store.UpsertToolConfig(ctx, cfg); err != nil {
				return fmt.Errorf("failed to upsert config %s: %w", key.Key, err)
			}
		}
	}
	return nil
}

// Register adds a toolkit to the default registry.
func Register(tk Toolkit) error {
	return DefaultRegistry.Register(tk)
}

// MustRegister adds a toolkit to the default registry or panics.
func MustRegister(tk Toolkit) {
	if err := Register(tk); err != nil {
		panic(err)
	}
}
