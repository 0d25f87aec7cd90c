// Package vectorstore indexes resource documents per agent.
package vectorstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/xiaot623/gogo/apm/internal/domain"
)

// Store indexes documents under a namespace, one namespace per agent.
type Store interface {
	AddDocuments(ctx context.Context, namespace, resourceID string, docs []domain.Document) error
	Search(ctx context.Context, namespace, query string, limit int) ([]domain.Document, error)
}

// ErrEmptyNamespace is returned when no namespace is given.
var ErrEmptyNamespace = errors.New("namespace is required")

// Memory is an in-process Store ranking documents by query term overlap.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]domain.Document
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]domain.Document)}
}

// AddDocuments stores docs tagged with their resource id.
func (m *Memory) AddDocuments(ctx context.Context, namespace, resourceID string, docs []domain.Document) error {
	if namespace == "" {
		return ErrEmptyNamespace
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		meta := make(map[string]string, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		meta["resource_id"] = resourceID
		m.docs[namespace] = append(m.docs[namespace], domain.Document{Text: d.Text, Metadata: meta})
	}
	return nil
}

// Search returns up to limit documents sharing the most terms with query.
func (m *Memory) Search(ctx context.Context, namespace, query string, limit int) ([]domain.Document, error) {
	if namespace == "" {
		return nil, ErrEmptyNamespace
	}
	terms := strings.Fields(strings.ToLower(query))

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		doc   domain.Document
		score int
	}
	var hits []scored
	for _, d := range m.docs[namespace] {
		text := strings.ToLower(d.Text)
		score := 0
		for _, t := range terms {
			score += strings.Count(text, t)
		}
		if score > 0 {
			hits = append(hits, scored{doc: d, score: score})
		}
	}

	// insertion sort keeps equal scores in insertion order
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].score > hits[j-1].score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]domain.Document, len(hits))
	for i, h := range hits {
		out[i] = h.doc
	}
	return out, nil
}
