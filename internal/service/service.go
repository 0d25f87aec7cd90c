// Package service implements the analytics, ingestion and resource operations
// behind the HTTP API.
package service

import (
	"context"
	"sync"

	"github.com/xiaot623/gogo/apm/internal/oauth1"
	"github.com/xiaot623/gogo/apm/internal/policy"
	"github.com/xiaot623/gogo/apm/internal/repository"
	"github.com/xiaot623/gogo/apm/internal/resource"
	"github.com/xiaot623/gogo/apm/internal/toolkit"
)

// Publisher delivers recorded events to live subscribers.
type Publisher interface {
	Publish(orgID int64, v interface{}) error
}

// RequestTokenSigner obtains OAuth1 request tokens.
type RequestTokenSigner interface {
	RequestToken(ctx context.Context, creds oauth1.Credentials) (map[string]string, error)
}

type Service struct {
	store        repository.Store
	policyEngine *policy.Engine
	publisher    Publisher
	summarizer   *resource.Summarizer
	files        resource.FileLoader
	signer       RequestTokenSigner
	toolkits     *toolkit.Registry

	// organisations whose toolkit catalog has been synced
	synced sync.Map
}

func New(store repository.Store, policyEngine *policy.Engine, publisher Publisher, summarizer *resource.Summarizer, files resource.FileLoader, signer RequestTokenSigner, toolkits *toolkit.Registry) *Service {
	return &Service{
		store:        store,
		policyEngine: policyEngine,
		publisher:    publisher,
		summarizer:   summarizer,
		files:        files,
		signer:       signer,
		toolkits:     toolkits,
	}
}
