// Package resource summarizes the documents attached to agents.
package resource

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/xiaot623/gogo/apm/internal/adapter/llm"
	"github.com/xiaot623/gogo/apm/internal/domain"
	"github.com/xiaot623/gogo/apm/internal/repository"
	"github.com/xiaot623/gogo/apm/internal/vectorstore"
)

// maxPromptChars caps the document text sent in one summary prompt.
const maxPromptChars = 12000

// lastResourceLayout records the newest resource update time.
const lastResourceLayout = time.RFC3339Nano

// ClientFunc returns the LLM client to use for an organisation's model key.
type ClientFunc func(apiKey string) llm.LLMClient

// Summarizer indexes agent resources and keeps their summaries current.
type Summarizer struct {
	store   repository.Store
	clients ClientFunc
	vectors vectorstore.Store
	loader  DocumentLoader
	model   string
}

// NewSummarizer creates a summarizer.
func NewSummarizer(store repository.Store, clients ClientFunc, vectors vectorstore.Store, loader DocumentLoader, model string) *Summarizer {
	return &Summarizer{
		store:   store,
		clients: clients,
		vectors: vectors,
		loader:  loader,
		model:   model,
	}
}

type modelConfig struct {
	apiKey string
	source string
}

func (s *Summarizer) modelConfig(ctx context.Context, agentID int64) (modelConfig, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return modelConfig{}, fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil {
		return modelConfig{}, domain.NotFound("Agent not found")
	}

	var mc modelConfig
	if mc.apiKey, _, err = s.store.GetOrgConfig(ctx, agent.OrgID, domain.OrgConfigModelAPIKey); err != nil {
		return modelConfig{}, fmt.Errorf("failed to get model api key: %w", err)
	}
	if mc.source, _, err = s.store.GetOrgConfig(ctx, agent.OrgID, domain.OrgConfigModelSource); err != nil {
		return modelConfig{}, fmt.Errorf("failed to get model source: %w", err)
	}
	return mc, nil
}

// AddToVectorStoreAndCreateSummary indexes a resource's documents and stores
// a summary of them. Indexing and summarizing failures are logged; the
// summary is cleared when it cannot be generated.
func (s *Summarizer) AddToVectorStoreAndCreateSummary(ctx context.Context, agentID, resourceID int64, docs []domain.Document) error {
	mc, err := s.modelConfig(ctx, agentID)
	if err != nil {
		return err
	}

	if err := s.vectors.AddDocuments(ctx, strconv.FormatInt(agentID, 10), strconv.FormatInt(resourceID, 10), docs); err != nil {
		log.Error().Err(err).Int64("resource_id", resourceID).Msg("unable to save documents to vector store")
	}

	var summary *string
	text, err := s.summarizeDocuments(ctx, mc, docs)
	if err != nil {
		log.Error().Err(err).Int64("resource_id", resourceID).Msg("unable to generate summary of documents")
	} else {
		summary = &text
	}

	if err := s.store.UpdateResourceSummary(ctx, resourceID, summary); err != nil {
		return fmt.Errorf("failed to update resource summary: %w", err)
	}
	return nil
}

// GenerateAgentSummary refreshes the agent's resource_summary config from its
// INPUT resources. With generateAll, resources lacking a summary are loaded
// and summarized first and the refresh always happens; otherwise it is
// skipped when no resource changed since the last run.
func (s *Summarizer) GenerateAgentSummary(ctx context.Context, agentID int64, generateAll bool) error {
	resources, err := s.store.ListResources(ctx, agentID, domain.ChannelInput)
	if err != nil {
		return fmt.Errorf("failed to list resources: %w", err)
	}
	if len(resources) == 0 {
		return nil
	}

	mc, err := s.modelConfig(ctx, agentID)
	if err != nil {
		return err
	}

	var texts []string
	for _, r := range resources {
		if r.Summary != nil {
			texts = append(texts, *r.Summary)
		}
	}

	if generateAll && len(texts) < len(resources) {
		for _, r := range resources {
			if r.Summary != nil {
				continue
			}
			docs, err := s.loader.Load(ctx, r)
			if err != nil {
				log.Warn().Err(err).Int64("resource_id", r.ID).Msg("unable to load resource")
				continue
			}
			if len(docs) == 0 {
				continue
			}
			text, err := s.summarizeDocuments(ctx, mc, docs)
			if err != nil {
				log.Warn().Err(err).Int64("resource_id", r.ID).Msg("unable to summarize resource")
				continue
			}
			if err := s.store.UpdateResourceSummary(ctx, r.ID, &text); err != nil {
				return fmt.Errorf("failed to update resource summary: %w", err)
			}
			texts = append(texts, text)
		}
	}

	newest := resources[len(resources)-1].UpdatedAt
	if !generateAll {
		last, ok, err := s.store.GetAgentConfig(ctx, agentID, domain.AgentConfigLastResourceTime)
		if err != nil {
			return fmt.Errorf("failed to get last resource time: %w", err)
		}
		if ok {
			if t, err := time.Parse(lastResourceLayout, last); err == nil && t.Equal(newest) {
				return nil
			}
		}
	}

	if len(texts) > 0 {
		summary := texts[0]
		if len(texts) > 1 {
			if summary, err = s.summarizeTexts(ctx, mc, texts); err != nil {
				return fmt.Errorf("failed to combine resource summaries: %w", err)
			}
		}
		if err := s.store.SetAgentConfig(ctx, agentID, domain.AgentConfigResourceSummary, summary); err != nil {
			return fmt.Errorf("failed to save resource summary: %w", err)
		}
	}

	if err := s.store.SetAgentConfig(ctx, agentID, domain.AgentConfigLastResourceTime, newest.UTC().Format(lastResourceLayout)); err != nil {
		return fmt.Errorf("failed to save last resource time: %w", err)
	}
	return nil
}

// FetchOrCreateAgentResourceSummary regenerates the agent summary and returns
// it, or defaultSummary when none exists. Organisations on Google Palm get
// an empty summary.
func (s *Summarizer) FetchOrCreateAgentResourceSummary(ctx context.Context, agentID int64, defaultSummary string) (string, error) {
	mc, err := s.modelConfig(ctx, agentID)
	if err != nil {
		return "", err
	}
	if strings.Contains(mc.source, string(domain.ModelSourceGooglePalm)) {
		return "", nil
	}

	if err := s.GenerateAgentSummary(ctx, agentID, true); err != nil {
		return "", err
	}

	summary, ok, err := s.store.GetAgentConfig(ctx, agentID, domain.AgentConfigResourceSummary)
	if err != nil {
		return "", fmt.Errorf("failed to get resource summary: %w", err)
	}
	if !ok {
		return defaultSummary, nil
	}
	return summary, nil
}

func (s *Summarizer) summarizeDocuments(ctx context.Context, mc modelConfig, docs []domain.Document) (string, error) {
	var b strings.Builder
	for _, d := range docs {
		if b.Len() >= maxPromptChars {
			break
		}
		b.WriteString(d.Text)
		b.WriteString("\n\n")
	}
	text := clip(b.String(), maxPromptChars)
	return llm.Complete(ctx, s.clients(mc.apiKey), s.model,
		"You summarize documents for an autonomous agent. Keep the key facts.",
		"Write a concise summary of the following document:\n\n"+text)
}

func (s *Summarizer) summarizeTexts(ctx context.Context, mc modelConfig, texts []string) (string, error) {
	prompt := "Combine the following summaries into one concise summary:\n\n- " + strings.Join(texts, "\n- ")
	return llm.Complete(ctx, s.clients(mc.apiKey), s.model,
		"You summarize documents for an autonomous agent. Keep the key facts.", prompt)
}

// clip shortens text to at most limit bytes without splitting a rune.
func clip(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
