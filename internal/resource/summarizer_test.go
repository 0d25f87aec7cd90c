package resource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/gogo/apm/internal/adapter/llm"
	"github.com/xiaot623/gogo/apm/internal/domain"
	"github.com/xiaot623/gogo/apm/internal/repository"
	"github.com/xiaot623/gogo/apm/internal/vectorstore"
)

// scriptedLLM answers every prompt with a numbered summary.
type scriptedLLM struct {
	mu      sync.Mutex
	prompts []string
	fail    bool
}

func (s *scriptedLLM) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("llm unavailable")
	}
	prompt := req.Messages[len(req.Messages)-1].Content
	s.prompts = append(s.prompts, prompt)
	content := "summary of document"
	if strings.HasPrefix(prompt, "Combine") {
		content = "combined summary"
	}
	return &llm.ChatCompletionResponse{Choices: []llm.Choice{{Message: &llm.ChatMessage{Role: "assistant", Content: content}}}}, nil
}

type fixture struct {
	store   *repository.SQLiteStore
	llm     *scriptedLLM
	vectors *vectorstore.Memory
	keys    []string
	s       *Summarizer
	agentID int64
	root    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	agent := &domain.Agent{Name: "researcher", OrgID: 1}
	require.NoError(t, store.CreateAgent(ctx, agent))
	require.NoError(t, store.SetOrgConfig(ctx, 1, domain.OrgConfigModelAPIKey, "sk-org"))
	require.NoError(t, store.SetOrgConfig(ctx, 1, domain.OrgConfigModelSource, string(domain.ModelSourceOpenAI)))

	f := &fixture{store: store, llm: &scriptedLLM{}, vectors: vectorstore.NewMemory(), agentID: agent.ID, root: t.TempDir()}
	clients := func(apiKey string) llm.LLMClient {
		f.keys = append(f.keys, apiKey)
		return f.llm
	}
	f.s = NewSummarizer(store, clients, f.vectors, FileLoader{Root: f.root}, "gpt-3.5-turbo")
	return f
}

func (f *fixture) addResource(t *testing.T, name, content string, summary *string, updated time.Time) domain.Resource {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.root, name), []byte(content), 0o600))
	r := domain.Resource{
		AgentID:     f.agentID,
		Name:        name,
		Path:        name,
		StorageType: domain.StorageTypeFile,
		Channel:     domain.ChannelInput,
		Summary:     summary,
		CreatedAt:   updated,
		UpdatedAt:   updated,
	}
	require.NoError(t, f.store.CreateResource(context.Background(), &r))
	return r
}

func strPtr(s string) *string { return &s }

func TestAddToVectorStoreAndCreateSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.addResource(t, "a.txt", "alpha", nil, time.Now())

	docs := []domain.Document{{Text: "alpha facts"}}
	require.NoError(t, f.s.AddToVectorStoreAndCreateSummary(ctx, f.agentID, r.ID, docs))

	got, err := f.store.GetResource(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "summary of document", *got.Summary)
	assert.Equal(t, []string{"sk-org"}, f.keys)

	hits, err := f.vectors.Search(ctx, "1", "alpha", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestAddToVectorStoreKeepsGoingWhenLLMFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.addResource(t, "a.txt", "alpha", strPtr("stale"), time.Now())
	f.llm.fail = true

	require.NoError(t, f.s.AddToVectorStoreAndCreateSummary(ctx, f.agentID, r.ID, []domain.Document{{Text: "alpha"}}))

	got, err := f.store.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Summary)
}

func TestSummaryPromptKeepsRunesWhole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.addResource(t, "long.txt", "x", nil, time.Now())

	// the cut point lands inside a two-byte rune
	text := "a" + strings.Repeat("é", maxPromptChars/2)
	require.NoError(t, f.s.AddToVectorStoreAndCreateSummary(ctx, f.agentID, r.ID, []domain.Document{{Text: text}}))

	require.Len(t, f.llm.prompts, 1)
	assert.True(t, utf8.ValidString(f.llm.prompts[0]))
	assert.NotContains(t, f.llm.prompts[0], string(utf8.RuneError))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "ab", clip("abc", 2))
	assert.Equal(t, "a", clip("aé", 2))
	assert.Equal(t, "aé", clip("aéb", 3))
}

func TestGenerateAgentSummary(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("No Resources", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.s.GenerateAgentSummary(ctx, f.agentID, true))
		_, ok, err := f.store.GetAgentConfig(ctx, f.agentID, domain.AgentConfigResourceSummary)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Single Summary Used As Is", func(t *testing.T) {
		f := newFixture(t)
		f.addResource(t, "a.txt", "alpha", strPtr("alpha summary"), base)

		require.NoError(t, f.s.GenerateAgentSummary(ctx, f.agentID, false))

		summary, ok, err := f.store.GetAgentConfig(ctx, f.agentID, domain.AgentConfigResourceSummary)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "alpha summary", summary)
		assert.Empty(t, f.llm.prompts)

		last, ok, err := f.store.GetAgentConfig(ctx, f.agentID, domain.AgentConfigLastResourceTime)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, base.Format(time.RFC3339Nano), last)
	})

	t.Run("Several Summaries Combined", func(t *testing.T) {
		f := newFixture(t)
		f.addResource(t, "a.txt", "alpha", strPtr("alpha summary"), base)
		f.addResource(t, "b.txt", "beta", strPtr("beta summary"), base.Add(time.Minute))

		require.NoError(t, f.s.GenerateAgentSummary(ctx, f.agentID, false))

		summary, _, err := f.store.GetAgentConfig(ctx, f.agentID, domain.AgentConfigResourceSummary)
		require.NoError(t, err)
		assert.Equal(t, "combined summary", summary)
		require.Len(t, f.llm.prompts, 1)
		assert.Contains(t, f.llm.prompts[0], "- alpha summary\n- beta summary")
	})

	t.Run("Unchanged Resources Skipped", func(t *testing.T) {
		f := newFixture(t)
		f.addResource(t, "a.txt", "alpha", strPtr("alpha summary"), base)
		require.NoError(t, f.s.GenerateAgentSummary(ctx, f.agentID, false))
		require.NoError(t, f.store.SetAgentConfig(ctx, f.agentID, domain.AgentConfigResourceSummary, "kept"))

		require.NoError(t, f.s.GenerateAgentSummary(ctx, f.agentID, false))
		summary, _, err := f.store.GetAgentConfig(ctx, f.agentID, domain.AgentConfigResourceSummary)
		require.NoError(t, err)
		assert.Equal(t, "kept", summary)

		require.NoError(t, f.s.GenerateAgentSummary(ctx, f.agentID, true))
		summary, _, err = f.store.GetAgentConfig(ctx, f.agentID, domain.AgentConfigResourceSummary)
		require.NoError(t, err)
		assert.Equal(t, "alpha summary", summary)
	})

	t.Run("Generate All Summarizes Missing", func(t *testing.T) {
		f := newFixture(t)
		r := f.addResource(t, "a.txt", "alpha body", nil, base)

		require.NoError(t, f.s.GenerateAgentSummary(ctx, f.agentID, true))

		summary, _, err := f.store.GetAgentConfig(ctx, f.agentID, domain.AgentConfigResourceSummary)
		require.NoError(t, err)
		assert.Equal(t, "summary of document", summary)
		require.Len(t, f.llm.prompts, 1)
		assert.Contains(t, f.llm.prompts[0], "alpha body")

		got, err := f.store.GetResource(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Summary)
	})

	t.Run("Unknown Agent", func(t *testing.T) {
		f := newFixture(t)
		r := domain.Resource{AgentID: 999, Name: "x", Path: "x", StorageType: domain.StorageTypeFile, Channel: domain.ChannelInput}
		require.NoError(t, f.store.CreateResource(ctx, &r))

		err := f.s.GenerateAgentSummary(ctx, 999, false)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestFetchOrCreateAgentResourceSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("Default When Nothing Summarized", func(t *testing.T) {
		f := newFixture(t)
		summary, err := f.s.FetchOrCreateAgentResourceSummary(ctx, f.agentID, "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", summary)
	})

	t.Run("Generated Summary", func(t *testing.T) {
		f := newFixture(t)
		f.addResource(t, "a.txt", "alpha body", nil, time.Now())

		summary, err := f.s.FetchOrCreateAgentResourceSummary(ctx, f.agentID, "fallback")
		require.NoError(t, err)
		assert.Equal(t, "summary of document", summary)
	})

	t.Run("Google Palm Skipped", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SetOrgConfig(ctx, 1, domain.OrgConfigModelSource, string(domain.ModelSourceGooglePalm)))
		f.addResource(t, "a.txt", "alpha body", nil, time.Now())

		summary, err := f.s.FetchOrCreateAgentResourceSummary(ctx, f.agentID, "fallback")
		require.NoError(t, err)
		assert.Empty(t, summary)
		assert.Empty(t, f.llm.prompts)
	})
}
