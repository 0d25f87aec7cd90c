package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/gogo/apm/internal/adapter/llm"
	"github.com/xiaot623/gogo/apm/internal/auth"
	"github.com/xiaot623/gogo/apm/internal/domain"
	"github.com/xiaot623/gogo/apm/internal/hub"
	"github.com/xiaot623/gogo/apm/internal/oauth1"
	"github.com/xiaot623/gogo/apm/internal/policy"
	"github.com/xiaot623/gogo/apm/internal/repository"
	"github.com/xiaot623/gogo/apm/internal/resource"
	"github.com/xiaot623/gogo/apm/internal/service"
	"github.com/xiaot623/gogo/apm/internal/toolkit"
	"github.com/xiaot623/gogo/apm/internal/vectorstore"
)

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub, *auth.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	files := resource.FileLoader{Root: t.TempDir()}
	clients := func(string) llm.LLMClient { return llm.NewMockClient() }
	summarizer := resource.NewSummarizer(db, clients, vectorstore.NewMemory(), files, "mock")

	h := hub.NewHub()
	go h.Run(ctx)

	svc := service.New(db, engine, h, summarizer, files, oauth1.NewSigner(""), toolkit.DefaultRegistry)
	manager := auth.NewManager("test-secret", time.Hour)

	srv := httptest.NewServer(NewServer(svc, h, manager))
	t.Cleanup(srv.Close)
	return srv, h, manager
}

func TestServerRequiresToken(t *testing.T) {
	srv, _, manager := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, err = http.Get(srv.URL + "/v1/analytics/tools/usage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := manager.Generate(1, "u-1")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/analytics/tools/usage", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var usage []domain.ToolUsage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&usage))
	assert.Empty(t, usage)
}

func TestServerStreamsRecordedEvents(t *testing.T) {
	srv, h, manager := newTestServer(t)

	token, err := manager.Generate(1, "u-1")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/stream?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return h.HasSubscribers(1) }, time.Second, 10*time.Millisecond)

	body := `{"agent_id":5,"event_name":"tool_used","event_property":{"tool_name":"ThinkingTool"}}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/events", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)

	var event domain.Event
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, domain.EventToolUsed, event.Name)
	assert.Equal(t, int64(5), event.AgentID)
}
