package apm

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/gogo/apm/internal/domain"
)

var base = time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

func runCreated(id, agent int64, execID string, at time.Time) domain.Event {
	return domain.Event{ID: id, AgentID: agent, Name: domain.EventRunCreated,
		Properties: domain.RunCreatedProperties{AgentExecutionID: domain.FlexString(execID)}, CreatedAt: at}
}

func runCompleted(id, agent int64, name string, tokens, calls int64) domain.Event {
	return domain.Event{ID: id, AgentID: agent, Name: domain.EventRunCompleted,
		Properties: domain.RunEndedProperties{Name: name, TokensConsumed: tokens, Calls: calls}}
}

func toolUsed(id, agent int64, tool string) domain.Event {
	return domain.Event{ID: id, AgentID: agent, Name: domain.EventToolUsed,
		Properties: domain.ToolUsedProperties{ToolName: tool}, ToolKey: domain.NormalizeToolName(tool)}
}

func agentCreated(id, agent int64, name, model string) domain.Event {
	return domain.Event{ID: id, AgentID: agent, Name: domain.EventAgentCreated,
		Properties: domain.AgentCreatedProperties{AgentName: name, Model: model}}
}

// byAgent orders events the way the store returns them.
func byAgent(events ...domain.Event) []domain.Event {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].AgentID != events[j].AgentID {
			return events[i].AgentID < events[j].AgentID
		}
		return events[i].ID < events[j].ID
	})
	return events
}

func TestWindowsBoundaries(t *testing.T) {
	const agentA, agentB = 1, 2
	events := byAgent(
		runCreated(10, agentA, "a-1", base),
		runCreated(30, agentB, "b-1", base),
		toolUsed(35, agentA, "search"),
		runCreated(50, agentA, "a-2", base),
		toolUsed(60, agentA, "search"),
	)

	windows := Windows(events)
	require.Len(t, windows, 3)

	assert.Equal(t, int64(agentA), windows[0].AgentID)
	assert.Equal(t, int64(10), windows[0].Start)
	assert.Equal(t, int64(50), windows[0].End)
	assert.True(t, windows[0].Contains(35))
	assert.False(t, windows[0].Contains(50))

	assert.Equal(t, int64(50), windows[1].Start)
	assert.Equal(t, Unbounded, windows[1].End)
	assert.True(t, windows[1].Contains(1<<40))

	assert.Equal(t, int64(agentB), windows[2].AgentID)
	assert.Equal(t, int64(30), windows[2].Start)
	assert.Equal(t, Unbounded, windows[2].End)
	assert.Empty(t, windows[2].Events)
}

func TestWindowsIgnoresEventsBeforeFirstRun(t *testing.T) {
	events := byAgent(
		agentCreated(1, 1, "scout", "gpt-4"),
		toolUsed(2, 1, "search"),
		runCreated(3, 1, "x", base),
	)
	windows := Windows(events)
	require.Len(t, windows, 1)
	assert.Empty(t, windows[0].Events)
}

func TestSummarizeSumsTerminalEvents(t *testing.T) {
	w := Window{AgentID: 1, Start: 1, End: Unbounded, Events: []domain.Event{
		runCompleted(2, 1, "alpha", 100, 2),
		{ID: 3, AgentID: 1, Name: domain.EventRunIterationLimitCrossed,
			Properties: domain.RunEndedProperties{Name: "beta", TokensConsumed: 50, Calls: 1}},
		toolUsed(4, 1, "Search"),
	}}

	run := Summarize(w)
	assert.True(t, run.Terminated)
	assert.Equal(t, int64(150), run.TokensConsumed)
	assert.Equal(t, int64(3), run.Calls)
	assert.Equal(t, "beta", run.Name)
	assert.Contains(t, run.ToolKeys, "search")
}

func TestToolEventsExcludesIncompleteAndIrrelevantRuns(t *testing.T) {
	events := byAgent(
		agentCreated(1, 1, "scout", "gpt-4"),
		runCreated(10, 1, "100", base),
		toolUsed(11, 1, "Search"),
		// no terminal event before the next run
		runCreated(20, 1, "101", base.Add(time.Hour)),
		toolUsed(21, 1, "Write File"),
		runCompleted(22, 1, "no search here", 10, 1),
		runCreated(30, 1, "102", base.Add(2*time.Hour)),
		toolUsed(31, 1, "Search"),
		toolUsed(32, 1, "Write File"),
		toolUsed(33, 1, "Write File"),
		runCompleted(34, 1, "summarize", 420, 7),
	)

	records := NewCorrelator(nil).ToolEvents(context.Background(), events, "search")
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, int64(1), r.AgentID)
	assert.Equal(t, "102", r.AgentExecutionID)
	assert.Equal(t, int64(420), r.TokensConsumed)
	assert.Equal(t, int64(7), r.Calls)
	assert.Equal(t, "summarize", r.AgentExecutionName)
	assert.Equal(t, []string{"writefile"}, r.OtherTools)
	assert.Equal(t, "scout", r.AgentName)
	assert.Equal(t, "gpt-4", r.Model)
	assert.Equal(t, "05 March 2024 11:30", r.CreatedAt)
}

func TestToolEventsOtherToolsNilWhenOnlyTarget(t *testing.T) {
	events := byAgent(
		runCreated(1, 1, "1", base),
		toolUsed(2, 1, "search"),
		runCompleted(3, 1, "r", 1, 1),
	)
	records := NewCorrelator(nil).ToolEvents(context.Background(), events, "search")
	require.Len(t, records, 1)
	assert.Nil(t, records[0].OtherTools)
	assert.Empty(t, records[0].AgentName)
}

func TestToolEventsNewestFirst(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	events := byAgent(
		runCreated(1, 1, "ten", at(10, 0)),
		toolUsed(2, 1, "search"),
		runCompleted(3, 1, "r", 1, 1),
		runCreated(4, 2, "nine-thirty", at(9, 30)),
		toolUsed(5, 2, "search"),
		runCompleted(6, 2, "r", 1, 1),
		runCreated(7, 3, "eleven-fifteen", at(11, 15)),
		toolUsed(8, 3, "search"),
		runCompleted(9, 3, "r", 1, 1),
	)

	records := NewCorrelator(nil).ToolEvents(context.Background(), events, "search")
	require.Len(t, records, 3)
	assert.Equal(t, "05 March 2024 11:15", records[0].CreatedAt)
	assert.Equal(t, "05 March 2024 10:00", records[1].CreatedAt)
	assert.Equal(t, "05 March 2024 09:30", records[2].CreatedAt)
}

func TestToolEventsRendersAgentLocation(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	events := byAgent(
		runCreated(1, 1, "1", base),
		toolUsed(2, 1, "search"),
		runCompleted(3, 1, "r", 1, 1),
		runCreated(4, 2, "2", base),
		toolUsed(5, 2, "search"),
		runCompleted(6, 2, "r", 1, 1),
	)

	lookups := 0
	correlator := NewCorrelator(func(_ context.Context, agentID int64) *time.Location {
		lookups++
		if agentID == 1 {
			return kolkata
		}
		return nil
	})

	records := correlator.ToolEvents(context.Background(), events, "search")
	require.Len(t, records, 2)
	assert.Equal(t, "05 March 2024 15:00", records[0].CreatedAt)
	assert.Equal(t, int64(1), records[0].AgentID)
	assert.Equal(t, "05 March 2024 09:30", records[1].CreatedAt)
	assert.Equal(t, 2, lookups)
}

func TestJoinToolkits(t *testing.T) {
	usage := []domain.ToolUsage{
		{ToolName: "Search", UniqueAgents: 2, TotalUsage: 3},
		{ToolName: "search", UniqueAgents: 1, TotalUsage: 1},
		{ToolName: "ThinkingTool", UniqueAgents: 1, TotalUsage: 1},
		{ToolName: "mystery", UniqueAgents: 1, TotalUsage: 1},
	}
	joined := JoinToolkits(usage, map[string]string{
		"Search":       "Search Toolkit",
		"ThinkingTool": "Thinking Toolkit",
	})

	require.Len(t, joined, 4)
	require.NotNil(t, joined[0].Toolkit)
	assert.Equal(t, "Search Toolkit", *joined[0].Toolkit)
	assert.Nil(t, joined[1].Toolkit)
	require.NotNil(t, joined[2].Toolkit)
	assert.Equal(t, "Thinking Toolkit", *joined[2].Toolkit)
	assert.Nil(t, joined[3].Toolkit)
	assert.Nil(t, usage[0].Toolkit)
}
