package apm

import (
	"context"
	"sort"
	"time"

	"github.com/xiaot623/gogo/apm/internal/domain"
)

// CreatedAtLayout renders run timestamps, e.g. "05 March 2024 14:07".
const CreatedAtLayout = "02 January 2006 15:04"

// GMT is the fallback zone for agents without a usable timezone.
var GMT = time.FixedZone("GMT", 0)

// CorrelatedEvents are the event names the correlator needs.
var CorrelatedEvents = []domain.EventName{
	domain.EventRunCreated,
	domain.EventRunCompleted,
	domain.EventRunIterationLimitCrossed,
	domain.EventToolUsed,
	domain.EventAgentCreated,
}

// LocationFunc resolves the zone an agent's timestamps are rendered in. It
// must not fail; implementations fall back to GMT.
type LocationFunc func(ctx context.Context, agentID int64) *time.Location

// Run is a window reduced to what the tool report needs.
type Run struct {
	Window
	Terminated     bool
	TokensConsumed int64
	Calls          int64
	Name           string
	ToolKeys       map[string]struct{}
}

// Summarize folds a window's terminal and tool_used events. A run may emit
// several terminal events; their counts are summed and the greatest name wins.
func Summarize(w Window) Run {
	run := Run{Window: w, ToolKeys: make(map[string]struct{})}
	for _, e := range w.Events {
		switch {
		case e.Name.IsTerminal():
			run.Terminated = true
			if p, ok := e.Properties.(domain.RunEndedProperties); ok {
				run.TokensConsumed += p.TokensConsumed
				run.Calls += p.Calls
				if p.Name > run.Name {
					run.Name = p.Name
				}
			}
		case e.Name == domain.EventToolUsed && e.ToolKey != "":
			run.ToolKeys[e.ToolKey] = struct{}{}
		}
	}
	return run
}

type agentMeta struct {
	name  string
	model string
}

// Correlator pairs runs with the tools used inside them.
type Correlator struct {
	location LocationFunc
}

// NewCorrelator creates a correlator. A nil location renders everything in GMT.
func NewCorrelator(location LocationFunc) *Correlator {
	if location == nil {
		location = func(context.Context, int64) *time.Location { return GMT }
	}
	return &Correlator{location: location}
}

// ToolEvents reports every completed run in which toolKey was used, newest
// first. events must be ordered by (agent_id, id).
func (c *Correlator) ToolEvents(ctx context.Context, events []domain.Event, toolKey string) []domain.ToolEventRecord {
	meta := collectAgentMeta(events)
	locations := make(map[int64]*time.Location)

	type keyed struct {
		record domain.ToolEventRecord
		wall   time.Time
	}
	var results []keyed

	for _, w := range Windows(events) {
		run := Summarize(w)
		if !run.Terminated {
			continue
		}
		if _, used := run.ToolKeys[toolKey]; !used {
			continue
		}

		loc, ok := locations[w.AgentID]
		if !ok {
			loc = c.location(ctx, w.AgentID)
			if loc == nil {
				loc = GMT
			}
			locations[w.AgentID] = loc
		}
		local := w.Anchor.CreatedAt.In(loc)

		m := meta[w.AgentID]
		results = append(results, keyed{
			record: domain.ToolEventRecord{
				AgentID:            w.AgentID,
				CreatedAt:          local.Format(CreatedAtLayout),
				AgentExecutionID:   w.Anchor.ExecutionID(),
				TokensConsumed:     run.TokensConsumed,
				Calls:              run.Calls,
				AgentExecutionName: run.Name,
				OtherTools:         otherTools(run.ToolKeys, toolKey),
				AgentName:          m.name,
				Model:              m.model,
			},
			wall: wallMinute(local),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].wall.After(results[j].wall)
	})

	records := make([]domain.ToolEventRecord, len(results))
	for i, r := range results {
		records[i] = r.record
	}
	return records
}

// wallMinute is the instant the rendered string denotes, read as a naive
// wall-clock time.
func wallMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func otherTools(keys map[string]struct{}, target string) []string {
	var others []string
	for k := range keys {
		if k != target {
			others = append(others, k)
		}
	}
	sort.Strings(others)
	return others
}

func collectAgentMeta(events []domain.Event) map[int64]agentMeta {
	meta := make(map[int64]agentMeta)
	for _, e := range events {
		p, ok := e.Properties.(domain.AgentCreatedProperties)
		if !ok {
			continue
		}
		m := meta[e.AgentID]
		if p.AgentName > m.name {
			m.name = p.AgentName
		}
		if p.Model > m.model {
			m.model = p.Model
		}
		meta[e.AgentID] = m
	}
	return meta
}
