// Package apm reconstructs agent runs from the event log and correlates them
// with tool usage.
package apm

import "github.com/xiaot623/gogo/apm/internal/domain"

// Unbounded marks a window with no closing run_created event.
const Unbounded int64 = 0

// Window is the id interval [Start, End) of one run of an agent. It is
// anchored at a run_created event and ends at the agent's next run_created
// event, or is Unbounded.
type Window struct {
	AgentID int64
	Anchor  domain.Event
	Start   int64
	End     int64
	// Events are the agent's events inside the window, anchor excluded.
	Events []domain.Event
}

// Contains reports whether id falls inside the window.
func (w Window) Contains(id int64) bool {
	if id < w.Start {
		return false
	}
	return w.End == Unbounded || id < w.End
}

type windowState int

const (
	noOpenRun windowState = iota
	runOpen
)

// windowBuilder walks one agent's id-ordered stream.
type windowBuilder struct {
	state   windowState
	current Window
	out     []Window
}

func (b *windowBuilder) feed(e domain.Event) {
	if e.Name == domain.EventRunCreated {
		if b.state == runOpen {
			b.current.End = e.ID
			b.out = append(b.out, b.current)
		}
		b.current = Window{AgentID: e.AgentID, Anchor: e, Start: e.ID, End: Unbounded}
		b.state = runOpen
		return
	}
	if b.state == runOpen {
		b.current.Events = append(b.current.Events, e)
	}
}

func (b *windowBuilder) finish() []Window {
	if b.state == runOpen {
		b.out = append(b.out, b.current)
		b.state = noOpenRun
	}
	out := b.out
	b.out = nil
	return out
}

// Windows splits a stream ordered by (agent_id, id) into run windows in a
// single pass. Events that precede an agent's first run_created belong to no
// window.
func Windows(events []domain.Event) []Window {
	var (
		windows []Window
		b       windowBuilder
		agent   int64
		started bool
	)
	for _, e := range events {
		if !started || e.AgentID != agent {
			windows = append(windows, b.finish()...)
			agent = e.AgentID
			started = true
		}
		b.feed(e)
	}
	return append(windows, b.finish()...)
}
