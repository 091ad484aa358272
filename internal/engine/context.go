package engine

import (
	"sync"
	"time"

	"github.com/tutorloop/tutorloop/internal/cluster"
	"github.com/tutorloop/tutorloop/internal/course"
	"github.com/tutorloop/tutorloop/internal/events"
	"github.com/tutorloop/tutorloop/internal/state"
)

// learnerContext is the only long-lived mutable entity in the pipeline: one
// per (user, course, lesson). Its mutex gives the single-writer-per-key
// discipline — events for the same key are processed strictly in arrival
// order, while distinct keys proceed concurrently.
type learnerContext struct {
	mu  sync.Mutex
	key events.Key

	// buffer holds events awaiting the next trigger.
	buffer []*events.CanonicalEvent

	// history holds processed events, trimmed to the configured window.
	history []*events.CanonicalEvent

	// current is the last encoded state, nil until the first transition.
	current *state.State

	// lastProcessedKind is the action kind of the newest event in the last
	// processed batch; the kind-change trigger compares against it.
	lastProcessedKind    events.ActionKind
	hasLastProcessedKind bool

	// Rolling accumulators across the context's lifetime.
	scoreSum     float64
	scoreCount   int
	bestProgress float64
	totalSeconds float64

	// tier is resolved once per context from the cluster collaborator.
	tier     cluster.Tier
	tierKnown bool

	// progression is the cached lesson-progression set, refreshed when
	// older than progressionTTL.
	progression   course.Progression
	progressionAt time.Time

	lastUpdate time.Time // last trigger-driven state advance
	createdAt  time.Time
}

// progressionTTL bounds how stale a cached progression set may get.
const progressionTTL = 10 * time.Minute

func newLearnerContext(key events.Key, now time.Time) *learnerContext {
	return &learnerContext{
		key:        key,
		createdAt:  now,
		lastUpdate: now,
	}
}

// recentKinds returns the action kinds of processed history plus the
// current buffer, oldest first.
func (lc *learnerContext) recentKinds() []events.ActionKind {
	kinds := make([]events.ActionKind, 0, len(lc.history)+len(lc.buffer))
	for _, e := range lc.history {
		kinds = append(kinds, e.Kind)
	}
	for _, e := range lc.buffer {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// avgScore returns the rolling mean score; zero when no scores were seen.
func (lc *learnerContext) avgScore() float64 {
	if lc.scoreCount == 0 {
		return 0
	}
	return lc.scoreSum / float64(lc.scoreCount)
}

// absorb folds a buffered batch into the rolling accumulators.
func (lc *learnerContext) absorb(batch []*events.CanonicalEvent) {
	for _, e := range batch {
		if e.HasScore {
			lc.scoreSum += e.Score
			lc.scoreCount++
		}
		if e.HasProgress && e.Progress > lc.bestProgress {
			lc.bestProgress = e.Progress
		}
		if e.HasDuration {
			lc.totalSeconds += e.Duration
		}
	}
}

// moveBufferToHistory appends the buffer to history, trims history to
// window, and clears the buffer.
func (lc *learnerContext) moveBufferToHistory(window int) {
	lc.history = append(lc.history, lc.buffer...)
	if len(lc.history) > window {
		lc.history = lc.history[len(lc.history)-window:]
	}
	lc.buffer = lc.buffer[:0]
}
