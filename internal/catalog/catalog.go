// Package catalog enumerates the addressable recommendation actions.
// An action is an (action kind, temporal context) pair with a stable integer
// index. Concrete course activities are not baked into the catalog — they
// are resolved lazily against the learner's current lesson progression at
// recommendation time.
package catalog

import (
	"fmt"

	"github.com/tutorloop/tutorloop/internal/events"
)

// TemporalContext places a candidate action relative to the learner's
// current lesson.
type TemporalContext string

const (
	ContextPast    TemporalContext = "past"    // content already passed (review)
	ContextCurrent TemporalContext = "current" // the lesson the learner is on
	ContextFuture  TemporalContext = "future"  // content not yet reached (preview)
)

// AllTemporalContexts lists the contexts in a stable order.
func AllTemporalContexts() []TemporalContext {
	return []TemporalContext{ContextPast, ContextCurrent, ContextFuture}
}

// Action is one addressable recommendation target.
type Action struct {
	Index   int               `json:"index"`
	Kind    events.ActionKind `json:"kind"`
	Context TemporalContext   `json:"context"`
}

// String renders the action for logs and explanations.
func (a Action) String() string {
	return fmt.Sprintf("%s@%s", a.Kind, a.Context)
}

// Catalog is the precomputed, read-only action set. Enumerated once at
// startup; all lookups are O(1). Safe for concurrent use.
type Catalog struct {
	actions []Action
	byPair  map[pairKey]int
	byKind  map[events.ActionKind][]Action
}

type pairKey struct {
	kind events.ActionKind
	tctx TemporalContext
}

// New enumerates every (kind, temporal context) pair in stable index order:
// kinds in events.AllActionKinds order, contexts in past/current/future
// order within each kind.
func New() *Catalog {
	c := &Catalog{
		byPair: make(map[pairKey]int),
		byKind: make(map[events.ActionKind][]Action),
	}
	for _, kind := range events.AllActionKinds() {
		for _, tctx := range AllTemporalContexts() {
			a := Action{Index: len(c.actions), Kind: kind, Context: tctx}
			c.actions = append(c.actions, a)
			c.byPair[pairKey{kind, tctx}] = a.Index
			c.byKind[kind] = append(c.byKind[kind], a)
		}
	}
	return c
}

// Size returns the number of actions in the catalog.
func (c *Catalog) Size() int { return len(c.actions) }

// Get returns the action at index. ok is false for out-of-range indices.
func (c *Catalog) Get(index int) (Action, bool) {
	if index < 0 || index >= len(c.actions) {
		return Action{}, false
	}
	return c.actions[index], true
}

// ByKind returns all actions of the given kind (one per temporal context).
// The returned slice is shared; callers must not mutate it.
func (c *Catalog) ByKind(kind events.ActionKind) []Action {
	return c.byKind[kind]
}

// Index returns the index for a (kind, context) pair. ok is false when the
// pair is not in the catalog; callers must fall back explicitly (see
// Fallback) rather than treat a miss as fatal.
func (c *Catalog) Index(kind events.ActionKind, tctx TemporalContext) (int, bool) {
	idx, ok := c.byPair[pairKey{kind, tctx}]
	return idx, ok
}

// Fallback resolves a (kind, context) request that missed the catalog.
// The search order is: same kind in any context, then any kind in the
// requested context, then the first catalog entry. It only fails on an
// empty catalog.
func (c *Catalog) Fallback(kind events.ActionKind, tctx TemporalContext) (Action, bool) {
	if idx, ok := c.Index(kind, tctx); ok {
		return c.actions[idx], true
	}
	if same := c.byKind[kind]; len(same) > 0 {
		return same[0], true
	}
	for _, a := range c.actions {
		if a.Context == tctx {
			return a, true
		}
	}
	if len(c.actions) > 0 {
		return c.actions[0], true
	}
	return Action{}, false
}

// All returns every action in index order. The slice is shared; callers
// must not mutate it.
func (c *Catalog) All() []Action { return c.actions }

// Indices returns the indices of every action, in order. Useful as the
// "all actions available" set for agent selection.
func (c *Catalog) Indices() []int {
	out := make([]int, len(c.actions))
	for i := range c.actions {
		out[i] = i
	}
	return out
}
