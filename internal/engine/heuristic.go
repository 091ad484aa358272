package engine

import (
	"github.com/tutorloop/tutorloop/internal/catalog"
	"github.com/tutorloop/tutorloop/internal/cluster"
	"github.com/tutorloop/tutorloop/internal/events"
	"github.com/tutorloop/tutorloop/internal/state"
)

// heuristicRank orders candidate actions by pedagogical rules. It is the
// cold-start fallback used whenever every candidate still carries the
// never-seen default value, so recommendations stay sensible before the
// value table has signal.
//
// The ordering favors kinds that fit the learner's phase, nudges weak-tier
// students toward review and current content, and prefers the current
// temporal context over past/future.
func heuristicRank(s state.State, candidates []catalog.Action) []catalog.Action {
	scored := make([]struct {
		action catalog.Action
		score  float64
	}, len(candidates))

	for i, a := range candidates {
		scored[i].action = a
		scored[i].score = heuristicScore(s, a)
	}

	// Insertion sort keeps the original catalog order for ties, which makes
	// the fallback deterministic and easy to reason about in tests.
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].score > scored[j-1].score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}

	out := make([]catalog.Action, len(scored))
	for i := range scored {
		out[i] = scored[i].action
	}
	return out
}

// heuristicScore rates one candidate action against the learner state.
func heuristicScore(s state.State, a catalog.Action) float64 {
	var score float64

	// Phase fit dominates.
	switch s.Phase {
	case state.PhasePre:
		switch a.Kind {
		case events.ActionViewContent, events.ActionDownloadResource:
			score += 3
		case events.ActionViewAssignment, events.ActionViewForum:
			score += 2
		case events.ActionAttemptQuiz:
			score += 1
		}
	case state.PhaseActive:
		switch a.Kind {
		case events.ActionAttemptQuiz, events.ActionSubmitQuiz:
			score += 3
		case events.ActionSubmitAssignment:
			score += 2.5
		case events.ActionReviewQuiz:
			score += 1
		}
	case state.PhaseReflective:
		switch a.Kind {
		case events.ActionReviewQuiz:
			score += 3
		case events.ActionPostForum, events.ActionViewForum:
			score += 2
		case events.ActionAttemptQuiz:
			score += 1.5
		}
	}

	// Current content first; revisiting beats skipping ahead.
	switch a.Context {
	case catalog.ContextCurrent:
		score += 1.5
	case catalog.ContextPast:
		score += 0.5
	}

	// Struggling students are steered to consolidation, strong ones ahead.
	switch s.Tier {
	case cluster.TierWeak:
		if a.Context == catalog.ContextPast && a.Kind == events.ActionReviewQuiz {
			score += 1
		}
		if a.Context == catalog.ContextFuture {
			score -= 1
		}
	case cluster.TierStrong:
		if a.Context == catalog.ContextFuture && s.ProgressBin >= 0.75 {
			score += 1
		}
	}

	// Low scores call for review before new attempts.
	if s.ScoreBin <= 0.5 && a.Kind == events.ActionReviewQuiz {
		score += 0.5
	}

	return score
}
