// Package state discretizes a learner's recent activity into the fixed-width
// state the value-table agent reasons over. Every component is drawn from a
// small pre-enumerated domain; that is what keeps the table tractable.
package state

import (
	"fmt"

	"github.com/tutorloop/tutorloop/internal/cluster"
	"github.com/tutorloop/tutorloop/internal/events"
)

// LearningPhase describes where in the learn/practice/review cycle the
// student currently is, derived from their most recent actions.
type LearningPhase string

const (
	PhasePre        LearningPhase = "pre"        // consuming content, not yet practicing
	PhaseActive     LearningPhase = "active"     // attempting and submitting work
	PhaseReflective LearningPhase = "reflective" // reviewing results, discussing
)

// EngagementLevel is a coarse activity-intensity bucket.
type EngagementLevel string

const (
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

// State is the discretized learner state. It is a comparable value type and
// is used directly as a map key in the value table; transitions always build
// a new State, never mutate one in place.
type State struct {
	Tier        cluster.Tier    `json:"tier"`
	LessonIndex int             `json:"lesson_index"`
	ProgressBin float64         `json:"progress_bin"`
	ScoreBin    float64         `json:"score_bin"`
	Phase       LearningPhase   `json:"phase"`
	Engagement  EngagementLevel `json:"engagement"`
}

// String renders the state compactly for logging and persistence keys.
func (s State) String() string {
	return fmt.Sprintf("%s|%d|%.2f|%.2f|%s|%s",
		s.Tier, s.LessonIndex, s.ProgressBin, s.ScoreBin, s.Phase, s.Engagement)
}

// QuartileBin discretizes a [0,1] value into {0.25, 0.5, 0.75, 1.0}.
// The binning is monotonic and idempotent: binning a binned value returns
// the same bin.
func QuartileBin(v float64) float64 {
	switch {
	case v <= 0.25:
		return 0.25
	case v <= 0.5:
		return 0.5
	case v <= 0.75:
		return 0.75
	default:
		return 1.0
	}
}

// engagementWeights scores each action kind by the effort it represents.
var engagementWeights = map[events.ActionKind]int{
	events.ActionViewContent:      1,
	events.ActionViewAssignment:   2,
	events.ActionAttemptQuiz:      4,
	events.ActionSubmitQuiz:       5,
	events.ActionReviewQuiz:       3,
	events.ActionSubmitAssignment: 5,
	events.ActionPostForum:        3,
	events.ActionViewForum:        1,
	events.ActionDownloadResource: 1,
}

const (
	phaseWindow      = 5  // events considered for learning phase
	engagementWindow = 10 // events considered for engagement level

	highEngagementScore   = 20
	mediumEngagementScore = 10

	reflectiveProgressGate = 0.6 // reflective phase requires real progress
)

// Encode builds the discretized state from a snapshot of learner context.
// recent is ordered oldest to newest. The function is pure: same inputs,
// same state.
func Encode(tier cluster.Tier, lessonIndex int, recent []events.ActionKind, progress, avgScore float64) State {
	return State{
		Tier:        tier,
		LessonIndex: lessonIndex,
		ProgressBin: QuartileBin(progress),
		ScoreBin:    QuartileBin(avgScore),
		Phase:       learningPhase(recent, progress),
		Engagement:  engagementLevel(recent),
	}
}

// learningPhase derives the phase from the last phaseWindow action kinds.
func learningPhase(recent []events.ActionKind, progress float64) LearningPhase {
	window := tail(recent, phaseWindow)

	var active, reflective int
	for _, k := range window {
		if k.IsActive() {
			active++
		}
		if k.IsReflective() {
			reflective++
		}
	}

	if active >= 2 {
		return PhaseActive
	}
	if reflective >= 2 && progress > reflectiveProgressGate {
		return PhaseReflective
	}
	return PhasePre
}

// engagementLevel sums effort weights over the last engagementWindow events.
func engagementLevel(recent []events.ActionKind) EngagementLevel {
	window := tail(recent, engagementWindow)

	total := 0
	for _, k := range window {
		total += engagementWeights[k]
	}

	switch {
	case total >= highEngagementScore:
		return EngagementHigh
	case total >= mediumEngagementScore:
		return EngagementMedium
	default:
		return EngagementLow
	}
}

// tail returns the last n elements of kinds (all of them when shorter).
func tail(kinds []events.ActionKind, n int) []events.ActionKind {
	if len(kinds) <= n {
		return kinds
	}
	return kinds[len(kinds)-n:]
}
