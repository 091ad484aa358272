// Package reward computes the shaped scalar reward for a completed learner
// state transition. The reward is a sum of independently weighted,
// config-driven components, each guarded by a precondition; every component
// is individually retrievable through the Breakdown for observability and
// testing. The final total is clipped (or tanh-scaled) to a bounded range to
// keep the value table numerically stable.
package reward

import (
	"math"
	"sync"

	"github.com/tutorloop/tutorloop/internal/cluster"
	"github.com/tutorloop/tutorloop/internal/config"
	"github.com/tutorloop/tutorloop/internal/events"
	"github.com/tutorloop/tutorloop/internal/state"
)

// failingScore is the score below which an attempt counts as a failure.
const failingScore = 0.4

// WeightedOutcome is a learning outcome tied to the activity the learner
// acted on, with its exam weight already resolved by the caller.
type WeightedOutcome struct {
	ID         string
	ExamWeight float64
}

// Outcome describes what the action just processed achieved.
type Outcome struct {
	// Completed is set when the activity was finished.
	Completed bool

	// Score is the normalized [0,1] score, valid only when HasScore.
	Score    float64
	HasScore bool

	// Progressed is set when the learner's best-known progress advanced.
	Progressed bool

	// DifficultyMatched is set when the completed activity matched the
	// difficulty that was requested for this learner. Weak-tier students
	// are rewarded for any progress regardless of this flag.
	DifficultyMatched bool

	// ActualSeconds and ExpectedSeconds feed the time-efficiency component.
	// Zero ExpectedSeconds disables it.
	ActualSeconds   float64
	ExpectedSeconds float64
}

// Failed reports whether the outcome counts as a failed attempt.
func (o Outcome) Failed() bool {
	return o.HasScore && o.Score < failingScore
}

// TransitionInput carries everything the engine needs to score one
// transition.
type TransitionInput struct {
	State     state.State
	Previous  *state.State // nil for a fresh context
	Kind      events.ActionKind
	PrevKind  events.ActionKind
	HasPrev   bool // PrevKind is valid
	Tier      cluster.Tier
	Outcome   Outcome
	StudentID int64

	// Outcomes are the learning outcomes assessed by the activity, with
	// exam weights resolved. Empty when the activity assesses none.
	Outcomes []WeightedOutcome
}

// Breakdown is the per-component reward decomposition. Total is the clipped
// sum; Raw the unclipped one.
type Breakdown struct {
	Completion       float64 `json:"completion,omitempty"`
	ScoreImprovement float64 `json:"score_improvement,omitempty"`
	Milestone        float64 `json:"milestone,omitempty"`
	HighScore        float64 `json:"high_score,omitempty"`
	Progression      float64 `json:"progression,omitempty"`
	TimeEfficiency   float64 `json:"time_efficiency,omitempty"`
	Engagement       float64 `json:"engagement,omitempty"`
	PhaseAlignment   float64 `json:"phase_alignment,omitempty"`
	Failure          float64 `json:"failure,omitempty"`
	LowEngagement    float64 `json:"low_engagement,omitempty"`
	Sequence         float64 `json:"sequence,omitempty"`
	Mastery          float64 `json:"mastery,omitempty"`

	Raw   float64 `json:"raw"`
	Total float64 `json:"total"`
}

// Components returns the named non-zero components, for decision tracing.
func (b Breakdown) Components() map[string]float64 {
	out := make(map[string]float64)
	add := func(name string, v float64) {
		if v != 0 {
			out[name] = v
		}
	}
	add("completion", b.Completion)
	add("score_improvement", b.ScoreImprovement)
	add("milestone", b.Milestone)
	add("high_score", b.HighScore)
	add("progression", b.Progression)
	add("time_efficiency", b.TimeEfficiency)
	add("engagement", b.Engagement)
	add("phase_alignment", b.PhaseAlignment)
	add("failure", b.Failure)
	add("low_engagement", b.LowEngagement)
	add("sequence", b.Sequence)
	add("mastery", b.Mastery)
	return out
}

// Engine computes rewards. It owns the per-student mastery tracker and the
// one-time milestone record; everything else it needs arrives per call.
// Safe for concurrent use.
type Engine struct {
	cfg     config.RewardConfig
	mastery *MasteryTracker

	milestones milestoneSet
}

// NewEngine creates a reward engine with the given weights.
func NewEngine(cfg config.RewardConfig) *Engine {
	return &Engine{
		cfg:     cfg,
		mastery: NewMasteryTracker(),
	}
}

// Mastery exposes the tracker, for persistence and inspection.
func (e *Engine) Mastery() *MasteryTracker { return e.mastery }

// Evaluate scores one transition and returns the full breakdown.
// It mutates mastery (EMA update per assessed outcome) and the per-student
// milestone record as side effects; everything else is a pure function of
// the input and configuration.
func (e *Engine) Evaluate(in TransitionInput) Breakdown {
	tier := string(in.Tier)
	var b Breakdown

	if in.Outcome.Completed {
		b.Completion = e.cfg.CompletionBonus[tier]
	}

	if in.Outcome.HasScore && in.Previous != nil {
		if gain := in.Outcome.Score - in.Previous.ScoreBin; gain > 0 {
			b.ScoreImprovement = gain * e.cfg.ScoreImprovementMultiplier
		}
	}

	// One-time milestone for weak-tier students crossing the threshold.
	if in.Tier == cluster.TierWeak && in.Outcome.HasScore &&
		in.Outcome.Score >= e.cfg.MilestoneScore &&
		e.milestones.mark(in.StudentID) {
		b.Milestone = e.cfg.MilestoneBonus
	}

	if in.Outcome.HasScore && in.Outcome.Score >= e.cfg.HighScore {
		b.HighScore = e.cfg.HighScoreBonus
	}

	if in.Outcome.Progressed {
		// Weak tier rewards any progress; medium/strong require the
		// difficulty the learner was steered toward.
		if in.Tier == cluster.TierWeak || in.Outcome.DifficultyMatched {
			b.Progression = e.cfg.ProgressionBonus[tier]
		}
	}

	if in.Tier != cluster.TierWeak &&
		in.Outcome.ExpectedSeconds > 0 && in.Outcome.ActualSeconds > 0 &&
		in.Outcome.ActualSeconds < e.cfg.TimeEfficiencyRatio*in.Outcome.ExpectedSeconds {
		b.TimeEfficiency = e.cfg.TimeEfficiencyBonus
	}

	b.Engagement = e.cfg.EngagementBonus[string(in.State.Engagement)]

	if phaseAligned(in.State.Phase, in.Kind) {
		b.PhaseAlignment = e.cfg.PhaseBonus[string(in.State.Phase)]
	}

	if in.Outcome.Failed() {
		b.Failure = e.cfg.FailurePenalty[tier]
	}

	if in.State.Engagement == state.EngagementLow {
		b.LowEngagement = e.cfg.LowEngagementPenalty[tier]
	}

	if in.HasPrev {
		if scale := SequenceScale(in.PrevKind, in.Kind); scale > 0 {
			b.Sequence = scale * e.cfg.SequenceBonus[tier]
		}
	}

	b.Mastery = e.masteryBonus(in)

	b.Raw = b.Completion + b.ScoreImprovement + b.Milestone + b.HighScore +
		b.Progression + b.TimeEfficiency + b.Engagement + b.PhaseAlignment +
		b.Failure + b.LowEngagement + b.Sequence + b.Mastery
	b.Total = e.bound(b.Raw)

	return b
}

// masteryBonus runs the EMA update for every outcome the activity assesses
// and accumulates the mastery reward term. The (2 - old) factor deliberately
// over-weights improving already-weak outcomes; the constants come from
// empirical tuning (see config.RewardConfig).
func (e *Engine) masteryBonus(in TransitionInput) float64 {
	if len(in.Outcomes) == 0 {
		return 0
	}

	tier := string(in.Tier)
	alpha := e.cfg.MasteryAlpha[tier]
	clusterBonus := e.cfg.MasteryClusterBonus[tier]
	target := masteryTarget(in.Outcome)

	var bonus float64
	for _, lo := range in.Outcomes {
		old, updated := e.mastery.Update(in.StudentID, lo.ID, target, alpha)
		delta := updated - old
		bonus += delta * lo.ExamWeight * clusterBonus * (2.0 - old) * 10.0
	}
	return bonus
}

// masteryTarget derives the EMA target from the outcome: the score when one
// was recorded, otherwise a fixed target for completion or mere exposure.
func masteryTarget(o Outcome) float64 {
	switch {
	case o.HasScore:
		return o.Score
	case o.Completed:
		return 0.8
	default:
		return 0.4
	}
}

// phaseAligned reports whether the action kind fits the learning phase.
func phaseAligned(phase state.LearningPhase, kind events.ActionKind) bool {
	switch phase {
	case state.PhaseActive:
		return kind.IsActive()
	case state.PhaseReflective:
		return kind.IsReflective()
	default:
		return !kind.IsActive() && !kind.IsReflective()
	}
}

// bound clips or tanh-scales the total into [-Clip, +Clip].
func (e *Engine) bound(raw float64) float64 {
	clip := e.cfg.Clip
	if clip <= 0 {
		return raw
	}
	if e.cfg.UseTanh {
		return clip * math.Tanh(raw/clip)
	}
	if raw > clip {
		return clip
	}
	if raw < -clip {
		return -clip
	}
	return raw
}

// milestoneSet records which students already earned the milestone bonus.
type milestoneSet struct {
	mu   sync.Mutex
	seen map[int64]bool
}

// mark returns true exactly once per student.
func (m *milestoneSet) mark(studentID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[int64]bool)
	}
	if m.seen[studentID] {
		return false
	}
	m.seen[studentID] = true
	return true
}
