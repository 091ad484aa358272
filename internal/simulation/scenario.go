// Package simulation generates synthetic learner event streams and drives
// them through a real engine. It serves two purposes: pre-training the
// value table before a deployment sees live traffic, and multi-session
// behavioral tests of the full pipeline.
package simulation

import (
	"github.com/tutorloop/tutorloop/internal/course"
)

// Archetype describes how a synthetic learner behaves. Score outcomes are
// sampled from a normal distribution clamped to [0, 1].
type Archetype struct {
	Name string

	// ScoreMean and ScoreSpread parameterize quiz outcomes.
	ScoreMean   float64
	ScoreSpread float64

	// ReviewProb is the chance of reviewing a quiz after submitting it.
	ReviewProb float64

	// ForumProb is the chance of a forum post per lesson.
	ForumProb float64

	// RetryProb is the chance of re-attempting a failed quiz within the
	// same session.
	RetryProb float64

	// PassThreshold is the score needed before the learner moves to the
	// next lesson.
	PassThreshold float64
}

// The stock archetypes mirror the performance tiers the cluster layer
// distinguishes.
var (
	Struggling = Archetype{
		Name:          "struggling",
		ScoreMean:     0.45,
		ScoreSpread:   0.15,
		ReviewProb:    0.2,
		ForumProb:     0.1,
		RetryProb:     0.5,
		PassThreshold: 0.5,
	}
	Steady = Archetype{
		Name:          "steady",
		ScoreMean:     0.65,
		ScoreSpread:   0.12,
		ReviewProb:    0.4,
		ForumProb:     0.25,
		RetryProb:     0.6,
		PassThreshold: 0.55,
	}
	Advanced = Archetype{
		Name:          "advanced",
		ScoreMean:     0.85,
		ScoreSpread:   0.08,
		ReviewProb:    0.6,
		ForumProb:     0.4,
		RetryProb:     0.8,
		PassThreshold: 0.6,
	}
)

// Archetypes lists the stock archetypes weakest first.
func Archetypes() []Archetype {
	return []Archetype{Struggling, Steady, Advanced}
}

// LearnerSpec binds a synthetic user id to an archetype.
type LearnerSpec struct {
	UserID    int64
	Archetype Archetype
}

// Scenario defines one simulation experiment.
type Scenario struct {
	Course   course.Course
	Learners []LearnerSpec

	// Sessions is how many study sessions each learner performs. One
	// session covers one lesson attempt (events, quiz, maybe review).
	Sessions int

	// Seed makes the run reproducible.
	Seed int64
}

// Result aggregates what a run produced.
type Result struct {
	EventsEmitted int
	Transitions   int
	RewardSum     float64
	RewardCount   int

	// LessonReached maps user id to the furthest lesson position reached.
	LessonReached map[int64]int
}

// MeanReward returns the average transition reward, 0 when none fired.
func (r Result) MeanReward() float64 {
	if r.RewardCount == 0 {
		return 0
	}
	return r.RewardSum / float64(r.RewardCount)
}
