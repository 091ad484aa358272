// Package course defines the read-only course-structure collaborator: the
// ordered lessons of a course, the activities inside each lesson, and the
// mapping from activities to learning outcomes. The recommendation core
// treats every implementation as potentially slow and hides it behind
// timeouts; errors at this boundary degrade to defaults, never crash the
// pipeline.
package course

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a course, lesson or activity is unknown.
var ErrNotFound = errors.New("course: not found")

// Activity is one addressable unit of course content (a quiz, an
// assignment, a page, a forum).
type Activity struct {
	ID       int64  `json:"id" yaml:"id"`
	LessonID int64  `json:"lesson_id" yaml:"lesson_id"`
	Name     string `json:"name" yaml:"name"`

	// Type is the module type: "quiz", "assign", "forum", "resource",
	// "page". Used to bind recommended action kinds to concrete targets.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Outcomes lists the learning-outcome ids this activity assesses.
	Outcomes []string `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`

	// ExpectedSeconds is the expected time on task, used by the
	// time-efficiency reward component. Zero means unknown.
	ExpectedSeconds float64 `json:"expected_seconds,omitempty" yaml:"expected_seconds,omitempty"`
}

// Lesson is one ordered module of a course.
type Lesson struct {
	ID         int64      `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Activities []Activity `json:"activities,omitempty" yaml:"activities,omitempty"`
}

// Course is the full structure of one course.
type Course struct {
	ID      int64    `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Lessons []Lesson `json:"lessons" yaml:"lessons"`

	// OutcomeWeights maps learning-outcome id to its exam weight.
	OutcomeWeights map[string]float64 `json:"outcome_weights,omitempty" yaml:"outcome_weights,omitempty"`
}

// Progression partitions a course's lessons relative to where the learner
// currently is.
type Progression struct {
	Past    map[int64]bool
	Current int64
	Future  map[int64]bool
}

// Structure is the course-structure collaborator contract.
type Structure interface {
	// ResolveLesson maps a raw context instance (activity id) to the lesson
	// containing it. ok is false when the instance is unknown.
	ResolveLesson(ctx context.Context, courseID, contextInstanceID int64) (lessonID int64, ok bool, err error)

	// LessonName returns the display name of a lesson.
	LessonName(ctx context.Context, courseID, lessonID int64) (string, error)

	// LessonIndex returns the zero-based position of a lesson in course order.
	LessonIndex(ctx context.Context, courseID, lessonID int64) (int, error)

	// Progression returns the past/current/future lesson sets for a user.
	Progression(ctx context.Context, userID, courseID int64) (Progression, error)

	// Activities returns the activities of a lesson.
	Activities(ctx context.Context, courseID, lessonID int64) ([]Activity, error)

	// ActivityOutcomes returns the learning-outcome ids tied to an activity.
	ActivityOutcomes(ctx context.Context, courseID, activityID int64) ([]string, error)

	// OutcomeWeight returns the exam weight of a learning outcome.
	OutcomeWeight(ctx context.Context, courseID int64, outcomeID string) (float64, error)
}

// ModuleProgress is the optional progress-enrichment collaborator payload.
type ModuleProgress struct {
	Progress       float64
	CompletedCount int
	TotalCount     int
}

// ProgressSource is the optional progress-enrichment collaborator contract.
// Implementations may be absent; the engine proceeds with event-derived
// progress when no source is configured or a lookup fails.
type ProgressSource interface {
	ModuleProgress(ctx context.Context, userID, lessonID int64) (ModuleProgress, error)
	UserScores(ctx context.Context, userID, lessonID int64) ([]float64, error)
}
