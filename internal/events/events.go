// Package events normalizes raw activity-log records into canonical events.
// Raw records arrive with inconsistent field names (Moodle webhook payloads,
// exported log rows); this package maps them onto a single typed event that
// the rest of the pipeline consumes.
package events

import (
	"time"
)

// ActionKind categorizes what a learner did in a single log event.
type ActionKind string

const (
	ActionViewContent      ActionKind = "view_content"
	ActionViewAssignment   ActionKind = "view_assignment"
	ActionAttemptQuiz      ActionKind = "attempt_quiz"
	ActionSubmitQuiz       ActionKind = "submit_quiz"
	ActionReviewQuiz       ActionKind = "review_quiz"
	ActionSubmitAssignment ActionKind = "submit_assignment"
	ActionPostForum        ActionKind = "post_forum"
	ActionViewForum        ActionKind = "view_forum"
	ActionDownloadResource ActionKind = "download_resource"
)

// AllActionKinds lists every action kind in a stable order.
// The order is load-bearing: it defines catalog index layout.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionViewContent,
		ActionViewAssignment,
		ActionAttemptQuiz,
		ActionSubmitQuiz,
		ActionReviewQuiz,
		ActionSubmitAssignment,
		ActionPostForum,
		ActionViewForum,
		ActionDownloadResource,
	}
}

// String returns the kind's wire form.
func (k ActionKind) String() string { return string(k) }

// IsActive reports whether the kind is a high-effort "doing" action
// (as opposed to consuming or reflecting on content).
func (k ActionKind) IsActive() bool {
	switch k {
	case ActionAttemptQuiz, ActionSubmitQuiz, ActionSubmitAssignment:
		return true
	}
	return false
}

// IsReflective reports whether the kind revisits or discusses prior work.
func (k ActionKind) IsReflective() bool {
	switch k {
	case ActionReviewQuiz, ActionPostForum:
		return true
	}
	return false
}

// CanonicalEvent is a single normalized learner action.
// Score and Progress are clamped to [0,1] at parse time; Has* flags
// distinguish "absent" from "zero". Events are immutable once created
// and discarded after aggregation — only derived statistics persist.
type CanonicalEvent struct {
	UserID     int64      `json:"user_id"`
	CourseID   int64      `json:"course_id"`
	LessonID   int64      `json:"lesson_id"`
	ActivityID int64      `json:"activity_id"` // the raw context instance the event targeted
	Kind       ActionKind `json:"kind"`
	Timestamp  time.Time  `json:"timestamp"`

	Score       float64 `json:"score,omitempty"`
	HasScore    bool    `json:"has_score,omitempty"`
	Progress    float64 `json:"progress,omitempty"`
	HasProgress bool    `json:"has_progress,omitempty"`
	Duration    float64 `json:"duration_seconds,omitempty"`
	HasDuration bool    `json:"has_duration,omitempty"`
}

// Key identifies the learner context an event belongs to.
type Key struct {
	UserID   int64
	CourseID int64
	LessonID int64
}

// ContextKey returns the (user, course, lesson) key for this event.
func (e *CanonicalEvent) ContextKey() Key {
	return Key{UserID: e.UserID, CourseID: e.CourseID, LessonID: e.LessonID}
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
