package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubResolver implements LessonResolver with a fixed mapping.
type stubResolver struct {
	lessons map[int64]int64 // instance id -> lesson id
	err     error
	calls   int
}

func (s *stubResolver) ResolveLesson(_ context.Context, _ int64, instanceID int64) (int64, bool, error) {
	s.calls++
	if s.err != nil {
		return 0, false, s.err
	}
	lesson, ok := s.lessons[instanceID]
	return lesson, ok, nil
}

func newTestNormalizer(t *testing.T, resolver LessonResolver) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(resolver, 128, 0)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	return n
}

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		name string
		want ActionKind
	}{
		{`\mod_quiz\event\attempt_started`, ActionAttemptQuiz},
		{`\mod_quiz\event\attempt_submitted`, ActionSubmitQuiz},
		{`\mod_quiz\event\attempt_reviewed`, ActionReviewQuiz},
		{`\assignsubmission_file\event\assessable_submitted`, ActionSubmitAssignment},
		{`\mod_assign\event\submission_created`, ActionSubmitAssignment},
		{`\mod_assign\event\course_module_viewed`, ActionViewAssignment},
		{`\mod_forum\event\post_created`, ActionPostForum},
		{`\mod_forum\event\discussion_viewed`, ActionViewForum},
		{`\mod_resource\event\file_downloaded`, ActionDownloadResource},
		{`\mod_page\event\course_module_viewed`, ActionViewContent},
		{``, ActionViewContent},
	}

	for _, tt := range tests {
		if got := ClassifyAction(tt.name); got != tt.want {
			t.Errorf("ClassifyAction(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNormalize_Basic(t *testing.T) {
	resolver := &stubResolver{lessons: map[int64]int64{42: 10}}
	n := newTestNormalizer(t, resolver)

	raw := RawRecord{
		"userid":            float64(1),
		"courseid":          float64(5),
		"contextinstanceid": float64(42),
		"eventname":         `\mod_quiz\event\attempt_submitted`,
		"timestamp":         float64(1700000000),
		"score":             float64(85),
	}

	ev, ok := n.Normalize(context.Background(), raw)
	if !ok {
		t.Fatal("expected event to normalize")
	}
	if ev.UserID != 1 || ev.CourseID != 5 || ev.LessonID != 10 {
		t.Errorf("unexpected identity: %+v", ev)
	}
	if ev.Kind != ActionSubmitQuiz {
		t.Errorf("kind = %q, want submit_quiz", ev.Kind)
	}
	// 85 is a percentage, normalized to 0.85.
	if !ev.HasScore || ev.Score != 0.85 {
		t.Errorf("score = %v (has=%v), want 0.85", ev.Score, ev.HasScore)
	}
	if ev.Timestamp != time.Unix(1700000000, 0).UTC() {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestNormalize_FieldAliases(t *testing.T) {
	resolver := &stubResolver{lessons: map[int64]int64{7: 3}}
	n := newTestNormalizer(t, resolver)

	raw := RawRecord{
		"user_id":             "9",
		"course_id":           int64(2),
		"context_instance_id": 7,
		"action":              "quiz_attempt",
		"timecreated":         int64(1700000000),
	}

	ev, ok := n.Normalize(context.Background(), raw)
	if !ok {
		t.Fatal("expected event to normalize")
	}
	if ev.UserID != 9 || ev.CourseID != 2 || ev.LessonID != 3 {
		t.Errorf("unexpected identity: %+v", ev)
	}
	if ev.Kind != ActionAttemptQuiz {
		t.Errorf("kind = %q", ev.Kind)
	}
}

func TestNormalize_Drops(t *testing.T) {
	resolver := &stubResolver{lessons: map[int64]int64{42: 10}}

	tests := []struct {
		name   string
		raw    RawRecord
		reason DropReason
	}{
		{
			name:   "missing course",
			raw:    RawRecord{"userid": float64(1), "contextinstanceid": float64(42), "eventname": "x", "timestamp": float64(1)},
			reason: DropNoCourse,
		},
		{
			name:   "missing user",
			raw:    RawRecord{"courseid": float64(5), "contextinstanceid": float64(42), "eventname": "x", "timestamp": float64(1)},
			reason: DropNoUser,
		},
		{
			name:   "course viewed",
			raw:    RawRecord{"userid": float64(1), "courseid": float64(5), "contextinstanceid": float64(42), "eventname": `\core\event\course_viewed`, "timestamp": float64(1)},
			reason: DropCourseViewed,
		},
		{
			name:   "unresolvable lesson",
			raw:    RawRecord{"userid": float64(1), "courseid": float64(5), "contextinstanceid": float64(999), "eventname": "x", "timestamp": float64(1)},
			reason: DropNoLesson,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNormalizer(t, resolver)
			if _, ok := n.Normalize(context.Background(), tt.raw); ok {
				t.Fatal("expected drop")
			}
			if got := n.Drops()[tt.reason]; got != 1 {
				t.Errorf("drop count for %q = %d, want 1", tt.reason, got)
			}
		})
	}
}

func TestNormalize_ResolverErrorCounted(t *testing.T) {
	resolver := &stubResolver{err: errors.New("backend down")}
	n := newTestNormalizer(t, resolver)

	raw := RawRecord{
		"userid":            float64(1),
		"courseid":          float64(5),
		"contextinstanceid": float64(42),
		"eventname":         "x",
		"timestamp":         float64(1700000000),
	}

	if _, ok := n.Normalize(context.Background(), raw); ok {
		t.Fatal("expected drop on resolver error")
	}
	if got := n.Drops()[DropResolverFailed]; got != 1 {
		t.Errorf("resolver_failed count = %d, want 1", got)
	}
}

func TestNormalize_LessonCacheHit(t *testing.T) {
	resolver := &stubResolver{lessons: map[int64]int64{42: 10}}
	n := newTestNormalizer(t, resolver)

	raw := RawRecord{
		"userid":            float64(1),
		"courseid":          float64(5),
		"contextinstanceid": float64(42),
		"eventname":         "x",
		"timestamp":         float64(1700000000),
	}

	for i := 0; i < 3; i++ {
		if _, ok := n.Normalize(context.Background(), raw); !ok {
			t.Fatal("expected event to normalize")
		}
	}
	if resolver.calls != 1 {
		t.Errorf("resolver calls = %d, want 1 (cached)", resolver.calls)
	}

	n.InvalidateCourse(5)
	if _, ok := n.Normalize(context.Background(), raw); !ok {
		t.Fatal("expected event to normalize after invalidation")
	}
	if resolver.calls != 2 {
		t.Errorf("resolver calls = %d, want 2 after invalidation", resolver.calls)
	}
}

func TestNormalize_ScoreClamping(t *testing.T) {
	resolver := &stubResolver{lessons: map[int64]int64{42: 10}}

	tests := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{1.0, 1.0},
		{85, 0.85},
		{150, 1.0}, // 150% clamps to 1.0
		{-0.2, 0},
	}

	for _, tt := range tests {
		n := newTestNormalizer(t, resolver)
		raw := RawRecord{
			"userid":            float64(1),
			"courseid":          float64(5),
			"contextinstanceid": float64(42),
			"eventname":         "quiz_submitted",
			"timestamp":         float64(1700000000),
			"score":             tt.in,
		}
		ev, ok := n.Normalize(context.Background(), raw)
		if !ok {
			t.Fatalf("score %v: expected event", tt.in)
		}
		if ev.Score != tt.want {
			t.Errorf("score %v normalized to %v, want %v", tt.in, ev.Score, tt.want)
		}
	}
}
