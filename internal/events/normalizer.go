package events

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RawRecord is a loosely-typed log record as it arrives from the transport
// layer. Field names vary between sources; accessor helpers resolve the
// known aliases. Unknown fields are ignored.
type RawRecord map[string]interface{}

// LessonResolver maps a raw context instance id (module/activity id) to the
// lesson that contains it. Implementations may be slow (database, remote
// API); the Normalizer caches results per (course, instance) pair.
type LessonResolver interface {
	ResolveLesson(ctx context.Context, courseID, contextInstanceID int64) (lessonID int64, ok bool, err error)
}

// DropReason explains why a raw record was not normalized.
type DropReason string

const (
	DropNoCourse         DropReason = "no_course"         // course id missing, multi-course disambiguation impossible
	DropNoLesson         DropReason = "no_lesson"         // context instance could not be mapped to a lesson
	DropCourseViewed     DropReason = "course_viewed"     // bare "course viewed" event, no actionable target
	DropNoUser           DropReason = "no_user"           // user id missing
	DropResolverFailed   DropReason = "resolver_failed"   // lesson resolver returned an error
	DropMissingTimestamp DropReason = "bad_timestamp"     // timestamp absent or unparseable
)

// actionRule is one row of the action classification decision table.
type actionRule struct {
	substr string
	kind   ActionKind
}

// actionRules is evaluated top to bottom against the lowercased event name;
// the first matching row wins. Rows are ordered most-specific first so the
// bare "quiz"/"assign"/"forum" catch-alls never shadow a precise event name.
// The default when nothing matches is ActionViewContent.
var actionRules = []actionRule{
	{"attempt_started", ActionAttemptQuiz},
	{"quiz_attempt", ActionAttemptQuiz},
	{"attempt_submitted", ActionSubmitQuiz},
	{"quiz_submitted", ActionSubmitQuiz},
	{"attempt_reviewed", ActionReviewQuiz},
	{"quiz_review", ActionReviewQuiz},
	{"assessable_submitted", ActionSubmitAssignment},
	{"assign_submitted", ActionSubmitAssignment},
	{"submission_created", ActionSubmitAssignment},
	{"assign", ActionViewAssignment},
	{"post_created", ActionPostForum},
	{"discussion_created", ActionPostForum},
	{"forum_post", ActionPostForum},
	{"discussion_viewed", ActionViewForum},
	{"forum", ActionViewForum},
	{"resource_downloaded", ActionDownloadResource},
	{"file_downloaded", ActionDownloadResource},
	{"download", ActionDownloadResource},
	{"quiz", ActionAttemptQuiz},
}

// ClassifyAction maps a raw event name onto an ActionKind using the fixed
// decision table. The match is ordered, case-insensitive substring matching.
func ClassifyAction(eventName string) ActionKind {
	name := strings.ToLower(eventName)
	for _, r := range actionRules {
		if strings.Contains(name, r.substr) {
			return r.kind
		}
	}
	return ActionViewContent
}

// DropStats counts dropped records per reason. Safe for concurrent use.
type DropStats struct {
	mu     sync.Mutex
	counts map[DropReason]int
}

func (s *DropStats) record(reason DropReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[DropReason]int)
	}
	s.counts[reason]++
}

// Counts returns a copy of the per-reason drop counts.
func (s *DropStats) Counts() map[DropReason]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[DropReason]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// lessonCacheKey keys the resolver cache per course + context instance.
type lessonCacheKey struct {
	courseID   int64
	instanceID int64
}

// Normalizer turns RawRecords into CanonicalEvents. Lesson resolution
// results are memoized in an injected LRU cache so that multiple Normalizer
// instances (tests, parallel managers) never share hidden global state.
type Normalizer struct {
	resolver LessonResolver
	cache    *lru.Cache[lessonCacheKey, int64]
	timeout  time.Duration
	drops    DropStats
}

// NewNormalizer creates a Normalizer with a lesson cache of the given size.
// cacheSize must be positive; resolveTimeout bounds each resolver call
// (zero means no timeout).
func NewNormalizer(resolver LessonResolver, cacheSize int, resolveTimeout time.Duration) (*Normalizer, error) {
	cache, err := lru.New[lessonCacheKey, int64](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Normalizer{resolver: resolver, cache: cache, timeout: resolveTimeout}, nil
}

// Drops exposes the drop counters for observability.
func (n *Normalizer) Drops() map[DropReason]int { return n.drops.Counts() }

// InvalidateCourse evicts all cached lesson resolutions for a course.
// Called when course structure changes.
func (n *Normalizer) InvalidateCourse(courseID int64) {
	for _, k := range n.cache.Keys() {
		if k.courseID == courseID {
			n.cache.Remove(k)
		}
	}
}

// Normalize parses a raw record into a CanonicalEvent.
// It returns (nil, false) when the record is dropped: missing course id,
// unresolvable lesson, or a bare "course viewed" event. Drops are counted,
// never surfaced as errors — unresolvable input is an expected condition.
func (n *Normalizer) Normalize(ctx context.Context, raw RawRecord) (*CanonicalEvent, bool) {
	userID, ok := raw.intField("user_id", "userid")
	if !ok {
		n.drops.record(DropNoUser)
		return nil, false
	}

	courseID, ok := raw.intField("course_id", "courseid")
	if !ok || courseID <= 0 {
		n.drops.record(DropNoCourse)
		return nil, false
	}

	eventName, _ := raw.stringField("event_name", "eventname", "action")
	if isCourseViewed(eventName) {
		n.drops.record(DropCourseViewed)
		return nil, false
	}

	instanceID, hasInstance := raw.intField("context_instance_id", "contextinstanceid")
	if !hasInstance {
		n.drops.record(DropNoLesson)
		return nil, false
	}

	lessonID, ok := n.resolveLesson(ctx, courseID, instanceID)
	if !ok {
		return nil, false
	}

	ts, ok := raw.timeField("timestamp", "timecreated")
	if !ok {
		n.drops.record(DropMissingTimestamp)
		return nil, false
	}

	ev := &CanonicalEvent{
		UserID:     userID,
		CourseID:   courseID,
		LessonID:   lessonID,
		ActivityID: instanceID,
		Kind:       ClassifyAction(eventName),
		Timestamp:  ts,
	}

	if score, ok := raw.floatField("score", "grade"); ok {
		// Values above 1.0 are percentages.
		if score > 1.0 {
			score /= 100.0
		}
		ev.Score = clamp01(score)
		ev.HasScore = true
	}
	if progress, ok := raw.floatField("progress"); ok {
		ev.Progress = clamp01(progress)
		ev.HasProgress = true
	}
	if dur, ok := raw.floatField("duration_seconds", "duration"); ok && dur >= 0 {
		ev.Duration = dur
		ev.HasDuration = true
	}

	return ev, true
}

// resolveLesson maps (course, instance) to a lesson id through the cache.
// Resolver errors and misses are counted and reported as not-ok; the
// failure never propagates to the caller's happy path.
func (n *Normalizer) resolveLesson(ctx context.Context, courseID, instanceID int64) (int64, bool) {
	key := lessonCacheKey{courseID: courseID, instanceID: instanceID}
	if lessonID, ok := n.cache.Get(key); ok {
		return lessonID, true
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	lessonID, ok, err := n.resolver.ResolveLesson(ctx, courseID, instanceID)
	if err != nil {
		n.drops.record(DropResolverFailed)
		return 0, false
	}
	if !ok {
		n.drops.record(DropNoLesson)
		return 0, false
	}

	n.cache.Add(key, lessonID)
	return lessonID, true
}

// isCourseViewed detects the pure "course viewed" event, which carries no
// actionable target and is always dropped.
func isCourseViewed(eventName string) bool {
	name := strings.ToLower(eventName)
	return strings.Contains(name, "course_viewed") || strings.Contains(name, "course viewed")
}

// stringField returns the first present alias as a string.
func (r RawRecord) stringField(aliases ...string) (string, bool) {
	for _, a := range aliases {
		if v, ok := r[a]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// intField returns the first present alias as an int64. JSON decoding
// delivers numbers as float64; both forms are accepted.
func (r RawRecord) intField(aliases ...string) (int64, bool) {
	for _, a := range aliases {
		v, ok := r[a]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int64:
			return n, true
		case int:
			return int64(n), true
		case float64:
			return int64(n), true
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return 0, false
			}
			return parsed, true
		}
	}
	return 0, false
}

// floatField returns the first present alias as a float64.
func (r RawRecord) floatField(aliases ...string) (float64, bool) {
	for _, a := range aliases {
		v, ok := r[a]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	}
	return 0, false
}

// timeField returns the first present alias as a time.Time, accepting unix
// seconds (number) or RFC3339 strings.
func (r RawRecord) timeField(aliases ...string) (time.Time, bool) {
	for _, a := range aliases {
		v, ok := r[a]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			if t <= 0 {
				return time.Time{}, false
			}
			return time.Unix(int64(t), 0).UTC(), true
		case int64:
			if t <= 0 {
				return time.Time{}, false
			}
			return time.Unix(t, 0).UTC(), true
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return time.Time{}, false
			}
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
