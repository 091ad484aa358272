package course

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// StaticStructure is an in-memory Structure implementation built from course
// definitions loaded at startup. Lookups never block; user locations are
// tracked in memory as events are observed. Safe for concurrent use.
type StaticStructure struct {
	mu      sync.RWMutex
	courses map[int64]*indexedCourse

	// userLesson tracks the most recently observed lesson per (user, course)
	// so Progression can be answered without an external progress service.
	userLesson map[userCourse]int64
}

type userCourse struct {
	userID   int64
	courseID int64
}

type indexedCourse struct {
	course         Course
	lessonIndex    map[int64]int      // lesson id -> position
	activityLesson map[int64]int64    // activity id -> lesson id
	activities     map[int64]Activity // activity id -> activity
}

// NewStaticStructure indexes the given courses for O(1) lookups.
func NewStaticStructure(courses []Course) *StaticStructure {
	s := &StaticStructure{
		courses:    make(map[int64]*indexedCourse, len(courses)),
		userLesson: make(map[userCourse]int64),
	}
	for _, c := range courses {
		ic := &indexedCourse{
			course:         c,
			lessonIndex:    make(map[int64]int),
			activityLesson: make(map[int64]int64),
			activities:     make(map[int64]Activity),
		}
		for i, lesson := range c.Lessons {
			ic.lessonIndex[lesson.ID] = i
			for _, a := range lesson.Activities {
				ic.activityLesson[a.ID] = lesson.ID
				ic.activities[a.ID] = a
			}
		}
		s.courses[c.ID] = ic
	}
	return s
}

// LoadCourses reads course definitions from a YAML file.
func LoadCourses(path string) ([]Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading courses file: %w", err)
	}
	var doc struct {
		Courses []Course `yaml:"courses"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing courses file: %w", err)
	}
	if len(doc.Courses) == 0 {
		return nil, fmt.Errorf("no courses defined in %s", path)
	}
	return doc.Courses, nil
}

// ObserveUserLesson records the lesson a user was last seen in. Progression
// answers are derived from this observation.
func (s *StaticStructure) ObserveUserLesson(userID, courseID, lessonID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLesson[userCourse{userID, courseID}] = lessonID
}

// ResolveLesson implements Structure.
func (s *StaticStructure) ResolveLesson(_ context.Context, courseID, contextInstanceID int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.courses[courseID]
	if !ok {
		return 0, false, nil
	}
	lessonID, ok := ic.activityLesson[contextInstanceID]
	return lessonID, ok, nil
}

// LessonName implements Structure.
func (s *StaticStructure) LessonName(_ context.Context, courseID, lessonID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.courses[courseID]
	if !ok {
		return "", fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	idx, ok := ic.lessonIndex[lessonID]
	if !ok {
		return "", fmt.Errorf("lesson %d: %w", lessonID, ErrNotFound)
	}
	return ic.course.Lessons[idx].Name, nil
}

// LessonIndex implements Structure.
func (s *StaticStructure) LessonIndex(_ context.Context, courseID, lessonID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.courses[courseID]
	if !ok {
		return 0, fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	idx, ok := ic.lessonIndex[lessonID]
	if !ok {
		return 0, fmt.Errorf("lesson %d: %w", lessonID, ErrNotFound)
	}
	return idx, nil
}

// Progression implements Structure. Lessons before the user's last observed
// lesson are past, the rest future. A user never observed starts at the
// first lesson.
func (s *StaticStructure) Progression(_ context.Context, userID, courseID int64) (Progression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.courses[courseID]
	if !ok {
		return Progression{}, fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	if len(ic.course.Lessons) == 0 {
		return Progression{}, fmt.Errorf("course %d has no lessons", courseID)
	}

	current := ic.course.Lessons[0].ID
	if lessonID, ok := s.userLesson[userCourse{userID, courseID}]; ok {
		if _, known := ic.lessonIndex[lessonID]; known {
			current = lessonID
		}
	}

	p := Progression{
		Past:    make(map[int64]bool),
		Current: current,
		Future:  make(map[int64]bool),
	}
	currentIdx := ic.lessonIndex[current]
	for i, lesson := range ic.course.Lessons {
		switch {
		case i < currentIdx:
			p.Past[lesson.ID] = true
		case i > currentIdx:
			p.Future[lesson.ID] = true
		}
	}
	return p, nil
}

// Activities implements Structure.
func (s *StaticStructure) Activities(_ context.Context, courseID, lessonID int64) ([]Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	idx, ok := ic.lessonIndex[lessonID]
	if !ok {
		return nil, fmt.Errorf("lesson %d: %w", lessonID, ErrNotFound)
	}
	return ic.course.Lessons[idx].Activities, nil
}

// ActivityOutcomes implements Structure.
func (s *StaticStructure) ActivityOutcomes(_ context.Context, courseID, activityID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	a, ok := ic.activities[activityID]
	if !ok {
		return nil, fmt.Errorf("activity %d: %w", activityID, ErrNotFound)
	}
	return a.Outcomes, nil
}

// OutcomeWeight implements Structure. Unknown outcomes weigh zero.
func (s *StaticStructure) OutcomeWeight(_ context.Context, courseID int64, outcomeID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.courses[courseID]
	if !ok {
		return 0, fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	return ic.course.OutcomeWeights[outcomeID], nil
}

// Activity returns the activity definition by id, for recommendation
// resolution.
func (s *StaticStructure) Activity(courseID, activityID int64) (Activity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.courses[courseID]
	if !ok {
		return Activity{}, false
	}
	a, ok := ic.activities[activityID]
	return a, ok
}
