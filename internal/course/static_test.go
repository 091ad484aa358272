package course

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testCourse() Course {
	return Course{
		ID:   5,
		Name: "Intro to Databases",
		Lessons: []Lesson{
			{ID: 10, Name: "Relational Model", Activities: []Activity{
				{ID: 42, LessonID: 10, Name: "Quiz 1", Outcomes: []string{"LO1", "LO2"}, ExpectedSeconds: 600},
				{ID: 43, LessonID: 10, Name: "Reading"},
			}},
			{ID: 11, Name: "SQL Basics", Activities: []Activity{
				{ID: 44, LessonID: 11, Name: "Quiz 2", Outcomes: []string{"LO2"}},
			}},
			{ID: 12, Name: "Joins", Activities: []Activity{
				{ID: 45, LessonID: 12, Name: "Assignment"},
			}},
		},
		OutcomeWeights: map[string]float64{"LO1": 0.3, "LO2": 0.5},
	}
}

func TestResolveLesson(t *testing.T) {
	s := NewStaticStructure([]Course{testCourse()})
	ctx := context.Background()

	lessonID, ok, err := s.ResolveLesson(ctx, 5, 44)
	if err != nil || !ok || lessonID != 11 {
		t.Errorf("ResolveLesson(5, 44) = (%d, %v, %v), want (11, true, nil)", lessonID, ok, err)
	}

	if _, ok, _ := s.ResolveLesson(ctx, 5, 999); ok {
		t.Error("unknown activity should not resolve")
	}
	if _, ok, _ := s.ResolveLesson(ctx, 99, 44); ok {
		t.Error("unknown course should not resolve")
	}
}

func TestLessonLookups(t *testing.T) {
	s := NewStaticStructure([]Course{testCourse()})
	ctx := context.Background()

	name, err := s.LessonName(ctx, 5, 11)
	if err != nil || name != "SQL Basics" {
		t.Errorf("LessonName = (%q, %v)", name, err)
	}

	idx, err := s.LessonIndex(ctx, 5, 12)
	if err != nil || idx != 2 {
		t.Errorf("LessonIndex = (%d, %v), want (2, nil)", idx, err)
	}

	if _, err := s.LessonName(ctx, 5, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown lesson error = %v, want ErrNotFound", err)
	}
}

func TestProgression(t *testing.T) {
	s := NewStaticStructure([]Course{testCourse()})
	ctx := context.Background()

	// Unobserved user starts at the first lesson.
	p, err := s.Progression(ctx, 1, 5)
	if err != nil {
		t.Fatalf("Progression: %v", err)
	}
	if p.Current != 10 || len(p.Past) != 0 || !p.Future[11] || !p.Future[12] {
		t.Errorf("fresh progression = %+v", p)
	}

	s.ObserveUserLesson(1, 5, 11)
	p, err = s.Progression(ctx, 1, 5)
	if err != nil {
		t.Fatalf("Progression: %v", err)
	}
	if p.Current != 11 || !p.Past[10] || !p.Future[12] {
		t.Errorf("progression after observe = %+v", p)
	}
}

func TestOutcomes(t *testing.T) {
	s := NewStaticStructure([]Course{testCourse()})
	ctx := context.Background()

	outcomes, err := s.ActivityOutcomes(ctx, 5, 42)
	if err != nil || len(outcomes) != 2 {
		t.Errorf("ActivityOutcomes = (%v, %v)", outcomes, err)
	}

	w, err := s.OutcomeWeight(ctx, 5, "LO2")
	if err != nil || w != 0.5 {
		t.Errorf("OutcomeWeight(LO2) = (%v, %v), want 0.5", w, err)
	}
	// Unknown outcomes weigh zero, not error.
	w, err = s.OutcomeWeight(ctx, 5, "LO9")
	if err != nil || w != 0 {
		t.Errorf("OutcomeWeight(LO9) = (%v, %v), want 0", w, err)
	}
}

func TestLoadCourses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "courses.yaml")
	content := `
courses:
  - id: 5
    name: Test Course
    lessons:
      - id: 10
        name: First
        activities:
          - id: 42
            lesson_id: 10
            name: Quiz
            outcomes: [LO1]
    outcome_weights:
      LO1: 0.4
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	courses, err := LoadCourses(path)
	if err != nil {
		t.Fatalf("LoadCourses: %v", err)
	}
	if len(courses) != 1 || courses[0].ID != 5 || len(courses[0].Lessons) != 1 {
		t.Errorf("courses = %+v", courses)
	}
	if courses[0].OutcomeWeights["LO1"] != 0.4 {
		t.Errorf("outcome weight = %v", courses[0].OutcomeWeights["LO1"])
	}

	if _, err := LoadCourses(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
