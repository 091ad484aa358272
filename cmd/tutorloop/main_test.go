package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tutorloop/tutorloop/internal/course"
	"github.com/tutorloop/tutorloop/internal/store"
)

func setupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	s, err := store.Open(root)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	err = s.ImportCourse(context.Background(), course.Course{
		ID:   7,
		Name: "Algebra",
		Lessons: []course.Lesson{
			{ID: 1, Name: "Linear equations", Activities: []course.Activity{
				{ID: 11, LessonID: 1, Name: "Reading", Type: "page"},
				{ID: 12, LessonID: 1, Name: "Quiz 1", Type: "quiz", Outcomes: []string{"lo-1"}},
			}},
			{ID: 2, Name: "Quadratics"},
		},
		OutcomeWeights: map[string]float64{"lo-1": 0.3},
	})
	if err != nil {
		t.Fatalf("ImportCourse: %v", err)
	}
	return root
}

func writeEvents(t *testing.T, dir string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, "events.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(os.Stderr)
	return cmd.Execute()
}

func eventLine(userID, instance, ts int64, name string, extra string) string {
	base := fmt.Sprintf(`{"userid":%d,"courseid":7,"contextinstanceid":%d,"eventname":"%s","timecreated":%d`,
		userID, instance, name, ts)
	if extra != "" {
		base += "," + extra
	}
	return base + "}"
}

func TestIngestCommandTrainsAndPersists(t *testing.T) {
	root := setupRoot(t)
	events := writeEvents(t, root, []string{
		eventLine(42, 11, 1_700_000_000, `course_module_viewed`, ""),
		eventLine(42, 11, 1_700_000_010, `course_module_viewed`, ""),
		eventLine(42, 11, 1_700_000_020, `course_module_viewed`, ""),
		eventLine(42, 12, 1_700_000_100, `attempt_submitted`, `"score":0.85`),
		"not json at all",
	})

	if err := runCommand(t, "ingest", "--root", root, "--quiet", events); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// The scored transition must have produced a persisted model.
	s, err := store.Open(root)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	snap, found, err := s.LoadModel(context.Background())
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if !found {
		t.Fatal("ingest did not save a model")
	}
	if snap.Updates == 0 {
		t.Error("no value updates were persisted")
	}

	mastery, err := s.LoadMastery(context.Background(), 42)
	if err != nil {
		t.Fatalf("LoadMastery: %v", err)
	}
	if mastery["lo-1"] == 0 {
		t.Error("scored quiz on lo-1 left no mastery estimate")
	}
}

func TestIngestCommandAccumulatesAcrossRuns(t *testing.T) {
	root := setupRoot(t)

	// Learner contexts live in memory, so value updates only happen from
	// the second transition of a run onward. Each run therefore feeds a
	// viewing batch (first transition) followed by a scored event.
	first := writeEvents(t, root, []string{
		eventLine(42, 11, 1_700_000_000, `course_module_viewed`, ""),
		eventLine(42, 11, 1_700_000_010, `course_module_viewed`, ""),
		eventLine(42, 11, 1_700_000_020, `course_module_viewed`, ""),
		eventLine(42, 12, 1_700_000_050, `attempt_submitted`, `"score":0.6`),
	})
	if err := runCommand(t, "ingest", "--root", root, "--quiet", first); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	s, _ := store.Open(root)
	before, _, err := s.LoadModel(context.Background())
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	s.Close()
	if before.Updates == 0 {
		t.Fatal("first run produced no value updates")
	}

	second := writeEvents(t, root, []string{
		eventLine(42, 11, 1_700_010_000, `course_module_viewed`, ""),
		eventLine(42, 11, 1_700_010_010, `course_module_viewed`, ""),
		eventLine(42, 11, 1_700_010_020, `course_module_viewed`, ""),
		eventLine(42, 12, 1_700_010_050, `attempt_submitted`, `"score":0.8`),
	})
	if err := runCommand(t, "ingest", "--root", root, "--quiet", second); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	s, _ = store.Open(root)
	defer s.Close()
	after, _, err := s.LoadModel(context.Background())
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if after.Updates <= before.Updates {
		t.Errorf("updates did not grow across runs: %d -> %d", before.Updates, after.Updates)
	}
}

func TestModelResetRequiresForce(t *testing.T) {
	root := setupRoot(t)
	if err := runCommand(t, "model", "reset", "--root", root); err == nil {
		t.Fatal("reset without --force must fail")
	}
	if err := runCommand(t, "model", "reset", "--root", root, "--force"); err != nil {
		t.Fatalf("forced reset: %v", err)
	}
}

func TestCoursesImportCommand(t *testing.T) {
	root := t.TempDir()
	yaml := filepath.Join(root, "courses.yaml")
	content := `courses:
  - id: 9
    name: Geometry
    lessons:
      - id: 1
        name: Angles
        activities:
          - id: 101
            lesson_id: 1
            name: Intro
            type: page
`
	if err := os.WriteFile(yaml, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runCommand(t, "courses", "import", "--root", root, yaml); err != nil {
		t.Fatalf("courses import: %v", err)
	}

	s, err := store.Open(root)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()
	name, err := s.Courses().LessonName(context.Background(), 9, 1)
	if err != nil || name != "Angles" {
		t.Errorf("LessonName = (%q, %v), want (Angles, nil)", name, err)
	}
}
