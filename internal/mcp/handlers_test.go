package mcp

import (
	"context"
	"testing"

	"github.com/tutorloop/tutorloop/internal/agent"
	"github.com/tutorloop/tutorloop/internal/catalog"
	"github.com/tutorloop/tutorloop/internal/config"
	"github.com/tutorloop/tutorloop/internal/course"
	"github.com/tutorloop/tutorloop/internal/engine"
	"github.com/tutorloop/tutorloop/internal/reward"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	structure := course.NewStaticStructure([]course.Course{{
		ID:   7,
		Name: "Algebra",
		Lessons: []course.Lesson{
			{ID: 1, Name: "Linear equations", Activities: []course.Activity{
				{ID: 11, LessonID: 1, Name: "Reading", Type: "page"},
				{ID: 12, LessonID: 1, Name: "Quiz 1", Type: "quiz"},
			}},
			{ID: 2, Name: "Quadratics"},
		},
	}})

	cfg := config.Default()
	cat := catalog.New()
	ag := agent.New(cfg.Agent, cat.Size(), 1)

	eng, err := engine.New(engine.Params{
		Config:  cfg,
		Catalog: cat,
		Agent:   ag,
		Rewards: reward.NewEngine(cfg.Reward),
		Course:  structure,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	srv, err := NewServer(&Config{Name: "tutorloop", Version: "test", Engine: eng, Agent: ag})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func rawEvent(ts int64) map[string]any {
	return map[string]any{
		"userid":            float64(42),
		"courseid":          float64(7),
		"contextinstanceid": float64(11),
		"eventname":         `\mod_page\event\course_module_viewed`,
		"timecreated":       float64(ts),
	}
}

func TestIngestEventTool(t *testing.T) {
	srv := testServer(t)
	ctx := context.Background()
	base := int64(1_700_000_000)

	for i := 0; i < 2; i++ {
		_, out, err := srv.handleIngestEvent(ctx, nil, IngestEventInput{Event: rawEvent(base + int64(i))})
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		if out.Triggered {
			t.Fatalf("event %d triggered prematurely", i+1)
		}
	}

	_, out, err := srv.handleIngestEvent(ctx, nil, IngestEventInput{Event: rawEvent(base + 2)})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !out.Triggered {
		t.Fatal("third event should trigger")
	}
	if out.TriggerReason != "buffer_full" {
		t.Errorf("trigger reason = %q, want buffer_full", out.TriggerReason)
	}
	if len(out.Recommendations) == 0 {
		t.Error("no recommendations in tool output")
	}
}

func TestIngestEventToolRejectsEmpty(t *testing.T) {
	srv := testServer(t)
	if _, _, err := srv.handleIngestEvent(context.Background(), nil, IngestEventInput{}); err == nil {
		t.Fatal("empty event must be rejected")
	}
}

func TestRecommendNextTool(t *testing.T) {
	srv := testServer(t)
	ctx := context.Background()

	// Cold start: no events yet, the ranking falls back to the heuristic.
	_, cold, err := srv.handleRecommendNext(ctx, nil, RecommendNextInput{UserID: 42, CourseID: 7, LessonID: 1})
	if err != nil {
		t.Fatalf("cold recommend_next: %v", err)
	}
	if cold.Source != "heuristic" {
		t.Errorf("cold source = %q, want heuristic", cold.Source)
	}
	if len(cold.Recommendations) == 0 {
		t.Error("cold start produced no recommendations")
	}

	base := int64(1_700_000_000)
	for i := 0; i < 3; i++ {
		if _, _, err := srv.handleIngestEvent(ctx, nil, IngestEventInput{Event: rawEvent(base + int64(i))}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	_, out, err := srv.handleRecommendNext(ctx, nil, RecommendNextInput{UserID: 42, CourseID: 7, LessonID: 1})
	if err != nil {
		t.Fatalf("recommend_next: %v", err)
	}
	if out.State == "" {
		t.Error("empty state in output")
	}
	if len(out.Recommendations) == 0 {
		t.Error("no recommendations")
	}
}

func TestLearnerStateTool(t *testing.T) {
	srv := testServer(t)
	ctx := context.Background()

	_, out, err := srv.handleLearnerState(ctx, nil, LearnerStateInput{UserID: 42, CourseID: 7, LessonID: 1})
	if err != nil {
		t.Fatalf("learner_state: %v", err)
	}
	if out.Known {
		t.Error("unknown learner reported as known")
	}

	if _, _, err := srv.handleIngestEvent(ctx, nil, IngestEventInput{Event: rawEvent(1_700_000_000)}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	_, out, err = srv.handleLearnerState(ctx, nil, LearnerStateInput{UserID: 42, CourseID: 7, LessonID: 1})
	if err != nil {
		t.Fatalf("learner_state: %v", err)
	}
	if !out.Known {
		t.Fatal("learner should be known after one event")
	}
	if out.BufferSize != 1 {
		t.Errorf("buffer size = %d, want 1", out.BufferSize)
	}
}

func TestModelStatsTool(t *testing.T) {
	srv := testServer(t)
	ctx := context.Background()

	base := int64(1_700_000_000)
	for i := 0; i < 3; i++ {
		if _, _, err := srv.handleIngestEvent(ctx, nil, IngestEventInput{Event: rawEvent(base + int64(i))}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	_, out, err := srv.handleModelStats(ctx, nil, ModelStatsInput{})
	if err != nil {
		t.Fatalf("model_stats: %v", err)
	}
	if out.LiveContexts != 1 {
		t.Errorf("live contexts = %d, want 1", out.LiveContexts)
	}
	if out.Epsilon <= 0 {
		t.Errorf("epsilon = %v, want > 0", out.Epsilon)
	}
}
