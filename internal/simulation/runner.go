package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tutorloop/tutorloop/internal/course"
	"github.com/tutorloop/tutorloop/internal/engine"
	"github.com/tutorloop/tutorloop/internal/events"
)

// Runner drives synthetic learner sessions through a real engine.
type Runner struct {
	engine *engine.Engine
	rng    *rand.Rand
	clock  time.Time
}

// NewRunner wraps an engine for simulation. The engine's collaborators
// must know the scenario's course (import it first).
func NewRunner(eng *engine.Engine, seed int64) *Runner {
	if seed == 0 {
		seed = 1
	}
	return &Runner{
		engine: eng,
		rng:    rand.New(rand.NewSource(seed)),
		clock:  time.Now().Add(-30 * 24 * time.Hour),
	}
}

// Run executes the scenario: every learner performs the configured number
// of study sessions, each session working one lesson. Buffered evidence is
// flushed at the end so the last partial sessions still train.
func (r *Runner) Run(ctx context.Context, sc Scenario) (Result, error) {
	if len(sc.Course.Lessons) == 0 {
		return Result{}, fmt.Errorf("simulation: course %d has no lessons", sc.Course.ID)
	}
	if sc.Seed != 0 {
		r.rng = rand.New(rand.NewSource(sc.Seed))
	}

	result := Result{LessonReached: make(map[int64]int)}
	position := make(map[int64]int)

	for session := 0; session < sc.Sessions; session++ {
		for _, learner := range sc.Learners {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			pos := position[learner.UserID]
			if pos >= len(sc.Course.Lessons) {
				continue // finished the course
			}
			passed, err := r.runSession(ctx, sc.Course, learner, pos, &result)
			if err != nil {
				return result, err
			}
			if passed {
				position[learner.UserID] = pos + 1
			}
			if position[learner.UserID] > result.LessonReached[learner.UserID] {
				result.LessonReached[learner.UserID] = position[learner.UserID]
			}
		}
		r.clock = r.clock.Add(24 * time.Hour)
	}

	for _, batch := range r.engine.FlushAll(ctx) {
		countBatch(batch, &result)
	}
	return result, nil
}

// runSession emits one lesson attempt for a learner: read, try the quiz,
// maybe retry, maybe review, maybe post. Reports whether the lesson was
// passed.
func (r *Runner) runSession(ctx context.Context, c course.Course, learner LearnerSpec, pos int, result *Result) (bool, error) {
	lesson := c.Lessons[pos]
	content, quiz := lessonActivities(lesson)
	a := learner.Archetype

	if content != 0 {
		if err := r.emit(ctx, learner.UserID, c.ID, content, `\mod_page\event\course_module_viewed`, nil, result); err != nil {
			return false, err
		}
	}
	if quiz == 0 {
		// Nothing assessable: viewing the material completes the lesson.
		return true, nil
	}

	if err := r.emit(ctx, learner.UserID, c.ID, quiz, `\mod_quiz\event\attempt_started`, nil, result); err != nil {
		return false, err
	}

	score := r.sampleScore(a)
	passed := score >= a.PassThreshold
	if err := r.submit(ctx, learner.UserID, c.ID, quiz, score, passed, result); err != nil {
		return false, err
	}

	if !passed && r.rng.Float64() < a.RetryProb {
		// A retry tends to go a little better.
		score = clamp01(r.sampleScore(a) + 0.1)
		passed = score >= a.PassThreshold
		if err := r.emit(ctx, learner.UserID, c.ID, quiz, `\mod_quiz\event\attempt_started`, nil, result); err != nil {
			return false, err
		}
		if err := r.submit(ctx, learner.UserID, c.ID, quiz, score, passed, result); err != nil {
			return false, err
		}
	}

	if r.rng.Float64() < a.ReviewProb {
		if err := r.emit(ctx, learner.UserID, c.ID, quiz, `\mod_quiz\event\attempt_reviewed`, nil, result); err != nil {
			return false, err
		}
	}
	if r.rng.Float64() < a.ForumProb {
		target := quiz
		if content != 0 {
			target = content
		}
		if err := r.emit(ctx, learner.UserID, c.ID, target, `\mod_forum\event\post_created`, nil, result); err != nil {
			return false, err
		}
	}
	return passed, nil
}

func (r *Runner) submit(ctx context.Context, userID, courseID, quiz int64, score float64, passed bool, result *Result) error {
	extra := map[string]any{"score": score}
	if passed {
		extra["progress"] = 1.0
	}
	return r.emit(ctx, userID, courseID, quiz, `\mod_quiz\event\attempt_submitted`, extra, result)
}

func (r *Runner) emit(ctx context.Context, userID, courseID, instance int64, eventName string, extra map[string]any, result *Result) error {
	r.clock = r.clock.Add(time.Duration(2+r.rng.Intn(8)) * time.Minute)

	raw := events.RawRecord{
		"userid":            userID,
		"courseid":          courseID,
		"contextinstanceid": instance,
		"eventname":         eventName,
		"timecreated":       r.clock.Unix(),
	}
	for k, v := range extra {
		raw[k] = v
	}

	result.EventsEmitted++
	batch, err := r.engine.AddEvent(ctx, raw)
	if err != nil {
		return fmt.Errorf("simulation: ingest failed: %w", err)
	}
	countBatch(batch, result)
	return nil
}

func countBatch(batch *engine.RecommendationBatch, result *Result) {
	if batch == nil {
		return
	}
	result.Transitions++
	if batch.Reward != nil {
		result.RewardSum += batch.Reward.Total
		result.RewardCount++
	}
}

func (r *Runner) sampleScore(a Archetype) float64 {
	return clamp01(r.rng.NormFloat64()*a.ScoreSpread + a.ScoreMean)
}

// lessonActivities picks the content and quiz activity ids for a lesson.
// Zero means the lesson has no activity of that kind.
func lessonActivities(l course.Lesson) (content, quiz int64) {
	for _, act := range l.Activities {
		switch {
		case act.Type == "quiz" && quiz == 0:
			quiz = act.ID
		case act.Type != "quiz" && content == 0:
			content = act.ID
		}
	}
	return content, quiz
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
