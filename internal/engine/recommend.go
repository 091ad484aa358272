package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tutorloop/tutorloop/internal/catalog"
	"github.com/tutorloop/tutorloop/internal/events"
	"github.com/tutorloop/tutorloop/internal/reward"
	"github.com/tutorloop/tutorloop/internal/state"
)

// RankingSource names how a recommendation list was ordered.
type RankingSource string

const (
	// SourceValueTable means learned values ordered the list.
	SourceValueTable RankingSource = "value_table"
	// SourceHeuristic means the cold-start heuristic ordered the list
	// because every candidate still sat at the default value.
	SourceHeuristic RankingSource = "heuristic"
)

// Recommendation is one ranked next-activity suggestion.
type Recommendation struct {
	Action       catalog.Action `json:"action"`
	ActivityID   int64          `json:"activity_id,omitempty"`
	ActivityName string         `json:"activity_name,omitempty"`
	LessonID     int64          `json:"lesson_id,omitempty"`
	Value        float64        `json:"value"`
	Explanation  string         `json:"explanation"`
}

// RecommendationBatch is the output of one completed transition.
type RecommendationBatch struct {
	Key             events.Key        `json:"key"`
	State           state.State       `json:"state"`
	Reward          *reward.Breakdown `json:"reward,omitempty"`
	TriggerReason   string            `json:"trigger_reason"`
	Source          RankingSource     `json:"source"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// maxRecommendations caps the ranked list handed back to callers.
const maxRecommendations = 5

// Recommend produces a ranked list for a learner on demand, without
// ingesting an event and without advancing the state. A learner the engine
// has no context for gets a cold-start context built from the course and
// cluster collaborators alone; its ranking is necessarily heuristic.
func (e *Engine) Recommend(ctx context.Context, key events.Key) (*RecommendationBatch, error) {
	if key.UserID == 0 || key.CourseID == 0 || key.LessonID == 0 {
		return nil, errors.New("engine: user, course and lesson are required")
	}
	lc := e.getOrCreateContext(key)

	lc.mu.Lock()
	defer lc.mu.Unlock()

	var s state.State
	if lc.current != nil {
		s = *lc.current
	} else {
		tier := e.resolveTier(ctx, lc)
		lessonIndex := e.resolveLessonIndex(ctx, lc)
		s = state.Encode(tier, lessonIndex, lc.recentKinds(), lc.bestProgress, lc.avgScore())
	}
	e.refreshProgression(ctx, lc, e.nowFunc())

	batch := e.recommendLocked(ctx, lc, s, e.temporalContext(lc, s))
	batch.TriggerReason = "on_demand"
	return batch, nil
}

// recommendLocked ranks the candidate actions for a freshly-encoded state.
// Caller holds the context lock.
func (e *Engine) recommendLocked(ctx context.Context, lc *learnerContext, s state.State, tctx catalog.TemporalContext) *RecommendationBatch {
	candidates := e.candidateActions(lc, tctx)

	indices := make([]int, len(candidates))
	for i, a := range candidates {
		indices[i] = a.Index
	}
	values := e.agent.Rank(s, indices)

	source := SourceHeuristic
	for _, v := range values {
		if v != 0 {
			source = SourceValueTable
			break
		}
	}

	var ordered []catalog.Action
	if source == SourceValueTable {
		ordered = make([]catalog.Action, len(candidates))
		copy(ordered, candidates)
		byIndex := make(map[int]float64, len(values))
		for i, a := range candidates {
			byIndex[a.Index] = values[i]
		}
		sort.SliceStable(ordered, func(i, j int) bool {
			return byIndex[ordered[i].Index] > byIndex[ordered[j].Index]
		})
	} else {
		ordered = heuristicRank(s, candidates)
	}

	if len(ordered) > maxRecommendations {
		ordered = ordered[:maxRecommendations]
	}

	batch := &RecommendationBatch{
		Key:    lc.key,
		State:  s,
		Source: source,
	}
	logActions := make([]string, 0, len(ordered))
	logValues := make([]float64, 0, len(ordered))
	for _, a := range ordered {
		v := e.agent.Value(s, a.Index)
		rec := Recommendation{
			Action:      a,
			Value:       v,
			Explanation: explain(a, s),
		}
		e.resolveActivity(ctx, lc, &rec)
		batch.Recommendations = append(batch.Recommendations, rec)
		logActions = append(logActions, a.Kind.String()+"/"+string(a.Context))
		logValues = append(logValues, v)
	}
	e.decisions.LogRanking(keyString(lc.key), string(source), logActions, logValues)
	return batch
}

// candidateActions builds the pool for ranking: every action in the
// learner's temporal context whose kind was not just performed. An empty
// filtered pool falls back to the unfiltered context pool so a
// recommendation is always produced.
func (e *Engine) candidateActions(lc *learnerContext, tctx catalog.TemporalContext) []catalog.Action {
	recent := make(map[events.ActionKind]bool)
	window := e.cfg.Engine.RecentRepeatWindow
	if window > 0 {
		hist := lc.history
		if len(hist) > window {
			hist = hist[len(hist)-window:]
		}
		for _, ev := range hist {
			recent[ev.Kind] = true
		}
	}

	var pool, filtered []catalog.Action
	for _, a := range e.catalog.All() {
		if a.Context != tctx {
			continue
		}
		pool = append(pool, a)
		if !recent[a.Kind] {
			filtered = append(filtered, a)
		}
	}
	if len(filtered) == 0 {
		return pool
	}
	return filtered
}

// resolveActivity attaches a concrete activity to a recommendation using
// the learner's cached lesson progression. Best effort: on any failure the
// recommendation ships with the abstract action only.
func (e *Engine) resolveActivity(ctx context.Context, lc *learnerContext, rec *Recommendation) {
	lessonID, ok := e.targetLesson(ctx, lc, rec.Action.Context)
	if !ok {
		return
	}
	rec.LessonID = lessonID

	cctx, cancel := e.collabContext(ctx)
	defer cancel()
	activities, err := e.course.Activities(cctx, lc.key.CourseID, lessonID)
	if err != nil || len(activities) == 0 {
		if err != nil {
			e.collabFailures.inc("activities")
		}
		return
	}

	wantType := activityTypeFor(rec.Action.Kind)
	for _, a := range activities {
		if a.Type == wantType {
			rec.ActivityID = a.ID
			rec.ActivityName = a.Name
			return
		}
	}
	rec.ActivityID = activities[0].ID
	rec.ActivityName = activities[0].Name
}

// targetLesson picks the concrete lesson for a temporal context: the
// highest-indexed past lesson for review, the lowest-indexed future lesson
// for look-ahead, the current lesson otherwise.
func (e *Engine) targetLesson(ctx context.Context, lc *learnerContext, tctx catalog.TemporalContext) (int64, bool) {
	switch tctx {
	case catalog.ContextCurrent:
		if lc.progression.Current != 0 {
			return lc.progression.Current, true
		}
		return lc.key.LessonID, lc.key.LessonID != 0
	case catalog.ContextPast:
		return e.extremeLesson(ctx, lc, lc.progression.Past, true)
	case catalog.ContextFuture:
		return e.extremeLesson(ctx, lc, lc.progression.Future, false)
	}
	return 0, false
}

// extremeLesson returns the max-index (latest=true) or min-index lesson
// from a progression set.
func (e *Engine) extremeLesson(ctx context.Context, lc *learnerContext, set map[int64]bool, latest bool) (int64, bool) {
	cctx, cancel := e.collabContext(ctx)
	defer cancel()

	best := int64(0)
	bestIdx := -1
	for id := range set {
		idx, err := e.course.LessonIndex(cctx, lc.key.CourseID, id)
		if err != nil {
			e.collabFailures.inc("lesson_index")
			continue
		}
		if bestIdx == -1 || (latest && idx > bestIdx) || (!latest && idx < bestIdx) {
			best, bestIdx = id, idx
		}
	}
	return best, bestIdx >= 0
}

// activityTypeFor maps an action kind to the Moodle module type that hosts it.
func activityTypeFor(kind events.ActionKind) string {
	switch kind {
	case events.ActionAttemptQuiz, events.ActionSubmitQuiz, events.ActionReviewQuiz:
		return "quiz"
	case events.ActionViewAssignment, events.ActionSubmitAssignment:
		return "assign"
	case events.ActionPostForum, events.ActionViewForum:
		return "forum"
	case events.ActionDownloadResource:
		return "resource"
	default:
		return "page"
	}
}

// explain renders a short human-readable reason for a recommendation.
func explain(a catalog.Action, s state.State) string {
	verb := map[events.ActionKind]string{
		events.ActionViewContent:      "Read the material",
		events.ActionViewAssignment:   "Look over the assignment",
		events.ActionAttemptQuiz:      "Attempt the quiz",
		events.ActionSubmitQuiz:       "Finish and submit the quiz",
		events.ActionReviewQuiz:       "Review your quiz answers",
		events.ActionSubmitAssignment: "Submit the assignment",
		events.ActionPostForum:        "Post in the discussion forum",
		events.ActionViewForum:        "Catch up on the forum",
		events.ActionDownloadResource: "Download the resource",
	}[a.Kind]
	if verb == "" {
		verb = "Work on " + a.Kind.String()
	}

	switch a.Context {
	case catalog.ContextPast:
		return fmt.Sprintf("%s from an earlier lesson to consolidate (%s phase)", verb, s.Phase)
	case catalog.ContextFuture:
		return fmt.Sprintf("%s in the next lesson to get ahead (progress %.0f%%)", verb, s.ProgressBin*100)
	default:
		return fmt.Sprintf("%s in your current lesson (%s phase)", verb, s.Phase)
	}
}

func keyString(k events.Key) string {
	return fmt.Sprintf("%d/%d/%d", k.UserID, k.CourseID, k.LessonID)
}
