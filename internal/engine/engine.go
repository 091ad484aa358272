// Package engine is the transition manager: it buffers normalized events
// per (user, course, lesson), applies the update-trigger policy, advances
// the discretized learner state, scores the completed transition, feeds the
// value-table agent, and emits ranked recommendations.
//
// Contexts for distinct keys are processed concurrently; events for the
// same key are serialized behind the context's mutex. The shared value
// table serializes its own access. Collaborator calls (course structure,
// progress enrichment, cluster assignment) are bounded by timeouts and
// degrade to conservative defaults on failure.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tutorloop/tutorloop/internal/agent"
	"github.com/tutorloop/tutorloop/internal/catalog"
	"github.com/tutorloop/tutorloop/internal/cluster"
	"github.com/tutorloop/tutorloop/internal/config"
	"github.com/tutorloop/tutorloop/internal/course"
	"github.com/tutorloop/tutorloop/internal/events"
	"github.com/tutorloop/tutorloop/internal/logging"
	"github.com/tutorloop/tutorloop/internal/reward"
	"github.com/tutorloop/tutorloop/internal/state"
)

// ClusterSource supplies the offline behavioral cluster id for a student.
type ClusterSource interface {
	ClusterID(ctx context.Context, userID int64) (int, error)
}

// LessonObserver is notified when a learner's activity lands in a lesson,
// so progression tracking can advance. Optional.
type LessonObserver interface {
	ObserveUserLesson(ctx context.Context, userID, courseID, lessonID int64) error
}

// Params wires an Engine. Config, Catalog, Agent, Rewards and Course are
// required; the rest are optional and default to conservative behavior.
type Params struct {
	Config     *config.Config
	Catalog    *catalog.Catalog
	Agent      *agent.Agent
	Rewards    *reward.Engine
	Course     course.Structure
	Progress   course.ProgressSource // optional progress enrichment
	Observer   LessonObserver        // optional progression tracking
	Clusters   ClusterSource         // optional; absent means medium tier
	Classifier *cluster.Classifier   // optional; absent means medium tier
	Logger     *slog.Logger
	Decisions  *logging.DecisionLogger
	NowFunc    func() time.Time // injectable clock for testing
}

// Engine is the top-level orchestrator. One instance per deployment.
type Engine struct {
	cfg        *config.Config
	catalog    *catalog.Catalog
	agent      *agent.Agent
	rewards    *reward.Engine
	course     course.Structure
	progress   course.ProgressSource
	observer   LessonObserver
	clusters   ClusterSource
	classifier *cluster.Classifier
	normalizer *events.Normalizer
	log        *slog.Logger
	decisions  *logging.DecisionLogger
	nowFunc    func() time.Time

	mu       sync.RWMutex
	contexts map[events.Key]*learnerContext

	collabFailures failureCounter
}

// New creates an Engine. The event normalizer shares the course-structure
// collaborator and gets its own injected lesson cache.
func New(p Params) (*Engine, error) {
	if p.NowFunc == nil {
		p.NowFunc = time.Now
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}

	normalizer, err := events.NewNormalizer(p.Course, p.Config.Engine.LessonCacheSize, p.Config.Engine.CollaboratorTimeout)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        p.Config,
		catalog:    p.Catalog,
		agent:      p.Agent,
		rewards:    p.Rewards,
		course:     p.Course,
		progress:   p.Progress,
		observer:   p.Observer,
		clusters:   p.Clusters,
		classifier: p.Classifier,
		normalizer: normalizer,
		log:        p.Logger,
		decisions:  p.Decisions,
		nowFunc:    p.NowFunc,
		contexts:   make(map[events.Key]*learnerContext),
	}, nil
}

// Normalizer exposes the engine's event normalizer (drop counters,
// cache invalidation).
func (e *Engine) Normalizer() *events.Normalizer { return e.normalizer }

// CollaboratorFailures returns per-collaborator failure counts.
func (e *Engine) CollaboratorFailures() map[string]int { return e.collabFailures.snapshot() }

// AddEvent ingests one raw log record. It returns nil (with nil error) when
// the record is dropped by normalization or when the trigger did not fire;
// a RecommendationBatch when a state transition completed.
func (e *Engine) AddEvent(ctx context.Context, raw events.RawRecord) (*RecommendationBatch, error) {
	ev, ok := e.normalizer.Normalize(ctx, raw)
	if !ok {
		return nil, nil
	}

	// An event for a different lesson lands in that lesson's context by
	// construction: the context key includes the lesson, so a student
	// moving lessons mid-stream can never pollute the old lesson's state.
	lc := e.getOrCreateContext(ev.ContextKey())

	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.buffer = append(lc.buffer, ev)

	now := e.nowFunc()
	decision := evaluateTrigger(e.cfg.Trigger, lc, now)
	e.decisions.LogTrigger(keyString(lc.key), decision.Fired, decision.Reason, len(lc.buffer))
	if !decision.Fired {
		return nil, nil
	}

	batch := e.processLocked(ctx, lc, now)
	batch.TriggerReason = decision.Reason
	return batch, nil
}

// FlushAll drains every context with a non-empty buffer regardless of
// trigger state — used at shutdown or end-of-request-batch boundaries so
// partially-accumulated evidence is not lost. It is interruptible: between
// contexts it checks ctx and stops cleanly, leaving unvisited contexts
// untouched.
func (e *Engine) FlushAll(ctx context.Context) []*RecommendationBatch {
	e.mu.RLock()
	keys := make([]events.Key, 0, len(e.contexts))
	for k := range e.contexts {
		keys = append(keys, k)
	}
	e.mu.RUnlock()

	var batches []*RecommendationBatch
	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}

		e.mu.RLock()
		lc := e.contexts[k]
		e.mu.RUnlock()
		if lc == nil {
			continue
		}

		lc.mu.Lock()
		if len(lc.buffer) > 0 {
			batch := e.processLocked(ctx, lc, e.nowFunc())
			batch.TriggerReason = "flush"
			batches = append(batches, batch)
		}
		lc.mu.Unlock()
	}
	return batches
}

// EvictIdle removes contexts whose buffer is empty and whose last update is
// older than the configured idle age. Returns the number evicted.
func (e *Engine) EvictIdle() int {
	maxAge := e.cfg.Engine.IdleEviction
	if maxAge <= 0 {
		return 0
	}
	now := e.nowFunc()

	e.mu.Lock()
	defer e.mu.Unlock()

	evicted := 0
	for k, lc := range e.contexts {
		lc.mu.Lock()
		idle := len(lc.buffer) == 0 && now.Sub(lc.lastUpdate) > maxAge
		lc.mu.Unlock()
		if idle {
			delete(e.contexts, k)
			evicted++
		}
	}
	if evicted > 0 {
		e.log.Debug("evicted idle contexts", "count", evicted)
	}
	return evicted
}

// ContextCount returns the number of live learner contexts.
func (e *Engine) ContextCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.contexts)
}

// ContextKeys returns the keys of all live contexts.
func (e *Engine) ContextKeys() []events.Key {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]events.Key, 0, len(e.contexts))
	for k := range e.contexts {
		keys = append(keys, k)
	}
	return keys
}

// Peek returns a read-only snapshot of a context's state, if it exists.
func (e *Engine) Peek(key events.Key) (ContextSnapshot, bool) {
	e.mu.RLock()
	lc := e.contexts[key]
	e.mu.RUnlock()
	if lc == nil {
		return ContextSnapshot{}, false
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	snap := ContextSnapshot{
		Key:          key,
		BufferSize:   len(lc.buffer),
		HistorySize:  len(lc.history),
		BestProgress: lc.bestProgress,
		AvgScore:     lc.avgScore(),
		LastUpdate:   lc.lastUpdate,
	}
	if lc.current != nil {
		s := *lc.current
		snap.State = &s
	}
	return snap, true
}

// ContextSnapshot is a read-only view of one learner context.
type ContextSnapshot struct {
	Key          events.Key
	State        *state.State
	BufferSize   int
	HistorySize  int
	BestProgress float64
	AvgScore     float64
	LastUpdate   time.Time
}

func (e *Engine) getOrCreateContext(key events.Key) *learnerContext {
	e.mu.RLock()
	lc := e.contexts[key]
	e.mu.RUnlock()
	if lc != nil {
		return lc
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if lc = e.contexts[key]; lc != nil {
		return lc
	}
	lc = newLearnerContext(key, e.nowFunc())
	e.contexts[key] = lc
	return lc
}

// processLocked advances a context through one full transition. Caller
// holds the context lock. Steps: aggregate the buffer, enrich progress,
// encode the new state, determine the temporal context, score the
// transition against the previous state, run the Bellman update, roll the
// buffer into history, and emit ranked recommendations.
func (e *Engine) processLocked(ctx context.Context, lc *learnerContext, now time.Time) *RecommendationBatch {
	newest := lc.buffer[len(lc.buffer)-1]
	batchEvents := lc.buffer

	prevBestProgress := lc.bestProgress
	lc.absorb(batchEvents)
	e.enrichProgress(ctx, lc)
	e.observeLesson(ctx, lc)

	tier := e.resolveTier(ctx, lc)
	lessonIndex := e.resolveLessonIndex(ctx, lc)
	e.refreshProgression(ctx, lc, now)

	newState := state.Encode(tier, lessonIndex, lc.recentKinds(), lc.bestProgress, lc.avgScore())
	tctx := e.temporalContext(lc, newState)

	// The reward breakdown is scored for every transition, including the
	// first of a fresh context. Only the Bellman update needs a previous
	// stored state.
	b := e.scoreTransition(ctx, lc, newState, newest, prevBestProgress, tier)
	breakdown := &b
	e.decisions.LogReward(keyString(lc.key), b.Total, b.Components())

	if lc.current != nil {
		actionIdx := e.actionIndex(newest.Kind, tctx)
		terminal := e.isTerminal(lc, newState)
		if err := e.agent.Update(*lc.current, actionIdx, b.Total, newState, terminal); err != nil {
			// Catalog and agent are built from the same enumeration, so
			// this is a programmer error worth surfacing loudly.
			e.log.Error("value table update rejected", "error", err)
		}
		if terminal {
			e.agent.EndEpisode()
			e.log.Info("course completed, episode closed",
				"user", lc.key.UserID, "course", lc.key.CourseID)
		}
	}

	s := newState
	lc.current = &s
	lc.lastProcessedKind = newest.Kind
	lc.hasLastProcessedKind = true
	lc.moveBufferToHistory(e.cfg.Engine.HistoryWindow)
	lc.lastUpdate = now

	batch := e.recommendLocked(ctx, lc, newState, tctx)
	batch.Reward = breakdown
	return batch
}

// scoreTransition builds the reward input for the just-completed transition.
func (e *Engine) scoreTransition(ctx context.Context, lc *learnerContext, newState state.State, newest *events.CanonicalEvent, prevBestProgress float64, tier cluster.Tier) reward.Breakdown {
	outcome := reward.Outcome{
		Completed:  lc.bestProgress >= 1.0 || (newest.Kind.IsActive() && newest.HasScore),
		Score:      newest.Score,
		HasScore:   newest.HasScore,
		Progressed: lc.bestProgress > prevBestProgress,
		// Without an explicit difficulty request we treat a passing score
		// (or an unscored activity) as an appropriate match.
		DifficultyMatched: !newest.HasScore || newest.Score >= 0.5,
		ActualSeconds:     newest.Duration,
		ExpectedSeconds:   e.expectedSeconds(ctx, newest),
	}

	var prevKind events.ActionKind
	hasPrev := lc.hasLastProcessedKind
	if hasPrev {
		prevKind = lc.lastProcessedKind
	}

	return e.rewards.Evaluate(reward.TransitionInput{
		State:     newState,
		Previous:  lc.current,
		Kind:      newest.Kind,
		PrevKind:  prevKind,
		HasPrev:   hasPrev,
		Tier:      tier,
		Outcome:   outcome,
		StudentID: lc.key.UserID,
		Outcomes:  e.weightedOutcomes(ctx, newest),
	})
}

// isTerminal reports course completion: full progress with no future
// lessons left.
func (e *Engine) isTerminal(lc *learnerContext, s state.State) bool {
	return lc.bestProgress >= 1.0 && len(lc.progression.Future) == 0 && lc.progression.Current != 0
}

// temporalContext decides which slice of the course the next recommendation
// should target: past when the learner is consolidating (heavy review, or
// fully done in a reflective phase), future when nearly done with the
// current lesson, current otherwise.
func (e *Engine) temporalContext(lc *learnerContext, s state.State) catalog.TemporalContext {
	kinds := lc.recentKinds()
	if len(kinds) > 5 {
		kinds = kinds[len(kinds)-5:]
	}
	reviews := 0
	for _, k := range kinds {
		if k == events.ActionReviewQuiz {
			reviews++
		}
	}

	if reviews >= 2 || (lc.bestProgress >= 1.0 && s.Phase == state.PhaseReflective) {
		return catalog.ContextPast
	}
	if lc.bestProgress > 0.8 {
		return catalog.ContextFuture
	}
	return catalog.ContextCurrent
}

// actionIndex maps (kind, context) through the catalog with the documented
// fallback chain.
func (e *Engine) actionIndex(kind events.ActionKind, tctx catalog.TemporalContext) int {
	if idx, ok := e.catalog.Index(kind, tctx); ok {
		return idx
	}
	a, _ := e.catalog.Fallback(kind, tctx)
	return a.Index
}

// resolveTier classifies the student through the cluster collaborators,
// caching the result on the context. Failures degrade to medium.
func (e *Engine) resolveTier(ctx context.Context, lc *learnerContext) cluster.Tier {
	if lc.tierKnown {
		return lc.tier
	}
	tier := cluster.TierMedium
	if e.clusters != nil && e.classifier != nil {
		cctx, cancel := e.collabContext(ctx)
		id, err := e.clusters.ClusterID(cctx, lc.key.UserID)
		cancel()
		if err != nil {
			e.collabFailures.inc("cluster")
			e.log.Warn("cluster lookup failed, defaulting to medium tier",
				"user", lc.key.UserID, "error", err)
		} else {
			tier = e.classifier.Classify(id)
		}
	}
	lc.tier = tier
	lc.tierKnown = true
	return tier
}

// resolveLessonIndex looks up the lesson's position, defaulting to 0 on
// collaborator failure.
func (e *Engine) resolveLessonIndex(ctx context.Context, lc *learnerContext) int {
	cctx, cancel := e.collabContext(ctx)
	defer cancel()
	idx, err := e.course.LessonIndex(cctx, lc.key.CourseID, lc.key.LessonID)
	if err != nil {
		e.collabFailures.inc("lesson_index")
		e.log.Warn("lesson index lookup failed", "lesson", lc.key.LessonID, "error", err)
		return 0
	}
	return idx
}

// refreshProgression updates the cached lesson-progression set when stale.
// On failure the last-known set is kept.
func (e *Engine) refreshProgression(ctx context.Context, lc *learnerContext, now time.Time) {
	if !lc.progressionAt.IsZero() && now.Sub(lc.progressionAt) < progressionTTL {
		return
	}
	cctx, cancel := e.collabContext(ctx)
	defer cancel()
	p, err := e.course.Progression(cctx, lc.key.UserID, lc.key.CourseID)
	if err != nil {
		e.collabFailures.inc("progression")
		e.log.Warn("progression lookup failed, keeping last known",
			"user", lc.key.UserID, "course", lc.key.CourseID, "error", err)
		return
	}
	lc.progression = p
	lc.progressionAt = now
}

// observeLesson notifies the optional progression tracker. Failures are
// counted and otherwise ignored.
func (e *Engine) observeLesson(ctx context.Context, lc *learnerContext) {
	if e.observer == nil {
		return
	}
	cctx, cancel := e.collabContext(ctx)
	defer cancel()
	if err := e.observer.ObserveUserLesson(cctx, lc.key.UserID, lc.key.CourseID, lc.key.LessonID); err != nil {
		e.collabFailures.inc("observer")
		e.log.Warn("progression tracking failed", "lesson", lc.key.LessonID, "error", err)
	}
}

// enrichProgress merges the optional progress collaborator's view into the
// context. Failures leave event-derived progress untouched.
func (e *Engine) enrichProgress(ctx context.Context, lc *learnerContext) {
	if e.progress == nil {
		return
	}
	cctx, cancel := e.collabContext(ctx)
	defer cancel()
	mp, err := e.progress.ModuleProgress(cctx, lc.key.UserID, lc.key.LessonID)
	if err != nil {
		e.collabFailures.inc("progress")
		e.log.Warn("progress enrichment failed, using event-derived progress",
			"user", lc.key.UserID, "lesson", lc.key.LessonID, "error", err)
		return
	}
	if mp.Progress > lc.bestProgress {
		lc.bestProgress = mp.Progress
	}
}

// expectedSeconds finds the expected time on task for the activity the
// newest event targeted. Zero when unknown or on collaborator failure.
func (e *Engine) expectedSeconds(ctx context.Context, ev *events.CanonicalEvent) float64 {
	cctx, cancel := e.collabContext(ctx)
	defer cancel()
	activities, err := e.course.Activities(cctx, ev.CourseID, ev.LessonID)
	if err != nil {
		e.collabFailures.inc("activities")
		return 0
	}
	for _, a := range activities {
		if a.ID == ev.ActivityID {
			return a.ExpectedSeconds
		}
	}
	return 0
}

// weightedOutcomes resolves the learning outcomes the newest event's
// activity assesses, with exam weights. Empty on collaborator failure.
func (e *Engine) weightedOutcomes(ctx context.Context, ev *events.CanonicalEvent) []reward.WeightedOutcome {
	cctx, cancel := e.collabContext(ctx)
	defer cancel()
	ids, err := e.course.ActivityOutcomes(cctx, ev.CourseID, ev.ActivityID)
	if err != nil {
		e.collabFailures.inc("outcomes")
		return nil
	}
	out := make([]reward.WeightedOutcome, 0, len(ids))
	for _, id := range ids {
		w, err := e.course.OutcomeWeight(cctx, ev.CourseID, id)
		if err != nil {
			e.collabFailures.inc("outcomes")
			continue
		}
		out = append(out, reward.WeightedOutcome{ID: id, ExamWeight: w})
	}
	return out
}

// collabContext bounds a collaborator call with the configured timeout.
func (e *Engine) collabContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Engine.CollaboratorTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.cfg.Engine.CollaboratorTimeout)
}

// failureCounter counts collaborator failures per name.
type failureCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *failureCounter) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

func (c *failureCounter) snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
