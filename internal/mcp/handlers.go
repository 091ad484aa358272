package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tutorloop/tutorloop/internal/engine"
	"github.com/tutorloop/tutorloop/internal/events"
	"github.com/tutorloop/tutorloop/internal/ratelimit"
)

func (s *Server) handleIngestEvent(ctx context.Context, req *sdk.CallToolRequest, args IngestEventInput) (*sdk.CallToolResult, IngestEventOutput, error) {
	if err := ratelimit.Check(s.limiters, "ingest_event"); err != nil {
		return nil, IngestEventOutput{}, err
	}

	if len(args.Event) == 0 {
		return nil, IngestEventOutput{}, fmt.Errorf("event is required")
	}

	batch, err := s.engine.AddEvent(ctx, events.RawRecord(args.Event))
	if err != nil {
		return nil, IngestEventOutput{}, fmt.Errorf("failed to ingest event: %w", err)
	}
	if batch == nil {
		// Either dropped by normalization or buffered without a trigger.
		// The caller can tell the two apart from the drop counters.
		return nil, IngestEventOutput{Dropped: false}, nil
	}

	out := IngestEventOutput{
		Triggered:       true,
		TriggerReason:   batch.TriggerReason,
		State:           batch.State.String(),
		Source:          string(batch.Source),
		Recommendations: toItems(batch.Recommendations),
	}
	if batch.Reward != nil {
		out.RewardTotal = batch.Reward.Total
		out.RewardParts = batch.Reward.Components()
	}
	return nil, out, nil
}

func (s *Server) handleRecommendNext(ctx context.Context, req *sdk.CallToolRequest, args RecommendNextInput) (*sdk.CallToolResult, RecommendNextOutput, error) {
	if err := ratelimit.Check(s.limiters, "recommend_next"); err != nil {
		return nil, RecommendNextOutput{}, err
	}

	key := events.Key{UserID: args.UserID, CourseID: args.CourseID, LessonID: args.LessonID}
	batch, err := s.engine.Recommend(ctx, key)
	if err != nil {
		return nil, RecommendNextOutput{}, fmt.Errorf("failed to recommend: %w", err)
	}

	return nil, RecommendNextOutput{
		State:           batch.State.String(),
		Source:          string(batch.Source),
		Recommendations: toItems(batch.Recommendations),
	}, nil
}

func (s *Server) handleLearnerState(ctx context.Context, req *sdk.CallToolRequest, args LearnerStateInput) (*sdk.CallToolResult, LearnerStateOutput, error) {
	if err := ratelimit.Check(s.limiters, "learner_state"); err != nil {
		return nil, LearnerStateOutput{}, err
	}

	key := events.Key{UserID: args.UserID, CourseID: args.CourseID, LessonID: args.LessonID}
	snap, ok := s.engine.Peek(key)
	if !ok {
		return nil, LearnerStateOutput{Known: false}, nil
	}

	out := LearnerStateOutput{
		Known:        true,
		BufferSize:   snap.BufferSize,
		HistorySize:  snap.HistorySize,
		BestProgress: snap.BestProgress,
		AvgScore:     snap.AvgScore,
	}
	if snap.State != nil {
		out.State = snap.State.String()
		out.Phase = string(snap.State.Phase)
		out.Engagement = string(snap.State.Engagement)
		out.Tier = string(snap.State.Tier)
	}
	return nil, out, nil
}

func (s *Server) handleModelStats(ctx context.Context, req *sdk.CallToolRequest, args ModelStatsInput) (*sdk.CallToolResult, ModelStatsOutput, error) {
	if err := ratelimit.Check(s.limiters, "model_stats"); err != nil {
		return nil, ModelStatsOutput{}, err
	}

	episodes, updates, tableSize := s.agent.Stats()
	out := ModelStatsOutput{
		Episodes:       episodes,
		Updates:        updates,
		TableSize:      tableSize,
		Epsilon:        s.agent.Epsilon(),
		LiveContexts:   s.engine.ContextCount(),
		CollabFailures: s.engine.CollaboratorFailures(),
	}

	drops := make(map[string]int)
	for reason, n := range s.engine.Normalizer().Drops() {
		drops[string(reason)] = n
	}
	if len(drops) > 0 {
		out.DroppedEvents = drops
	}

	if s.store != nil {
		stats, err := s.store.Stats(ctx)
		if err != nil {
			return nil, ModelStatsOutput{}, fmt.Errorf("failed to read store stats: %w", err)
		}
		out.PersistedStates = stats.States
		out.PersistedCells = stats.Cells
		out.SavedAt = stats.SavedAt
	}
	return nil, out, nil
}

func toItems(recs []engine.Recommendation) []RecommendationItem {
	out := make([]RecommendationItem, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecommendationItem{
			Kind:         string(r.Action.Kind),
			Context:      string(r.Action.Context),
			LessonID:     r.LessonID,
			ActivityID:   r.ActivityID,
			ActivityName: r.ActivityName,
			Value:        r.Value,
			Explanation:  r.Explanation,
		})
	}
	return out
}
