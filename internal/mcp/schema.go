// Package mcp exposes the recommendation engine over the Model Context
// Protocol, so LMS-side agents and tutoring assistants can ingest events
// and pull recommendations over stdio.
package mcp

// IngestEventInput defines the input for the ingest_event tool.
type IngestEventInput struct {
	Event map[string]any `json:"event" jsonschema:"Raw LMS event record (Moodle log row: userid/courseid/contextinstanceid/eventname/timecreated plus optional score/progress/duration)"`
}

// IngestEventOutput defines the output for the ingest_event tool.
type IngestEventOutput struct {
	Dropped         bool                 `json:"dropped" jsonschema:"Whether normalization dropped the record"`
	Triggered       bool                 `json:"triggered" jsonschema:"Whether the event completed a state transition"`
	TriggerReason   string               `json:"trigger_reason,omitempty" jsonschema:"Which trigger clause fired"`
	State           string               `json:"state,omitempty" jsonschema:"Encoded learner state after the transition"`
	RewardTotal     float64              `json:"reward_total,omitempty" jsonschema:"Bounded reward for the transition"`
	RewardParts     map[string]float64   `json:"reward_parts,omitempty" jsonschema:"Nonzero reward components"`
	Source          string               `json:"source,omitempty" jsonschema:"Ranking source: value_table or heuristic"`
	Recommendations []RecommendationItem `json:"recommendations,omitempty" jsonschema:"Ranked next activities"`
}

// RecommendationItem is one ranked suggestion.
type RecommendationItem struct {
	Kind         string  `json:"kind"`
	Context      string  `json:"context"`
	LessonID     int64   `json:"lesson_id,omitempty"`
	ActivityID   int64   `json:"activity_id,omitempty"`
	ActivityName string  `json:"activity_name,omitempty"`
	Value        float64 `json:"value"`
	Explanation  string  `json:"explanation"`
}

// RecommendNextInput defines the input for the recommend_next tool.
type RecommendNextInput struct {
	UserID   int64 `json:"user_id" jsonschema:"LMS user id"`
	CourseID int64 `json:"course_id" jsonschema:"Course id"`
	LessonID int64 `json:"lesson_id" jsonschema:"Lesson id the learner is working in"`
}

// RecommendNextOutput defines the output for the recommend_next tool.
type RecommendNextOutput struct {
	State           string               `json:"state" jsonschema:"Encoded learner state"`
	Source          string               `json:"source" jsonschema:"Ranking source: value_table or heuristic"`
	Recommendations []RecommendationItem `json:"recommendations"`
}

// LearnerStateInput defines the input for the learner_state tool.
type LearnerStateInput struct {
	UserID   int64 `json:"user_id" jsonschema:"LMS user id"`
	CourseID int64 `json:"course_id" jsonschema:"Course id"`
	LessonID int64 `json:"lesson_id" jsonschema:"Lesson id"`
}

// LearnerStateOutput defines the output for the learner_state tool.
type LearnerStateOutput struct {
	Known        bool    `json:"known" jsonschema:"Whether the engine has a context for this learner"`
	State        string  `json:"state,omitempty" jsonschema:"Encoded learner state, empty before the first transition"`
	Phase        string  `json:"phase,omitempty"`
	Engagement   string  `json:"engagement,omitempty"`
	Tier         string  `json:"tier,omitempty"`
	BufferSize   int     `json:"buffer_size"`
	HistorySize  int     `json:"history_size"`
	BestProgress float64 `json:"best_progress"`
	AvgScore     float64 `json:"avg_score"`
}

// ModelStatsInput defines the input for the model_stats tool.
type ModelStatsInput struct{}

// ModelStatsOutput defines the output for the model_stats tool.
type ModelStatsOutput struct {
	Episodes        int            `json:"episodes" jsonschema:"Completed learning episodes"`
	Updates         int            `json:"updates" jsonschema:"Value-table updates applied"`
	TableSize       int            `json:"table_size" jsonschema:"Distinct (state, action) cells"`
	Epsilon         float64        `json:"epsilon" jsonschema:"Current exploration rate"`
	LiveContexts    int            `json:"live_contexts" jsonschema:"Learner contexts in memory"`
	DroppedEvents   map[string]int `json:"dropped_events,omitempty" jsonschema:"Per-reason normalization drop counts"`
	CollabFailures  map[string]int `json:"collaborator_failures,omitempty" jsonschema:"Per-collaborator failure counts"`
	PersistedStates int            `json:"persisted_states" jsonschema:"Distinct states in the saved model"`
	PersistedCells  int            `json:"persisted_cells" jsonschema:"Cells in the saved model"`
	SavedAt         string         `json:"saved_at,omitempty" jsonschema:"When the model was last saved"`
}
