// Package config provides unified configuration loading for tutorloop.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all tutorloop configuration settings.
type Config struct {
	// Agent contains the value-table agent hyperparameters.
	Agent AgentConfig `json:"agent" yaml:"agent"`

	// Reward contains the reward-shaping weights and bounds.
	Reward RewardConfig `json:"reward" yaml:"reward"`

	// Trigger contains the state-update trigger policy.
	Trigger TriggerConfig `json:"trigger" yaml:"trigger"`

	// Engine contains context-buffer and collaborator settings.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Cluster contains the tier-classifier settings.
	Cluster ClusterConfig `json:"cluster" yaml:"cluster"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoggingConfig configures tutorloop's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision tracing to .tutorloop/decisions.jsonl.
	Level string `json:"level" yaml:"level"`
}

// AgentConfig holds the Q-learning hyperparameters.
type AgentConfig struct {
	// Alpha is the learning rate for the Bellman update.
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// Gamma is the discount factor for future value.
	Gamma float64 `json:"gamma" yaml:"gamma"`

	// Epsilon is the initial exploration probability.
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`

	// EpsilonDecay multiplies epsilon after each episode.
	EpsilonDecay float64 `json:"epsilon_decay" yaml:"epsilon_decay"`

	// EpsilonFloor is the minimum exploration probability.
	EpsilonFloor float64 `json:"epsilon_floor" yaml:"epsilon_floor"`
}

// TriggerConfig decides when buffered events justify advancing state.
// The trigger fires when ANY enabled clause holds.
type TriggerConfig struct {
	// MinBufferSize fires the trigger once this many events are buffered.
	MinBufferSize int `json:"min_buffer_size" yaml:"min_buffer_size"`

	// MaxElapsed fires the trigger when this much time has passed since the
	// last update.
	MaxElapsed time.Duration `json:"max_elapsed" yaml:"max_elapsed"`

	// OnKindChange fires when the buffered action kind differs from the
	// last processed kind.
	OnKindChange bool `json:"on_kind_change" yaml:"on_kind_change"`

	// OnScore fires immediately for any event carrying a score.
	OnScore bool `json:"on_score" yaml:"on_score"`
}

// EngineConfig configures the context buffer and its collaborators.
type EngineConfig struct {
	// HistoryWindow is how many processed events each context retains.
	HistoryWindow int `json:"history_window" yaml:"history_window"`

	// IdleEviction evicts contexts whose buffer has been empty for longer
	// than this. Zero disables eviction.
	IdleEviction time.Duration `json:"idle_eviction" yaml:"idle_eviction"`

	// CollaboratorTimeout bounds each course-structure or progress lookup.
	CollaboratorTimeout time.Duration `json:"collaborator_timeout" yaml:"collaborator_timeout"`

	// LessonCacheSize is the LRU size for lesson resolution memoization.
	LessonCacheSize int `json:"lesson_cache_size" yaml:"lesson_cache_size"`

	// RecentRepeatWindow suppresses recommending an action kind the learner
	// performed within the last N processed events.
	RecentRepeatWindow int `json:"recent_repeat_window" yaml:"recent_repeat_window"`
}

// ClusterConfig configures the performance-tier classifier.
type ClusterConfig struct {
	// ExcludedClusterID is the designated non-learner cluster; it never
	// takes part in tercile ranking and always classifies as medium.
	ExcludedClusterID int `json:"excluded_cluster_id" yaml:"excluded_cluster_id"`

	// ProfilesPath points to a YAML file of offline cluster profiles.
	ProfilesPath string `json:"profiles_path,omitempty" yaml:"profiles_path,omitempty"`
}

// RewardConfig holds every reward component weight, keyed by tier, phase or
// engagement level name where the component is tier-dependent. The defaults
// come from empirical tuning against course outcome data; they are kept as
// configuration rather than constants so they can be recalibrated.
type RewardConfig struct {
	// CompletionBonus per tier, applied when the outcome was completed.
	CompletionBonus map[string]float64 `json:"completion_bonus" yaml:"completion_bonus"`

	// ScoreImprovementMultiplier scales max(0, score - previous score bin).
	ScoreImprovementMultiplier float64 `json:"score_improvement_multiplier" yaml:"score_improvement_multiplier"`

	// MilestoneScore and MilestoneBonus grant a one-time bonus for weak-tier
	// students whose score first crosses MilestoneScore.
	MilestoneScore float64 `json:"milestone_score" yaml:"milestone_score"`
	MilestoneBonus float64 `json:"milestone_bonus" yaml:"milestone_bonus"`

	// HighScore and HighScoreBonus grant a flat bonus above an absolute score.
	HighScore      float64 `json:"high_score" yaml:"high_score"`
	HighScoreBonus float64 `json:"high_score_bonus" yaml:"high_score_bonus"`

	// ProgressionBonus per tier, applied when the learner advanced. Weak
	// tier rewards any progress; medium/strong reward difficulty matches.
	ProgressionBonus map[string]float64 `json:"progression_bonus" yaml:"progression_bonus"`

	// TimeEfficiencyRatio and TimeEfficiencyBonus reward finishing under
	// ratio x expected time. Weak tier is exempt from time pressure.
	TimeEfficiencyRatio float64 `json:"time_efficiency_ratio" yaml:"time_efficiency_ratio"`
	TimeEfficiencyBonus float64 `json:"time_efficiency_bonus" yaml:"time_efficiency_bonus"`

	// EngagementBonus per engagement level.
	EngagementBonus map[string]float64 `json:"engagement_bonus" yaml:"engagement_bonus"`

	// PhaseBonus per learning phase, rewarding phase-aligned actions.
	PhaseBonus map[string]float64 `json:"phase_bonus" yaml:"phase_bonus"`

	// FailurePenalty per tier (negative), applied on failed outcomes.
	FailurePenalty map[string]float64 `json:"failure_penalty" yaml:"failure_penalty"`

	// LowEngagementPenalty per tier (negative), applied at low engagement.
	LowEngagementPenalty map[string]float64 `json:"low_engagement_penalty" yaml:"low_engagement_penalty"`

	// SequenceBonus per tier, scaled by the beneficial-sequence table.
	SequenceBonus map[string]float64 `json:"sequence_bonus" yaml:"sequence_bonus"`

	// MasteryAlpha is the per-tier EMA rate for learning-outcome mastery.
	MasteryAlpha map[string]float64 `json:"mastery_alpha" yaml:"mastery_alpha"`

	// MasteryClusterBonus is the per-tier multiplier on mastery gains.
	MasteryClusterBonus map[string]float64 `json:"mastery_cluster_bonus" yaml:"mastery_cluster_bonus"`

	// Clip bounds the final reward to [-Clip, +Clip]. When UseTanh is set,
	// the total is tanh-scaled into the same range instead of hard-clipped.
	Clip    float64 `json:"clip" yaml:"clip"`
	UseTanh bool    `json:"use_tanh" yaml:"use_tanh"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Alpha:        0.1,
			Gamma:        0.9,
			Epsilon:      0.3,
			EpsilonDecay: 0.995,
			EpsilonFloor: 0.05,
		},
		Trigger: TriggerConfig{
			MinBufferSize: 3,
			MaxElapsed:    5 * time.Minute,
			OnKindChange:  true,
			OnScore:       true,
		},
		Engine: EngineConfig{
			HistoryWindow:       20,
			IdleEviction:        2 * time.Hour,
			CollaboratorTimeout: 2 * time.Second,
			LessonCacheSize:     1024,
			RecentRepeatWindow:  3,
		},
		Cluster: ClusterConfig{
			ExcludedClusterID: -1,
		},
		Reward: RewardConfig{
			CompletionBonus: map[string]float64{
				"weak": 3.0, "medium": 2.0, "strong": 1.5,
			},
			ScoreImprovementMultiplier: 4.0,
			MilestoneScore:             0.6,
			MilestoneBonus:             2.0,
			HighScore:                  0.85,
			HighScoreBonus:             1.5,
			ProgressionBonus: map[string]float64{
				"weak": 2.0, "medium": 1.5, "strong": 1.0,
			},
			TimeEfficiencyRatio: 0.75,
			TimeEfficiencyBonus: 1.0,
			EngagementBonus: map[string]float64{
				"low": 0.0, "medium": 0.5, "high": 1.0,
			},
			PhaseBonus: map[string]float64{
				"pre": 0.2, "active": 0.8, "reflective": 0.5,
			},
			FailurePenalty: map[string]float64{
				"weak": -0.5, "medium": -1.0, "strong": -1.5,
			},
			LowEngagementPenalty: map[string]float64{
				"weak": -0.3, "medium": -0.5, "strong": -0.8,
			},
			SequenceBonus: map[string]float64{
				"weak": 1.5, "medium": 1.0, "strong": 0.8,
			},
			MasteryAlpha: map[string]float64{
				"weak": 0.15, "medium": 0.25, "strong": 0.35,
			},
			MasteryClusterBonus: map[string]float64{
				"weak": 1.5, "medium": 1.2, "strong": 1.0,
			},
			Clip:    10.0,
			UseTanh: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment
// variables. Order: defaults -> <root>/.tutorloop/config.yaml -> env vars.
func Load(root string) (*Config, error) {
	config := Default()

	configPath := filepath.Join(root, ".tutorloop", "config.yaml")
	if _, statErr := os.Stat(configPath); statErr == nil {
		fileConfig, loadErr := LoadFromFile(configPath)
		if loadErr != nil {
			return nil, fmt.Errorf("loading config file: %w", loadErr)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// ${VAR} references resolve from the environment before parsing, so
	// paths like profiles_path can vary per deployment.
	data = []byte(os.Expand(string(data), os.Getenv))

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Agent.Alpha <= 0 || c.Agent.Alpha > 1 {
		return fmt.Errorf("agent.alpha must be in (0,1], got %f", c.Agent.Alpha)
	}
	if c.Agent.Gamma < 0 || c.Agent.Gamma > 1 {
		return fmt.Errorf("agent.gamma must be in [0,1], got %f", c.Agent.Gamma)
	}
	if c.Agent.Epsilon < 0 || c.Agent.Epsilon > 1 {
		return fmt.Errorf("agent.epsilon must be in [0,1], got %f", c.Agent.Epsilon)
	}
	if c.Agent.EpsilonDecay <= 0 || c.Agent.EpsilonDecay > 1 {
		return fmt.Errorf("agent.epsilon_decay must be in (0,1], got %f", c.Agent.EpsilonDecay)
	}
	if c.Agent.EpsilonFloor < 0 || c.Agent.EpsilonFloor > c.Agent.Epsilon {
		return fmt.Errorf("agent.epsilon_floor must be in [0, epsilon], got %f", c.Agent.EpsilonFloor)
	}

	if c.Trigger.MinBufferSize < 1 {
		return fmt.Errorf("trigger.min_buffer_size must be >= 1, got %d", c.Trigger.MinBufferSize)
	}
	if c.Trigger.MaxElapsed < 0 {
		return fmt.Errorf("trigger.max_elapsed must be non-negative, got %v", c.Trigger.MaxElapsed)
	}

	if c.Engine.HistoryWindow < 1 {
		return fmt.Errorf("engine.history_window must be >= 1, got %d", c.Engine.HistoryWindow)
	}
	if c.Engine.LessonCacheSize < 1 {
		return fmt.Errorf("engine.lesson_cache_size must be >= 1, got %d", c.Engine.LessonCacheSize)
	}

	if c.Reward.Clip <= 0 {
		return fmt.Errorf("reward.clip must be positive, got %f", c.Reward.Clip)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TUTORLOOP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("TUTORLOOP_EPSILON"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Agent.Epsilon = f
		}
	}

	if v := os.Getenv("TUTORLOOP_REWARD_CLIP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Reward.Clip = f
		}
	}

	if v := os.Getenv("TUTORLOOP_CLUSTER_PROFILES"); v != "" {
		config.Cluster.ProfilesPath = v
	}
}
