package state

import (
	"math/rand"
	"testing"

	"github.com/tutorloop/tutorloop/internal/cluster"
	"github.com/tutorloop/tutorloop/internal/events"
)

func TestQuartileBin(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0.25},
		{0.1, 0.25},
		{0.25, 0.25},
		{0.26, 0.5},
		{0.5, 0.5},
		{0.6, 0.75},
		{0.75, 0.75},
		{0.76, 1.0},
		{1.0, 1.0},
	}
	for _, tt := range tests {
		if got := QuartileBin(tt.in); got != tt.want {
			t.Errorf("QuartileBin(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Binning is monotonic over [0,1] and idempotent: binning a binned value
// yields the same bin.
func TestQuartileBin_MonotonicIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	prev := QuartileBin(0)
	for i := 0; i <= 1000; i++ {
		v := float64(i) / 1000
		b := QuartileBin(v)
		if b < prev {
			t.Fatalf("not monotonic at %v: %v < %v", v, b, prev)
		}
		prev = b
		if QuartileBin(b) != b {
			t.Fatalf("not idempotent at %v: bin %v rebins to %v", v, b, QuartileBin(b))
		}
	}
	for i := 0; i < 200; i++ {
		v := rng.Float64()
		if QuartileBin(QuartileBin(v)) != QuartileBin(v) {
			t.Fatalf("not idempotent at random %v", v)
		}
	}
}

func TestEncode_Pure(t *testing.T) {
	recent := []events.ActionKind{events.ActionViewContent, events.ActionAttemptQuiz}
	a := Encode(cluster.TierWeak, 3, recent, 0.4, 0.9)
	b := Encode(cluster.TierWeak, 3, recent, 0.4, 0.9)
	if a != b {
		t.Errorf("Encode is not deterministic: %v vs %v", a, b)
	}
	if a.ProgressBin != 0.5 || a.ScoreBin != 1.0 {
		t.Errorf("unexpected bins: %+v", a)
	}
}

func TestLearningPhase(t *testing.T) {
	tests := []struct {
		name     string
		recent   []events.ActionKind
		progress float64
		want     LearningPhase
	}{
		{
			name:   "empty history is pre",
			recent: nil,
			want:   PhasePre,
		},
		{
			name:   "views only is pre",
			recent: []events.ActionKind{events.ActionViewContent, events.ActionViewContent, events.ActionViewContent},
			want:   PhasePre,
		},
		{
			name:   "two active events",
			recent: []events.ActionKind{events.ActionViewContent, events.ActionAttemptQuiz, events.ActionSubmitQuiz},
			want:   PhaseActive,
		},
		{
			name:     "reflective with progress",
			recent:   []events.ActionKind{events.ActionReviewQuiz, events.ActionPostForum},
			progress: 0.7,
			want:     PhaseReflective,
		},
		{
			name:     "reflective without progress stays pre",
			recent:   []events.ActionKind{events.ActionReviewQuiz, events.ActionPostForum},
			progress: 0.5,
			want:     PhasePre,
		},
		{
			name: "active events outside window ignored",
			recent: []events.ActionKind{
				events.ActionAttemptQuiz, events.ActionSubmitQuiz, // fall outside last 5
				events.ActionViewContent, events.ActionViewContent, events.ActionViewContent,
				events.ActionViewContent, events.ActionViewContent,
			},
			want: PhasePre,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Encode(cluster.TierMedium, 0, tt.recent, tt.progress, 0)
			if s.Phase != tt.want {
				t.Errorf("phase = %q, want %q", s.Phase, tt.want)
			}
		})
	}
}

func TestEngagementLevel(t *testing.T) {
	tests := []struct {
		name   string
		recent []events.ActionKind
		want   EngagementLevel
	}{
		{
			name:   "no events is low",
			recent: nil,
			want:   EngagementLow,
		},
		{
			name: "views only is low",
			recent: []events.ActionKind{
				events.ActionViewContent, events.ActionViewContent, events.ActionViewContent,
			},
			want: EngagementLow,
		},
		{
			name: "mixed work is medium",
			recent: []events.ActionKind{
				events.ActionViewContent, events.ActionAttemptQuiz, events.ActionSubmitQuiz,
			},
			want: EngagementMedium,
		},
		{
			name: "sustained submissions are high",
			recent: []events.ActionKind{
				events.ActionAttemptQuiz, events.ActionSubmitQuiz,
				events.ActionAttemptQuiz, events.ActionSubmitQuiz,
				events.ActionSubmitAssignment,
			},
			want: EngagementHigh,
		},
		{
			name: "only last ten count",
			recent: append(
				// 10 heavy events outside the window...
				repeatKind(events.ActionSubmitQuiz, 10),
				// ...then 10 light views inside it.
				repeatKind(events.ActionViewContent, 10)...,
			),
			want: EngagementMedium, // 10 views x weight 1 = 10
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Encode(cluster.TierMedium, 0, tt.recent, 0, 0)
			if s.Engagement != tt.want {
				t.Errorf("engagement = %q, want %q", s.Engagement, tt.want)
			}
		})
	}
}

func repeatKind(k events.ActionKind, n int) []events.ActionKind {
	out := make([]events.ActionKind, n)
	for i := range out {
		out[i] = k
	}
	return out
}

func TestState_UsableAsMapKey(t *testing.T) {
	m := map[State]float64{}
	s := Encode(cluster.TierStrong, 1, nil, 0.3, 0.3)
	m[s] = 1.5
	if m[Encode(cluster.TierStrong, 1, nil, 0.3, 0.3)] != 1.5 {
		t.Error("equal states should hash to the same key")
	}
}
