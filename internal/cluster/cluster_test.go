package cluster

import "testing"

func profiles() []Profile {
	return []Profile{
		{ClusterID: 0, Grades: []float64{40, 45, 50}},
		{ClusterID: 1, Grades: []float64{70, 72, 75}},
		{ClusterID: 2, Grades: []float64{90, 92, 95}},
		{ClusterID: 3, Grades: []float64{5, 0, 2}}, // non-learner cluster
	}
}

func TestClassifier_TercileSplit(t *testing.T) {
	c, err := NewClassifier(profiles(), 3)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	tests := []struct {
		clusterID int
		want      Tier
	}{
		{0, TierWeak},
		{1, TierMedium},
		{2, TierStrong},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.clusterID); got != tt.want {
			t.Errorf("Classify(%d) = %q, want %q", tt.clusterID, got, tt.want)
		}
	}
}

func TestClassifier_ExcludedClusterIsMedium(t *testing.T) {
	c, err := NewClassifier(profiles(), 3)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	// Cluster 3 has the lowest mean grade but is excluded from ranking.
	if got := c.Classify(3); got != TierMedium {
		t.Errorf("excluded cluster classified %q, want medium", got)
	}
}

func TestClassifier_UnknownClusterIsMedium(t *testing.T) {
	c, err := NewClassifier(profiles(), 3)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if got := c.Classify(99); got != TierMedium {
		t.Errorf("unknown cluster classified %q, want medium", got)
	}
}

func TestClassifier_Errors(t *testing.T) {
	if _, err := NewClassifier(nil, 0); err == nil {
		t.Error("expected error for empty profiles")
	}
	if _, err := NewClassifier([]Profile{{ClusterID: 1}}, 0); err == nil {
		t.Error("expected error for profile with no grades")
	}
}
