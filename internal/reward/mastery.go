package reward

import (
	"sync"
)

// MasteryTracker holds per-student learning-outcome mastery in [0,1].
// Mastery is updated with an exponential moving average whose rate depends
// on the student's performance tier; it lives per student, independent of
// lesson context. Safe for concurrent use.
type MasteryTracker struct {
	mu      sync.RWMutex
	mastery map[int64]map[string]float64 // student id -> outcome id -> mastery
}

// NewMasteryTracker creates an empty tracker.
func NewMasteryTracker() *MasteryTracker {
	return &MasteryTracker{mastery: make(map[int64]map[string]float64)}
}

// Get returns the student's mastery of an outcome (0.0 when never updated).
func (t *MasteryTracker) Get(studentID int64, outcomeID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mastery[studentID][outcomeID]
}

// Update moves mastery toward target by rate alpha and returns the old and
// new values: new = old + alpha*(target - old), clamped to [0,1].
func (t *MasteryTracker) Update(studentID int64, outcomeID string, target, alpha float64) (old, updated float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byOutcome, ok := t.mastery[studentID]
	if !ok {
		byOutcome = make(map[string]float64)
		t.mastery[studentID] = byOutcome
	}

	old = byOutcome[outcomeID]
	updated = old + alpha*(target-old)
	if updated < 0 {
		updated = 0
	}
	if updated > 1 {
		updated = 1
	}
	byOutcome[outcomeID] = updated
	return old, updated
}

// Snapshot returns a deep copy of one student's mastery map.
func (t *MasteryTracker) Snapshot(studentID int64) map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.mastery[studentID]))
	for k, v := range t.mastery[studentID] {
		out[k] = v
	}
	return out
}

// SnapshotAll returns a deep copy of the full tracker contents, keyed by
// student id. Used for persistence.
func (t *MasteryTracker) SnapshotAll() map[int64]map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]map[string]float64, len(t.mastery))
	for student, byOutcome := range t.mastery {
		m := make(map[string]float64, len(byOutcome))
		for k, v := range byOutcome {
			m[k] = v
		}
		out[student] = m
	}
	return out
}

// Restore replaces the tracker contents. Values are clamped to [0,1].
func (t *MasteryTracker) Restore(data map[int64]map[string]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mastery = make(map[int64]map[string]float64, len(data))
	for student, byOutcome := range data {
		m := make(map[string]float64, len(byOutcome))
		for k, v := range byOutcome {
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			m[k] = v
		}
		t.mastery[student] = m
	}
}
