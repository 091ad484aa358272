package agent

import (
	"fmt"
	"sort"

	"github.com/tutorloop/tutorloop/internal/state"
)

// SnapshotVersion tags the snapshot format for forward compatibility.
// Bump when the entry layout or semantics change.
const SnapshotVersion = 1

// Entry is one (state, action, value) cell of the table.
type Entry struct {
	State  state.State `json:"state"`
	Action int         `json:"action"`
	Value  float64     `json:"value"`
}

// Snapshot is the full persistable agent state: table contents,
// hyperparameters and cumulative statistics.
type Snapshot struct {
	Version    int     `json:"version"`
	Alpha      float64 `json:"alpha"`
	Gamma      float64 `json:"gamma"`
	Epsilon    float64 `json:"epsilon"`
	Decay      float64 `json:"epsilon_decay"`
	Floor      float64 `json:"epsilon_floor"`
	Episodes   int     `json:"episodes"`
	Updates    int     `json:"updates"`
	NumActions int     `json:"num_actions"`
	Entries    []Entry `json:"entries"`
}

// Snapshot captures the agent's full state. Entries are sorted for stable
// output.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]Entry, 0, len(a.table))
	for k, v := range a.table {
		entries = append(entries, Entry{State: k.state, Action: k.action, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		si, sj := entries[i].State.String(), entries[j].State.String()
		if si != sj {
			return si < sj
		}
		return entries[i].Action < entries[j].Action
	})

	return Snapshot{
		Version:    SnapshotVersion,
		Alpha:      a.alpha,
		Gamma:      a.gamma,
		Epsilon:    a.epsilon,
		Decay:      a.decay,
		Floor:      a.floor,
		Episodes:   a.episodes,
		Updates:    a.updates,
		NumActions: a.numActions,
		Entries:    entries,
	}
}

// Restore replaces the agent's state from a snapshot. An unknown snapshot
// version is fatal for the caller — a corrupt or future-format model must
// surface at startup, not silently learn from scratch.
func (a *Agent) Restore(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("agent: unsupported snapshot version %d (supported: %d)", s.Version, SnapshotVersion)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	table := make(map[cell]float64, len(s.Entries))
	for _, e := range s.Entries {
		if e.Action < 0 || (s.NumActions > 0 && e.Action >= s.NumActions) {
			return fmt.Errorf("agent: snapshot entry action %d out of range", e.Action)
		}
		table[cell{e.State, e.Action}] = e.Value
	}

	a.table = table
	a.alpha = s.Alpha
	a.gamma = s.Gamma
	a.epsilon = s.Epsilon
	a.decay = s.Decay
	a.floor = s.Floor
	a.episodes = s.Episodes
	a.updates = s.Updates
	if s.NumActions > 0 {
		a.numActions = s.NumActions
	}
	return nil
}
