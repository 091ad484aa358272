// Package agent implements the tabular action-value learner that ranks
// recommendation actions. The table maps (state, action index) to a value
// estimate; selection is epsilon-greedy with geometric epsilon decay, and
// learning is a single-step Bellman update. The table is shared mutable
// state across all learner contexts, so every read and update is serialized
// behind the agent's lock — updates are small numeric operations, a single
// mutex is sufficient.
package agent

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tutorloop/tutorloop/internal/config"
	"github.com/tutorloop/tutorloop/internal/state"
)

// ErrUnknownAction is returned when an update names an action index outside
// the catalog. This is a caller bug, not a recoverable runtime condition,
// and is never swallowed.
var ErrUnknownAction = errors.New("agent: action index outside catalog")

// cell keys the value table.
type cell struct {
	state  state.State
	action int
}

// Agent is the tabular Q-learning agent. Safe for concurrent use.
type Agent struct {
	mu sync.Mutex

	table   map[cell]float64
	alpha   float64
	gamma   float64
	epsilon float64
	decay   float64
	floor   float64

	numActions int // catalog size; bounds valid action indices

	episodes int
	updates  int

	rng *rand.Rand
}

// New creates an agent for a catalog of numActions actions. A zero seed
// picks a time-based one; tests pass a fixed seed for reproducibility.
func New(cfg config.AgentConfig, numActions int, seed int64) *Agent {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Agent{
		table:      make(map[cell]float64),
		alpha:      cfg.Alpha,
		gamma:      cfg.Gamma,
		epsilon:    cfg.Epsilon,
		decay:      cfg.EpsilonDecay,
		floor:      cfg.EpsilonFloor,
		numActions: numActions,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Value returns the stored estimate for (s, action). Never-seen pairs
// return 0.0 — a normal, expected condition, not an error.
func (a *Agent) Value(s state.State, action int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table[cell{s, action}]
}

// Select chooses among available action indices. With probability epsilon
// (when explore is set) it picks uniformly at random; otherwise it picks the
// highest-valued action. When every candidate still carries the never-seen
// default, the greedy path also picks at random — a deterministic argmax
// would bias cold states toward the lowest action index.
func (a *Agent) Select(s state.State, available []int, explore bool) (int, error) {
	if len(available) == 0 {
		return 0, errors.New("agent: no available actions")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if explore && a.rng.Float64() < a.epsilon {
		return available[a.rng.Intn(len(available))], nil
	}

	best := available[0]
	bestValue := a.table[cell{s, best}]
	allDefault := true
	for _, idx := range available {
		v, seen := a.table[cell{s, idx}]
		if seen {
			allDefault = false
		}
		if v > bestValue {
			best = idx
			bestValue = v
		}
	}

	if allDefault {
		return available[a.rng.Intn(len(available))], nil
	}
	return best, nil
}

// Rank returns the stored values for the available actions in input order.
func (a *Agent) Rank(s state.State, available []int) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(available))
	for i, idx := range available {
		out[i] = a.table[cell{s, idx}]
	}
	return out
}

// Update applies the single-step Bellman update for the observed transition:
//
//	Q(s,a) <- Q(s,a) + alpha * (r + gamma*max_a' Q(s',a') - Q(s,a))
//
// with the next-state value forced to 0 on terminal transitions (course
// completed: progress 1.0 at the final lesson).
func (a *Agent) Update(s state.State, action int, r float64, next state.State, terminal bool) error {
	if action < 0 || action >= a.numActions {
		return fmt.Errorf("%w: %d (catalog size %d)", ErrUnknownAction, action, a.numActions)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := cell{s, action}
	old := a.table[key]

	var future float64
	if !terminal {
		future = a.maxValueLocked(next)
	}

	target := r + a.gamma*future
	a.table[key] = old + a.alpha*(target-old)
	a.updates++
	return nil
}

// maxValueLocked returns max_a Q(s, a) over the whole catalog. Caller holds
// the lock.
func (a *Agent) maxValueLocked(s state.State) float64 {
	var best float64
	for idx := 0; idx < a.numActions; idx++ {
		if v := a.table[cell{s, idx}]; v > best {
			best = v
		}
	}
	return best
}

// EndEpisode decays epsilon geometrically down to the floor and bumps the
// episode counter.
func (a *Agent) EndEpisode() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.episodes++
	a.epsilon *= a.decay
	if a.epsilon < a.floor {
		a.epsilon = a.floor
	}
}

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epsilon
}

// Stats reports cumulative counters and table size.
func (a *Agent) Stats() (episodes, updates, tableSize int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.episodes, a.updates, len(a.table)
}

// Reset clears the table and counters, keeping hyperparameters.
func (a *Agent) Reset(epsilon float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.table = make(map[cell]float64)
	a.episodes = 0
	a.updates = 0
	a.epsilon = epsilon
}
