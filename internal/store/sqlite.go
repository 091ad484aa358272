package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tutorloop/tutorloop/internal/agent"
	"github.com/tutorloop/tutorloop/internal/state"
)

// DataDirName is the per-deployment data directory under the root.
const DataDirName = ".tutorloop"

// Store is the SQLite-backed persistence layer. A single instance owns the
// database; SQLite runs with one writer connection and WAL journaling.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	dir    string
	dbPath string
}

// Open creates (or opens) the database at <root>/.tutorloop/tutorloop.db
// and initializes the schema. A database with a newer schema version is an
// error: a corrupt or future-format model must fail at startup, not learn
// from scratch behind the operator's back.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, DataDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dir, "tutorloop.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with a single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dir: dir, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// SaveModel replaces the persisted value table and metadata with the given
// snapshot, atomically.
func (s *Store) SaveModel(ctx context.Context, snap agent.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM q_values`); err != nil {
		return fmt.Errorf("failed to clear value table: %w", err)
	}

	ins, err := tx.PrepareContext(ctx, `INSERT INTO q_values (state, action, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer ins.Close()

	for _, e := range snap.Entries {
		key, err := json.Marshal(e.State)
		if err != nil {
			return fmt.Errorf("failed to encode state: %w", err)
		}
		if _, err := ins.ExecContext(ctx, string(key), e.Action, e.Value); err != nil {
			return fmt.Errorf("failed to insert cell: %w", err)
		}
	}

	meta := map[string]string{
		"model_version": strconv.Itoa(snap.Version),
		"alpha":         formatFloat(snap.Alpha),
		"gamma":         formatFloat(snap.Gamma),
		"epsilon":       formatFloat(snap.Epsilon),
		"epsilon_decay": formatFloat(snap.Decay),
		"epsilon_floor": formatFloat(snap.Floor),
		"episodes":      strconv.Itoa(snap.Episodes),
		"updates":       strconv.Itoa(snap.Updates),
		"num_actions":   strconv.Itoa(snap.NumActions),
		"saved_at":      time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO model_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("failed to write metadata %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model: %w", err)
	}
	return nil
}

// LoadModel reads the persisted snapshot. found is false when no model has
// been saved yet; a present but undecodable model is an error.
func (s *Store) LoadModel(ctx context.Context) (agent.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(ctx)
	if err != nil {
		return agent.Snapshot{}, false, err
	}
	if _, ok := meta["model_version"]; !ok {
		return agent.Snapshot{}, false, nil
	}

	snap := agent.Snapshot{
		Version:    metaInt(meta, "model_version"),
		Alpha:      metaFloat(meta, "alpha"),
		Gamma:      metaFloat(meta, "gamma"),
		Epsilon:    metaFloat(meta, "epsilon"),
		Decay:      metaFloat(meta, "epsilon_decay"),
		Floor:      metaFloat(meta, "epsilon_floor"),
		Episodes:   metaInt(meta, "episodes"),
		Updates:    metaInt(meta, "updates"),
		NumActions: metaInt(meta, "num_actions"),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT state, action, value FROM q_values ORDER BY state, action`)
	if err != nil {
		return agent.Snapshot{}, false, fmt.Errorf("failed to read value table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var e agent.Entry
		if err := rows.Scan(&key, &e.Action, &e.Value); err != nil {
			return agent.Snapshot{}, false, fmt.Errorf("failed to scan cell: %w", err)
		}
		var st state.State
		if err := json.Unmarshal([]byte(key), &st); err != nil {
			return agent.Snapshot{}, false, fmt.Errorf("corrupt state key %q: %w", key, err)
		}
		e.State = st
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return agent.Snapshot{}, false, fmt.Errorf("failed to iterate value table: %w", err)
	}

	return snap, true, nil
}

// ResetModel drops the persisted value table and model metadata. Mastery
// and course structure are untouched.
func (s *Store) ResetModel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM q_values`); err != nil {
		return fmt.Errorf("failed to clear value table: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM model_meta WHERE key != 'schema_version'`); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return tx.Commit()
}

// ModelStats summarizes the persisted model.
type ModelStats struct {
	Present   bool    `json:"present"`
	Version   int     `json:"version,omitempty"`
	States    int     `json:"states"`
	Cells     int     `json:"cells"`
	Episodes  int     `json:"episodes"`
	Updates   int     `json:"updates"`
	Epsilon   float64 `json:"epsilon"`
	SavedAt   string  `json:"saved_at,omitempty"`
	Learners  int     `json:"learners_with_mastery"`
	Masteries int     `json:"mastery_estimates"`
}

// Stats reports summary statistics without materializing the snapshot.
func (s *Store) Stats(ctx context.Context) (ModelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(ctx)
	if err != nil {
		return ModelStats{}, err
	}

	stats := ModelStats{
		Version:  metaInt(meta, "model_version"),
		Episodes: metaInt(meta, "episodes"),
		Updates:  metaInt(meta, "updates"),
		Epsilon:  metaFloat(meta, "epsilon"),
		SavedAt:  meta["saved_at"],
	}
	_, stats.Present = meta["model_version"]

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT state) FROM q_values`).Scan(&stats.Cells, &stats.States); err != nil {
		return ModelStats{}, fmt.Errorf("failed to count cells: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT student_id) FROM mastery`).Scan(&stats.Masteries, &stats.Learners); err != nil {
		return ModelStats{}, fmt.Errorf("failed to count mastery: %w", err)
	}
	return stats, nil
}

// SaveMastery upserts one student's mastery estimates.
func (s *Store) SaveMastery(ctx context.Context, studentID int64, estimates map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for outcomeID, m := range estimates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mastery (student_id, outcome_id, mastery, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(student_id, outcome_id) DO UPDATE SET mastery = excluded.mastery, updated_at = excluded.updated_at`,
			studentID, outcomeID, m, now); err != nil {
			return fmt.Errorf("failed to upsert mastery: %w", err)
		}
	}
	return tx.Commit()
}

// LoadMastery reads one student's mastery estimates. Empty map when none.
func (s *Store) LoadMastery(ctx context.Context, studentID int64) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome_id, mastery FROM mastery WHERE student_id = ?`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read mastery: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var m float64
		if err := rows.Scan(&id, &m); err != nil {
			return nil, fmt.Errorf("failed to scan mastery: %w", err)
		}
		out[id] = m
	}
	return out, rows.Err()
}

// LoadAllMastery reads every student's estimates, keyed by student id.
func (s *Store) LoadAllMastery(ctx context.Context) (map[int64]map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT student_id, outcome_id, mastery FROM mastery`)
	if err != nil {
		return nil, fmt.Errorf("failed to read mastery: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]map[string]float64)
	for rows.Next() {
		var studentID int64
		var outcomeID string
		var m float64
		if err := rows.Scan(&studentID, &outcomeID, &m); err != nil {
			return nil, fmt.Errorf("failed to scan mastery: %w", err)
		}
		if out[studentID] == nil {
			out[studentID] = make(map[string]float64)
		}
		out[studentID][outcomeID] = m
	}
	return out, rows.Err()
}

// readMeta loads the full model_meta table. Caller holds a lock.
func (s *Store) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM model_meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func metaInt(meta map[string]string, key string) int {
	n, _ := strconv.Atoi(meta[key])
	return n
}

func metaFloat(meta map[string]string, key string) float64 {
	f, _ := strconv.ParseFloat(meta[key], 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ErrNoModel reports a load against an empty store where a model was
// required.
var ErrNoModel = errors.New("store: no model saved")
