// Package store persists the learned model, mastery estimates and course
// structure in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

const schemaV1 = `
-- Model metadata: one row per key. Hyperparameters and counters live here
-- so a snapshot round-trips without a side file.
CREATE TABLE IF NOT EXISTS model_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Value table cells. The state is its canonical JSON encoding; one row per
-- (state, action) pair.
CREATE TABLE IF NOT EXISTS q_values (
    state TEXT NOT NULL,
    action INTEGER NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (state, action)
);

-- Per-student learning-outcome mastery estimates.
CREATE TABLE IF NOT EXISTS mastery (
    student_id INTEGER NOT NULL,
    outcome_id TEXT NOT NULL,
    mastery REAL NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (student_id, outcome_id)
);

-- Course structure. Denormalized enough that every collaborator lookup is
-- a single indexed query.
CREATE TABLE IF NOT EXISTS courses (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lessons (
    id INTEGER NOT NULL,
    course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (course_id, id)
);
CREATE INDEX IF NOT EXISTS idx_lessons_course ON lessons(course_id, position);

CREATE TABLE IF NOT EXISTS activities (
    id INTEGER NOT NULL,
    course_id INTEGER NOT NULL,
    lesson_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'page',
    expected_seconds REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (course_id, id)
);
CREATE INDEX IF NOT EXISTS idx_activities_lesson ON activities(course_id, lesson_id);

CREATE TABLE IF NOT EXISTS activity_outcomes (
    course_id INTEGER NOT NULL,
    activity_id INTEGER NOT NULL,
    outcome_id TEXT NOT NULL,
    PRIMARY KEY (course_id, activity_id, outcome_id)
);

CREATE TABLE IF NOT EXISTS outcome_weights (
    course_id INTEGER NOT NULL,
    outcome_id TEXT NOT NULL,
    weight REAL NOT NULL,
    PRIMARY KEY (course_id, outcome_id)
);

-- Lessons each user has touched. Drives the past/current/future
-- progression split.
CREATE TABLE IF NOT EXISTS user_lessons (
    user_id INTEGER NOT NULL,
    course_id INTEGER NOT NULL,
    lesson_id INTEGER NOT NULL,
    last_seen TEXT NOT NULL,
    PRIMARY KEY (user_id, course_id, lesson_id)
);
`

// InitSchema creates all tables and records the schema version. It fails
// when the database carries a newer schema than this binary understands.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var stored string
	err := db.QueryRowContext(ctx, `SELECT value FROM model_meta WHERE key = 'schema_version'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx,
			`INSERT INTO model_meta (key, value) VALUES ('schema_version', ?)`,
			strconv.Itoa(SchemaVersion)); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	default:
		v, convErr := strconv.Atoi(stored)
		if convErr != nil || v > SchemaVersion {
			return fmt.Errorf("unsupported schema version %q (supported up to %d)", stored, SchemaVersion)
		}
	}
	return nil
}
