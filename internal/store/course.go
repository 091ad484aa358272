package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tutorloop/tutorloop/internal/course"
)

// CourseStore serves the course-structure collaborator contract from the
// SQLite database. It satisfies course.Structure and course.ProgressSource
// consumers indirectly: progression is derived from the user_lessons table.
type CourseStore struct {
	s *Store
}

// Courses returns the course-structure view of the store.
func (s *Store) Courses() *CourseStore { return &CourseStore{s: s} }

// ImportCourse replaces one course's structure with the given definition.
func (s *Store) ImportCourse(ctx context.Context, c course.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"lessons", "activities", "activity_outcomes", "outcome_weights"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE course_id = ?`, table), c.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO courses (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`, c.ID, c.Name); err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}

	for pos, l := range c.Lessons {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lessons (id, course_id, name, position) VALUES (?, ?, ?, ?)`,
			l.ID, c.ID, l.Name, pos); err != nil {
			return fmt.Errorf("failed to insert lesson %d: %w", l.ID, err)
		}
		for _, a := range l.Activities {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO activities (id, course_id, lesson_id, name, type, expected_seconds)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				a.ID, c.ID, l.ID, a.Name, a.Type, a.ExpectedSeconds); err != nil {
				return fmt.Errorf("failed to insert activity %d: %w", a.ID, err)
			}
			for _, outcomeID := range a.Outcomes {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO activity_outcomes (course_id, activity_id, outcome_id) VALUES (?, ?, ?)`,
					c.ID, a.ID, outcomeID); err != nil {
					return fmt.Errorf("failed to insert outcome binding: %w", err)
				}
			}
		}
	}

	for outcomeID, w := range c.OutcomeWeights {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outcome_weights (course_id, outcome_id, weight) VALUES (?, ?, ?)`,
			c.ID, outcomeID, w); err != nil {
			return fmt.Errorf("failed to insert outcome weight: %w", err)
		}
	}

	return tx.Commit()
}

// LoadCourse reassembles a full course definition from the store. Returns
// course.ErrNotFound when the course was never imported.
func (s *Store) LoadCourse(ctx context.Context, courseID int64) (course.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c course.Course
	c.ID = courseID
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM courses WHERE id = ?`, courseID).Scan(&c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return course.Course{}, course.ErrNotFound
	}
	if err != nil {
		return course.Course{}, fmt.Errorf("failed to load course %d: %w", courseID, err)
	}

	lessonRows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM lessons WHERE course_id = ? ORDER BY position`, courseID)
	if err != nil {
		return course.Course{}, fmt.Errorf("failed to load lessons: %w", err)
	}
	defer lessonRows.Close()
	for lessonRows.Next() {
		var l course.Lesson
		if err := lessonRows.Scan(&l.ID, &l.Name); err != nil {
			return course.Course{}, fmt.Errorf("failed to scan lesson: %w", err)
		}
		c.Lessons = append(c.Lessons, l)
	}
	if err := lessonRows.Err(); err != nil {
		return course.Course{}, fmt.Errorf("failed to iterate lessons: %w", err)
	}

	for i := range c.Lessons {
		acts, err := s.loadActivities(ctx, courseID, c.Lessons[i].ID)
		if err != nil {
			return course.Course{}, err
		}
		c.Lessons[i].Activities = acts
	}

	weightRows, err := s.db.QueryContext(ctx,
		`SELECT outcome_id, weight FROM outcome_weights WHERE course_id = ?`, courseID)
	if err != nil {
		return course.Course{}, fmt.Errorf("failed to load outcome weights: %w", err)
	}
	defer weightRows.Close()
	for weightRows.Next() {
		var id string
		var w float64
		if err := weightRows.Scan(&id, &w); err != nil {
			return course.Course{}, fmt.Errorf("failed to scan outcome weight: %w", err)
		}
		if c.OutcomeWeights == nil {
			c.OutcomeWeights = make(map[string]float64)
		}
		c.OutcomeWeights[id] = w
	}
	return c, weightRows.Err()
}

func (s *Store) loadActivities(ctx context.Context, courseID, lessonID int64) ([]course.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, expected_seconds FROM activities
		 WHERE course_id = ? AND lesson_id = ? ORDER BY id`, courseID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	defer rows.Close()

	var acts []course.Activity
	for rows.Next() {
		a := course.Activity{LessonID: lessonID}
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.ExpectedSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		acts = append(acts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range acts {
		outcomeRows, err := s.db.QueryContext(ctx,
			`SELECT outcome_id FROM activity_outcomes WHERE course_id = ? AND activity_id = ?`,
			courseID, acts[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load activity outcomes: %w", err)
		}
		for outcomeRows.Next() {
			var id string
			if err := outcomeRows.Scan(&id); err != nil {
				outcomeRows.Close()
				return nil, fmt.Errorf("failed to scan activity outcome: %w", err)
			}
			acts[i].Outcomes = append(acts[i].Outcomes, id)
		}
		if err := outcomeRows.Err(); err != nil {
			outcomeRows.Close()
			return nil, err
		}
		outcomeRows.Close()
	}
	return acts, nil
}

// ObserveUserLesson records that a user touched a lesson, advancing their
// progression.
func (s *Store) ObserveUserLesson(ctx context.Context, userID, courseID, lessonID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_lessons (user_id, course_id, lesson_id, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, course_id, lesson_id) DO UPDATE SET last_seen = excluded.last_seen`,
		userID, courseID, lessonID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record user lesson: %w", err)
	}
	return nil
}

func (cs *CourseStore) ResolveLesson(ctx context.Context, courseID, contextInstanceID int64) (int64, bool, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	var lessonID int64
	err := cs.s.db.QueryRowContext(ctx,
		`SELECT lesson_id FROM activities WHERE course_id = ? AND id = ?`,
		courseID, contextInstanceID).Scan(&lessonID)
	if errors.Is(err, sql.ErrNoRows) {
		// The instance may itself be a lesson id.
		err = cs.s.db.QueryRowContext(ctx,
			`SELECT id FROM lessons WHERE course_id = ? AND id = ?`,
			courseID, contextInstanceID).Scan(&lessonID)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve lesson: %w", err)
	}
	return lessonID, true, nil
}

func (cs *CourseStore) LessonName(ctx context.Context, courseID, lessonID int64) (string, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	var name string
	err := cs.s.db.QueryRowContext(ctx,
		`SELECT name FROM lessons WHERE course_id = ? AND id = ?`, courseID, lessonID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", course.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lesson name: %w", err)
	}
	return name, nil
}

func (cs *CourseStore) LessonIndex(ctx context.Context, courseID, lessonID int64) (int, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	var pos int
	err := cs.s.db.QueryRowContext(ctx,
		`SELECT position FROM lessons WHERE course_id = ? AND id = ?`, courseID, lessonID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, course.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read lesson index: %w", err)
	}
	return pos, nil
}

// Progression derives the past/current/future split from the lessons the
// user has touched: the highest-positioned touched lesson is current,
// everything touched before it is past, the rest of the course is future.
func (cs *CourseStore) Progression(ctx context.Context, userID, courseID int64) (course.Progression, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	rows, err := cs.s.db.QueryContext(ctx,
		`SELECT l.id, l.position,
		        EXISTS (SELECT 1 FROM user_lessons u
		                WHERE u.user_id = ? AND u.course_id = l.course_id AND u.lesson_id = l.id) AS touched
		 FROM lessons l WHERE l.course_id = ? ORDER BY l.position`,
		userID, courseID)
	if err != nil {
		return course.Progression{}, fmt.Errorf("failed to read progression: %w", err)
	}
	defer rows.Close()

	p := course.Progression{
		Past:   make(map[int64]bool),
		Future: make(map[int64]bool),
	}
	type lessonRow struct {
		id      int64
		touched bool
	}
	var all []lessonRow
	currentIdx := -1
	for i := 0; rows.Next(); i++ {
		var r lessonRow
		var pos int
		if err := rows.Scan(&r.id, &pos, &r.touched); err != nil {
			return course.Progression{}, fmt.Errorf("failed to scan progression: %w", err)
		}
		all = append(all, r)
		if r.touched {
			currentIdx = i
		}
	}
	if err := rows.Err(); err != nil {
		return course.Progression{}, err
	}

	for i, r := range all {
		switch {
		case i == currentIdx:
			p.Current = r.id
		case i < currentIdx:
			p.Past[r.id] = true
		default:
			p.Future[r.id] = true
		}
	}
	// Nothing touched yet: the first lesson is current.
	if currentIdx == -1 && len(all) > 0 {
		p.Current = all[0].id
		delete(p.Future, all[0].id)
	}
	return p, nil
}

func (cs *CourseStore) Activities(ctx context.Context, courseID, lessonID int64) ([]course.Activity, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	rows, err := cs.s.db.QueryContext(ctx,
		`SELECT id, lesson_id, name, type, expected_seconds
		 FROM activities WHERE course_id = ? AND lesson_id = ? ORDER BY id`,
		courseID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to read activities: %w", err)
	}
	defer rows.Close()

	var out []course.Activity
	for rows.Next() {
		var a course.Activity
		if err := rows.Scan(&a.ID, &a.LessonID, &a.Name, &a.Type, &a.ExpectedSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (cs *CourseStore) ActivityOutcomes(ctx context.Context, courseID, activityID int64) ([]string, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	rows, err := cs.s.db.QueryContext(ctx,
		`SELECT outcome_id FROM activity_outcomes WHERE course_id = ? AND activity_id = ? ORDER BY outcome_id`,
		courseID, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity outcomes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// OutcomeWeight returns 0 for unknown outcomes, matching the in-memory
// implementation: an unweighted outcome contributes no mastery bonus.
func (cs *CourseStore) OutcomeWeight(ctx context.Context, courseID int64, outcomeID string) (float64, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	var w float64
	err := cs.s.db.QueryRowContext(ctx,
		`SELECT weight FROM outcome_weights WHERE course_id = ? AND outcome_id = ?`,
		courseID, outcomeID).Scan(&w)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read outcome weight: %w", err)
	}
	return w, nil
}

var _ course.Structure = (*CourseStore)(nil)
