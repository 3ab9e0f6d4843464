package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventRow is a stored lifecycle event.
type EventRow struct {
	ID          int64
	Kind        string
	Type        string
	Title       string
	Description string
	AgentID     string
	Priority    string
	Value       *float64
	Metadata    map[string]any
	CreatedAt   time.Time
}

// AssignmentRow is a stored task assignment.
type AssignmentRow struct {
	ID          int64
	TaskID      string
	IssueNumber int
	AgentID     string
	Persona     string
	TaskType    string
	Confidence  float64
	AssignedAt  time.Time
	CompletedAt *time.Time
}

// InsertEvent stores e and returns its row id.
func (d *DB) InsertEvent(ctx context.Context, e EventRow) (int64, error) {
	if d == nil || d.sql == nil {
		return 0, errors.New("db is nil")
	}
	meta := "{}"
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshaling event metadata: %w", err)
		}
		meta = string(b)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var value sql.NullFloat64
	if e.Value != nil {
		value = sql.NullFloat64{Float64: *e.Value, Valid: true}
	}

	res, err := d.sql.ExecContext(ctx, `
		INSERT INTO events (kind, type, title, description, agent_id, priority, value, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.Type, e.Title, e.Description, e.AgentID, e.Priority, value, meta, e.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}
	return res.LastInsertId()
}

// RecentEvents returns up to limit events, newest first. An empty agentID
// matches every agent.
func (d *DB) RecentEvents(ctx context.Context, agentID string, limit int) ([]EventRow, error) {
	if d == nil || d.sql == nil {
		return nil, errors.New("db is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, kind, type, title, description, agent_id, priority, value, metadata, created_at
		FROM events`
	var args []any
	if agentID != "" {
		query += " WHERE agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EventRow
	for rows.Next() {
		var (
			e     EventRow
			value sql.NullFloat64
			meta  string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Type, &e.Title, &e.Description, &e.AgentID, &e.Priority, &value, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if value.Valid {
			v := value.Float64
			e.Value = &v
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling event metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordAssignment stores a new open assignment.
func (d *DB) RecordAssignment(ctx context.Context, a AssignmentRow) (int64, error) {
	if d == nil || d.sql == nil {
		return 0, errors.New("db is nil")
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	res, err := d.sql.ExecContext(ctx, `
		INSERT INTO assignments (task_id, issue_number, agent_id, persona, task_type, confidence, assigned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.TaskID, a.IssueNumber, a.AgentID, a.Persona, a.TaskType, a.Confidence, a.AssignedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting assignment: %w", err)
	}
	return res.LastInsertId()
}

// CompleteAssignment closes the open assignment of agentID. It is not an
// error if the agent has none.
func (d *DB) CompleteAssignment(ctx context.Context, agentID string, at time.Time) error {
	if d == nil || d.sql == nil {
		return errors.New("db is nil")
	}
	_, err := d.sql.ExecContext(ctx, `
		UPDATE assignments SET completed_at = ?
		WHERE agent_id = ? AND completed_at IS NULL`,
		at.UTC(), agentID,
	)
	if err != nil {
		return fmt.Errorf("completing assignment: %w", err)
	}
	return nil
}

// Assignments returns up to limit assignments, newest first.
func (d *DB) Assignments(ctx context.Context, limit int) ([]AssignmentRow, error) {
	if d == nil || d.sql == nil {
		return nil, errors.New("db is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.sql.QueryContext(ctx, `
		SELECT id, task_id, issue_number, agent_id, persona, task_type, confidence, assigned_at, completed_at
		FROM assignments
		ORDER BY assigned_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AssignmentRow
	for rows.Next() {
		var (
			a         AssignmentRow
			completed sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.TaskID, &a.IssueNumber, &a.AgentID, &a.Persona, &a.TaskType, &a.Confidence, &a.AssignedAt, &completed); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		if completed.Valid {
			t := completed.Time
			a.CompletedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
