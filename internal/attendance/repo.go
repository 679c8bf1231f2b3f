package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists the session audit trail in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertEvent writes an event. Redelivered events are ignored.
func (r *Repository) InsertEvent(ctx context.Context, evt SessionEvent) error {
	if evt.ID == "" {
		return errors.New("event id required")
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_events (id, kind, class_id, class_name, state, student_id, verdict, message, record_count, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, string(evt.Kind), evt.ClassID, evt.ClassName, string(evt.State), evt.StudentID, string(evt.Verdict), evt.Message, len(evt.Records), evt.At)
	return err
}

// InsertCommittedRecords stores the batch written back by a commit.
func (r *Repository) InsertCommittedRecords(ctx context.Context, eventID, classID string, records []StudentRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// a redelivered commit replaces its previous rows
	if _, err := tx.ExecContext(ctx, `DELETE FROM committed_records WHERE event_id = $1`, eventID); err != nil {
		return err
	}
	for _, rec := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO committed_records (event_id, class_id, student_id, name, confidence, status, checkins, feedback, record_date, record_time)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, eventID, classID, rec.StudentID, rec.Name, rec.Confidence, rec.Status, rec.Checkins, string(rec.Feedback), rec.Date, rec.Time)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", rec.StudentID, err)
		}
	}
	return tx.Commit()
}

// StoredEvent is an audit row as read back.
type StoredEvent struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ClassID     string    `json:"class_id"`
	ClassName   string    `json:"class_name"`
	State       string    `json:"state"`
	StudentID   string    `json:"student_id"`
	Verdict     string    `json:"verdict"`
	Message     string    `json:"message"`
	RecordCount int       `json:"record_count"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	ClassID string
	Kind    string
	Limit   int
	Offset  int
}

// ListEvents returns events newest first.
func (r *Repository) ListEvents(ctx context.Context, f EventFilter) ([]StoredEvent, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query, args := buildEventQuery(f)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.ClassID, &e.ClassName, &e.State, &e.StudentID, &e.Verdict, &e.Message, &e.RecordCount, &e.OccurredAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func buildEventQuery(f EventFilter) (string, []any) {
	query := `SELECT id, kind, class_id, class_name, state, student_id, verdict, message, record_count, occurred_at FROM session_events`
	args := []any{}
	clauses := []string{}
	if f.ClassID != "" {
		args = append(args, f.ClassID)
		clauses = append(clauses, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)
	return query, args
}
