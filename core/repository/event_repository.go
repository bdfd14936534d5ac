package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"llm-finetune/core/models"
)

// EventRepository handles database operations for job events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// RecordJobEvent appends one state transition to the journal
func (r *EventRepository) RecordJobEvent(ctx context.Context, event models.JobEvent) error {
	query := `
		INSERT INTO job_events (job_id, at, from_status, to_status, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	metaJSON, err := encodeMeta(event.Meta)
	if err != nil {
		return err
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, query,
		event.JobID,
		at,
		fromState(event.FromState),
		string(event.ToState),
		event.Reason,
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	return nil
}

// GetJobEvents retrieves events for a job, newest first
func (r *EventRepository) GetJobEvents(jobID string, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT id, job_id, at, from_status, to_status, reason, meta_json
		FROM job_events
		WHERE job_id = $1
		ORDER BY at DESC, id DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(query, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.JobEvent{}
	for rows.Next() {
		var event models.JobEvent
		var from sql.NullString
		var to string
		var metaJSON string

		err := rows.Scan(
			&event.ID,
			&event.JobID,
			&event.At,
			&from,
			&to,
			&event.Reason,
			&metaJSON,
		)
		if err != nil {
			log.Printf("Skipping unreadable event row for job %s: %v", jobID, err)
			continue
		}

		event.ToState = models.JobState(to)
		if from.Valid {
			state := models.JobState(from.String)
			event.FromState = &state
		}
		event.Meta = decodeMeta(metaJSON)

		events = append(events, event)
	}

	return events, rows.Err()
}

// NoopRecorder is used when no journal database is configured
type NoopRecorder struct{}

// RecordJobEvent discards the event
func (NoopRecorder) RecordJobEvent(context.Context, models.JobEvent) error { return nil }

// GetJobEvents always returns an empty list
func (NoopRecorder) GetJobEvents(string, int) ([]models.JobEvent, error) {
	return []models.JobEvent{}, nil
}

func fromState(s *models.JobState) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func encodeMeta(meta map[string]interface{}) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode event meta: %w", err)
	}
	return string(b), nil
}

func decodeMeta(metaJSON string) map[string]interface{} {
	if metaJSON == "" || metaJSON == "{}" {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil
	}
	return meta
}
