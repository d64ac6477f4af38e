package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evreg/signupd/internal/model"
)

// EventRepository handles persistence for events, quotas, and questions.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, title, date, registration_start, registration_end, open_quota_size, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Date, &e.RegistrationStart,
		&e.RegistrationEnd, &e.OpenQuotaSize, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

// Create inserts a new event with its quotas and questions in one
// transaction and returns the stored rows with generated UUIDs.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.EventDetails, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	details := &model.EventDetails{
		Event: model.Event{
			ID:                uuid.New().String(),
			Title:             req.Title,
			Date:              req.Date,
			RegistrationStart: req.RegistrationStart,
			RegistrationEnd:   req.RegistrationEnd,
			OpenQuotaSize:     req.OpenQuotaSize,
			CreatedAt:         time.Now().UTC(),
		},
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, title, date, registration_start, registration_end, open_quota_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		details.Event.ID, details.Event.Title, details.Event.Date,
		details.Event.RegistrationStart, details.Event.RegistrationEnd,
		details.Event.OpenQuotaSize, details.Event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	for i, q := range req.Quotas {
		quota := model.Quota{
			ID:           uuid.New().String(),
			EventID:      details.Event.ID,
			DisplayOrder: i,
			Title:        q.Title,
			Size:         q.Size,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO quotas (id, event_id, display_order, title, size)
			 VALUES ($1, $2, $3, $4, $5)`,
			quota.ID, quota.EventID, quota.DisplayOrder, quota.Title, quota.Size,
		)
		if err != nil {
			return nil, fmt.Errorf("insert quota: %w", err)
		}
		details.Quotas = append(details.Quotas, quota)
	}

	for i, q := range req.Questions {
		question := model.Question{
			ID:           uuid.New().String(),
			EventID:      details.Event.ID,
			DisplayOrder: i,
			Question:     q.Question,
			Type:         q.Type,
			Options:      q.Options,
			Required:     q.Required,
			Public:       q.Public,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO questions (id, event_id, display_order, question, type, options, required, public)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			question.ID, question.EventID, question.DisplayOrder,
			question.Question, question.Type, question.Options,
			question.Required, question.Public,
		)
		if err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
		details.Questions = append(details.Questions, question)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return details, nil
}

// List returns all live events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE deleted_at IS NULL
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetByID returns a single live event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE id = $1 AND deleted_at IS NULL`,
		id,
	))
}

// GetDetails returns an event with its quotas (including active signup
// counts) and questions.
func (r *EventRepository) GetDetails(ctx context.Context, id string) (*model.EventDetails, error) {
	event, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	details := &model.EventDetails{Event: *event}

	rows, err := r.db.Query(ctx,
		`SELECT q.id, q.event_id, q.display_order, q.title, q.size,
		        COUNT(s.id) FILTER (WHERE s.deleted_at IS NULL)
		 FROM quotas q
		 LEFT JOIN signups s ON s.quota_id = q.id
		 WHERE q.event_id = $1
		 GROUP BY q.id
		 ORDER BY q.display_order`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var q model.Quota
		if err := rows.Scan(&q.ID, &q.EventID, &q.DisplayOrder, &q.Title, &q.Size, &q.SignupCount); err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		details.Quotas = append(details.Quotas, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	details.Questions, err = r.Questions(ctx, id)
	if err != nil {
		return nil, err
	}
	return details, nil
}

// Questions returns an event's questions in display order.
func (r *EventRepository) Questions(ctx context.Context, eventID string) ([]model.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, display_order, question, type, options, required, public
		 FROM questions
		 WHERE event_id = $1
		 ORDER BY display_order`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.EventID, &q.DisplayOrder, &q.Question,
			&q.Type, &q.Options, &q.Required, &q.Public); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuota returns one quota or ErrNotFound.
func (r *EventRepository) GetQuota(ctx context.Context, quotaID string) (*model.Quota, error) {
	return r.getQuota(ctx, r.db, quotaID)
}

// GetQuotaTx is GetQuota inside an open transaction, so the caller sees
// the locked event's current state.
func (r *EventRepository) GetQuotaTx(ctx context.Context, tx pgx.Tx, quotaID string) (*model.Quota, error) {
	return r.getQuota(ctx, tx, quotaID)
}

func (r *EventRepository) getQuota(ctx context.Context, db Querier, quotaID string) (*model.Quota, error) {
	var q model.Quota
	err := db.QueryRow(ctx,
		`SELECT q.id, q.event_id, q.display_order, q.title, q.size
		 FROM quotas q
		 JOIN events e ON e.id = q.event_id
		 WHERE q.id = $1 AND e.deleted_at IS NULL`,
		quotaID,
	).Scan(&q.ID, &q.EventID, &q.DisplayOrder, &q.Title, &q.Size)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return &q, nil
}

// LockForUpdate acquires an exclusive row lock on the event for the
// duration of tx. Every recomputation for an event funnels through this
// lock, which is what serializes concurrent signup traffic per event.
func (r *EventRepository) LockForUpdate(ctx context.Context, tx pgx.Tx, id string) (*model.Event, error) {
	return scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE id = $1 AND deleted_at IS NULL
		 FOR UPDATE`,
		id,
	))
}

// Reload re-reads the event inside tx. Used after a capacity edit so the
// allocation pass sees the new open-quota size.
func (r *EventRepository) Reload(ctx context.Context, tx pgx.Tx, id string) (*model.Event, error) {
	return scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE id = $1 AND deleted_at IS NULL`,
		id,
	))
}

// UpdateOpenQuotaSize sets the event's shared overflow capacity.
func (r *EventRepository) UpdateOpenQuotaSize(ctx context.Context, tx pgx.Tx, eventID string, size int) error {
	_, err := tx.Exec(ctx,
		`UPDATE events SET open_quota_size = $2 WHERE id = $1`,
		eventID, size,
	)
	if err != nil {
		return fmt.Errorf("update open quota size: %w", err)
	}
	return nil
}

// UpdateQuotaSize resizes one quota. ErrNotFound if the quota does not
// belong to the event.
func (r *EventRepository) UpdateQuotaSize(ctx context.Context, tx pgx.Tx, eventID, quotaID string, size *int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE quotas SET size = $3 WHERE id = $1 AND event_id = $2`,
		quotaID, eventID, size,
	)
	if err != nil {
		return fmt.Errorf("update quota size: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveQuota deletes one quota; its signups and their answers go with
// it via cascading foreign keys.
func (r *EventRepository) RemoveQuota(ctx context.Context, tx pgx.Tx, eventID, quotaID string) error {
	tag, err := tx.Exec(ctx,
		`DELETE FROM quotas WHERE id = $1 AND event_id = $2`,
		quotaID, eventID,
	)
	if err != nil {
		return fmt.Errorf("remove quota: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
