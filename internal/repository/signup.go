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

// SignupRepository handles persistence for signups and answers.
type SignupRepository struct {
	db *pgxpool.Pool
}

// NewSignupRepository constructs a SignupRepository.
func NewSignupRepository(db *pgxpool.Pool) *SignupRepository {
	return &SignupRepository{db: db}
}

// Insert creates a provisional hold on the given quota inside tx.
// CreatedAt carries millisecond precision; it is the primary ordering
// key for allocation.
func (r *SignupRepository) Insert(ctx context.Context, tx pgx.Tx, quotaID string) (*model.Signup, error) {
	s := &model.Signup{
		ID:        uuid.New().String(),
		QuotaID:   quotaID,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO signups (id, quota_id, created_at) VALUES ($1, $2, $3)`,
		s.ID, s.QuotaID, s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert signup: %w", err)
	}
	return s, nil
}

// GetByID returns one live signup and its event id, or ErrNotFound.
func (r *SignupRepository) GetByID(ctx context.Context, id string) (*model.Signup, string, error) {
	var (
		s       model.Signup
		eventID string
	)
	err := r.db.QueryRow(ctx,
		`SELECT s.id, s.quota_id, s.created_at, s.confirmed_at, s.status, s.position,
		        s.email, s.first_name, s.last_name, s.name_public, s.language, q.event_id
		 FROM signups s
		 JOIN quotas q ON q.id = s.quota_id
		 WHERE s.id = $1 AND s.deleted_at IS NULL`,
		id,
	).Scan(&s.ID, &s.QuotaID, &s.CreatedAt, &s.ConfirmedAt, &s.Status, &s.Position,
		&s.Email, &s.FirstName, &s.LastName, &s.NamePublic, &s.Language, &eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("get signup: %w", err)
	}
	return &s, eventID, nil
}

// ListActiveForUpdate returns the event's active signups ordered by
// (created_at, id) ascending, holding a row lock on each for the
// duration of tx. Active means not soft-deleted and either confirmed or
// created after the grace cutoff.
//
// The event row must already be locked by the caller; taking signup
// locks only after the event lock keeps lock acquisition ordered and
// deadlock-free.
func (r *SignupRepository) ListActiveForUpdate(ctx context.Context, tx pgx.Tx, eventID string, graceCutoff time.Time) ([]model.Signup, error) {
	rows, err := tx.Query(ctx,
		`SELECT s.id, s.quota_id, q.size, s.created_at, s.confirmed_at, s.status, s.position,
		        s.email, s.first_name, s.last_name, s.name_public, s.language
		 FROM signups s
		 JOIN quotas q ON q.id = s.quota_id
		 WHERE q.event_id = $1
		   AND s.deleted_at IS NULL
		   AND (s.confirmed_at IS NOT NULL OR s.created_at > $2)
		 ORDER BY s.created_at, s.id
		 FOR UPDATE OF s`,
		eventID, graceCutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("lock signups: %w", err)
	}
	defer rows.Close()

	var signups []model.Signup
	for rows.Next() {
		var s model.Signup
		if err := rows.Scan(&s.ID, &s.QuotaID, &s.QuotaSize, &s.CreatedAt, &s.ConfirmedAt,
			&s.Status, &s.Position, &s.Email, &s.FirstName, &s.LastName,
			&s.NamePublic, &s.Language); err != nil {
			return nil, fmt.Errorf("scan signup: %w", err)
		}
		signups = append(signups, s)
	}
	return signups, rows.Err()
}

// UpdateAssignment writes one signup's derived (status, position) pair.
// Callers only issue this when the pair actually changed.
func (r *SignupRepository) UpdateAssignment(ctx context.Context, tx pgx.Tx, id string, status model.SignupStatus, position int) error {
	_, err := tx.Exec(ctx,
		`UPDATE signups SET status = $2, position = $3 WHERE id = $1`,
		id, status, position,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// SoftDelete marks one live signup deleted inside tx, or ErrNotFound.
func (r *SignupRepository) SoftDelete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE signups SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("soft delete signup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Confirm stores contact fields and answers. On first confirmation
// confirmed_at is set; contact fields are written as given. Answers are
// replaced wholesale rather than merged.
func (r *SignupRepository) Confirm(ctx context.Context, s *model.Signup, answers []model.Answer) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE signups
		 SET confirmed_at = $2, email = $3, first_name = $4, last_name = $5,
		     name_public = $6, language = $7
		 WHERE id = $1 AND deleted_at IS NULL`,
		s.ID, s.ConfirmedAt, s.Email, s.FirstName, s.LastName, s.NamePublic, s.Language,
	)
	if err != nil {
		return fmt.Errorf("update signup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = ErrNotFound
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM answers WHERE signup_id = $1`, s.ID); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	for _, a := range answers {
		_, err = tx.Exec(ctx,
			`INSERT INTO answers (id, signup_id, question_id, answer)
			 VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), s.ID, a.QuestionID, a.Answer,
		)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Answers returns a signup's stored answers.
func (r *SignupRepository) Answers(ctx context.Context, signupID string) ([]model.Answer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT question_id, answer FROM answers WHERE signup_id = $1`,
		signupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.QuestionID, &a.Answer); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ListByEvent returns all live signups for an event in allocation order.
func (r *SignupRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Signup, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.quota_id, s.created_at, s.confirmed_at, s.status, s.position,
		        s.email, s.first_name, s.last_name, s.name_public, s.language
		 FROM signups s
		 JOIN quotas q ON q.id = s.quota_id
		 WHERE q.event_id = $1 AND s.deleted_at IS NULL
		 ORDER BY s.created_at, s.id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}
	defer rows.Close()

	var signups []model.Signup
	for rows.Next() {
		var s model.Signup
		if err := rows.Scan(&s.ID, &s.QuotaID, &s.CreatedAt, &s.ConfirmedAt,
			&s.Status, &s.Position, &s.Email, &s.FirstName, &s.LastName,
			&s.NamePublic, &s.Language); err != nil {
			return nil, fmt.Errorf("scan signup: %w", err)
		}
		signups = append(signups, s)
	}
	return signups, rows.Err()
}

// SoftDeleteExpired marks the event's expired unconfirmed holds deleted
// inside tx and reports how many were purged.
func (r *SignupRepository) SoftDeleteExpired(ctx context.Context, tx pgx.Tx, eventID string, graceCutoff time.Time) (int, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE signups SET deleted_at = $3
		 WHERE deleted_at IS NULL
		   AND confirmed_at IS NULL
		   AND created_at <= $2
		   AND quota_id IN (SELECT id FROM quotas WHERE event_id = $1)`,
		eventID, graceCutoff, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired signups: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// EventsWithExpired returns ids of events that currently hold expired
// unconfirmed signups, for the periodic sweep.
func (r *SignupRepository) EventsWithExpired(ctx context.Context, graceCutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT q.event_id
		 FROM signups s
		 JOIN quotas q ON q.id = s.quota_id
		 WHERE s.deleted_at IS NULL
		   AND s.confirmed_at IS NULL
		   AND s.created_at <= $1`,
		graceCutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("find expired signups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
