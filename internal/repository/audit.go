package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evreg/signupd/internal/notify"
)

// AuditRepository appends audit-log rows. It implements
// notify.AuditSink: write failures are logged and swallowed so an audit
// hiccup never surfaces into the calling operation.
type AuditRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *pgxpool.Pool, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

var _ notify.AuditSink = (*AuditRepository)(nil)

// Record appends one audit entry.
func (r *AuditRepository) Record(ctx context.Context, entry notify.AuditEntry) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_log (id, action, signup_id, event_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), entry.Action, nullable(entry.SignupID),
		nullable(entry.EventID), entry.Detail, time.Now().UTC(),
	)
	if err != nil {
		r.logger.Warn("audit write failed",
			"action", entry.Action,
			"signup_id", entry.SignupID,
			"error", err)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
