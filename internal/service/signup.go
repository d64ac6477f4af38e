// Package service implements the signup lifecycle operations and the
// organizer-facing event operations. It enforces registration windows,
// capability tokens, and answer validation, and invokes the allocation
// engine at every point where the active-signup set changes.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/evreg/signupd/internal/engine"
	"github.com/evreg/signupd/internal/model"
	"github.com/evreg/signupd/internal/notify"
	"github.com/evreg/signupd/internal/repository"
	"github.com/evreg/signupd/internal/token"
)

// SignupService drives the absent → provisional → confirmed → deleted
// lifecycle of a signup.
type SignupService struct {
	events  *repository.EventRepository
	signups *repository.SignupRepository
	engine  *engine.Engine
	tokens  *token.Codec
	audit   notify.AuditSink
	logger  *slog.Logger
	grace   time.Duration
}

// NewSignupService constructs a SignupService.
func NewSignupService(
	events *repository.EventRepository,
	signups *repository.SignupRepository,
	eng *engine.Engine,
	tokens *token.Codec,
	audit notify.AuditSink,
	logger *slog.Logger,
	grace time.Duration,
) *SignupService {
	return &SignupService{
		events:  events,
		signups: signups,
		engine:  eng,
		tokens:  tokens,
		audit:   audit,
		logger:  logger,
		grace:   grace,
	}
}

// Create grabs a provisional hold on the quota and returns the new
// signup's id, capability token, and freshly computed placement. The
// hold expires after the grace period unless confirmed.
func (s *SignupService) Create(ctx context.Context, quotaID string) (*model.CreatedSignup, error) {
	if quotaID == "" {
		return nil, invalid("quota_id", "quota id is required")
	}
	quota, err := s.events.GetQuota(ctx, quotaID)
	if err != nil {
		return nil, err
	}

	var created *model.Signup
	assignments, err := s.engine.Recompute(ctx, quota.EventID, engine.Options{
		// A new signup can only push itself or later signups toward the
		// queue, never demote anyone placed before it.
		AllowDemotion: true,
		Mutate: func(ctx context.Context, tx pgx.Tx, event *model.Event) error {
			if !event.RegistrationOpen(time.Now().UTC()) {
				return ErrRegistrationClosed
			}
			// Re-check under the event lock: the quota may have been
			// removed since the unlocked read above.
			if _, err := s.events.GetQuotaTx(ctx, tx, quotaID); err != nil {
				return err
			}
			var err error
			created, err = s.signups.Insert(ctx, tx, quotaID)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	result := &model.CreatedSignup{
		ID:    created.ID,
		Token: s.tokens.Issue(created.ID),
	}
	for _, a := range assignments {
		if a.SignupID == created.ID {
			status, position := a.Status, a.Position
			result.Status = &status
			result.Position = &position
			break
		}
	}

	s.audit.Record(ctx, notify.AuditEntry{
		Action:   "signup.created",
		SignupID: created.ID,
		EventID:  quota.EventID,
	})
	return result, nil
}

// Confirm turns a provisional hold into a real registration, or edits an
// already-confirmed one. Contact fields are mandatory on first
// confirmation and immutable afterwards; answers are replaced wholesale.
// No recomputation runs here: placement depends only on existence,
// order, and quota, none of which change.
func (s *SignupService) Confirm(ctx context.Context, signupID, presentedToken string, req model.ConfirmSignupRequest) (*model.Signup, error) {
	if !s.tokens.Verify(signupID, presentedToken) {
		return nil, ErrInvalidToken
	}
	signup, eventID, err := s.signups.GetByID(ctx, signupID)
	if err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.RegistrationOpen(time.Now().UTC()) {
		return nil, ErrRegistrationClosed
	}

	if signup.Confirmed() {
		// Repeat edit: contact fields stay as stored.
		signup.NamePublic = req.NamePublic
		if req.Language != "" {
			signup.Language = req.Language
		}
	} else {
		if err := requireContactFields(req); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		signup.ConfirmedAt = &now
		signup.Email = req.Email
		signup.FirstName = req.FirstName
		signup.LastName = req.LastName
		signup.NamePublic = req.NamePublic
		signup.Language = req.Language
	}

	questions, err := s.events.Questions(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := validateAnswers(questions, req.Answers); err != nil {
		return nil, err
	}

	if err := s.signups.Confirm(ctx, signup, req.Answers); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, notify.AuditEntry{
		Action:   "signup.confirmed",
		SignupID: signup.ID,
		EventID:  eventID,
	})
	return signup, nil
}

func requireContactFields(req model.ConfirmSignupRequest) error {
	if req.Email == nil || strings.TrimSpace(*req.Email) == "" {
		return invalid("email", "email is required")
	}
	if !strings.Contains(*req.Email, "@") {
		return invalid("email", "email is not a valid address")
	}
	if req.FirstName == nil || strings.TrimSpace(*req.FirstName) == "" {
		return invalid("first_name", "first name is required")
	}
	if req.LastName == nil || strings.TrimSpace(*req.LastName) == "" {
		return invalid("last_name", "last name is required")
	}
	return nil
}

// Delete removes a signup. Registrants need a valid capability token
// and an open registration window; admins need neither. The freed
// capacity is reallocated in the same transaction, so anyone waiting in
// the queue moves up immediately.
func (s *SignupService) Delete(ctx context.Context, signupID, presentedToken string, isAdmin bool) error {
	if !isAdmin && !s.tokens.Verify(signupID, presentedToken) {
		return ErrInvalidToken
	}
	_, eventID, err := s.signups.GetByID(ctx, signupID)
	if err != nil {
		return err
	}

	_, err = s.engine.Recompute(ctx, eventID, engine.Options{
		// Removing a signup can only free capacity.
		AllowDemotion: true,
		Mutate: func(ctx context.Context, tx pgx.Tx, event *model.Event) error {
			if !isAdmin && !event.RegistrationOpen(time.Now().UTC()) {
				return ErrRegistrationClosed
			}
			return s.signups.SoftDelete(ctx, tx, signupID)
		},
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, notify.AuditEntry{
		Action:   "signup.deleted",
		SignupID: signupID,
		EventID:  eventID,
	})
	return nil
}

// Get returns a signup with its answers, gated by the capability token.
func (s *SignupService) Get(ctx context.Context, signupID, presentedToken string) (*model.Signup, []model.Answer, error) {
	if !s.tokens.Verify(signupID, presentedToken) {
		return nil, nil, ErrInvalidToken
	}
	signup, _, err := s.signups.GetByID(ctx, signupID)
	if err != nil {
		return nil, nil, err
	}
	answers, err := s.signups.Answers(ctx, signupID)
	if err != nil {
		return nil, nil, err
	}
	return signup, answers, nil
}

// SweepExpired purges unconfirmed holds past the grace period and
// reallocates every affected event. Run periodically; each event is its
// own transaction, so one failure does not stall the rest.
func (s *SignupService) SweepExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.grace)
	eventIDs, err := s.signups.EventsWithExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	for _, eventID := range eventIDs {
		purged := 0
		_, err := s.engine.Recompute(ctx, eventID, engine.Options{
			AllowDemotion: true,
			Mutate: func(ctx context.Context, tx pgx.Tx, event *model.Event) error {
				var err error
				purged, err = s.signups.SoftDeleteExpired(ctx, tx, eventID, cutoff)
				return err
			},
		})
		if err != nil {
			s.logger.Error("expiry sweep failed for event",
				"event_id", eventID, "error", err)
			continue
		}
		if purged > 0 {
			s.logger.Info("purged expired signups",
				"event_id", eventID, "purged", purged)
		}
	}
}

// Run drives SweepExpired on a ticker until ctx is canceled.
func (s *SignupService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired(ctx)
		}
	}
}
