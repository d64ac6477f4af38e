// Package engine orchestrates allocation recomputations.
//
// A recomputation is the unit of consistency for one event: it locks
// the event row, locks the active signups, runs the allocation pass,
// persists whatever changed, and commits. Lifecycle writes (insert,
// soft delete, capacity edit) run inside the same transaction through
// the Mutation hook, so the state that fed the allocation pass is the
// state that commits.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/evreg/signupd/internal/allocate"
	"github.com/evreg/signupd/internal/model"
	"github.com/evreg/signupd/internal/notify"
	"github.com/evreg/signupd/internal/repository"
)

// WouldDemoteError aborts a recomputation that would move already-placed
// signups into the queue without explicit authorization. Count is exact,
// so the caller can present it for confirmation and retry with the
// demotion flag set.
type WouldDemoteError struct {
	Count int
}

func (e *WouldDemoteError) Error() string {
	return fmt.Sprintf("edit would move %d signups to the queue", e.Count)
}

// Mutation runs inside the recompute transaction after the event row is
// locked and before the allocation pass. event is the locked row's
// state at lock time.
type Mutation func(ctx context.Context, tx pgx.Tx, event *model.Event) error

// Options steers one recomputation.
type Options struct {
	// AllowDemotion authorizes moving placed signups into the queue.
	// Signup create/delete paths pass true (they can only add queue
	// pressure or free capacity); capacity edits pass the organizer's
	// explicit flag.
	AllowDemotion bool
	// Mutate, when set, applies the caller's write under the event lock.
	Mutate Mutation
}

// Engine runs recomputations and drives their side effects.
type Engine struct {
	db       *pgxpool.Pool
	events   *repository.EventRepository
	signups  *repository.SignupRepository
	notifier *notify.Dispatcher
	audit    notify.AuditSink
	logger   *slog.Logger
	grace    time.Duration

	recomputes  prometheus.Counter
	rowsUpdated prometheus.Counter
	promotions  prometheus.Counter
	guardAborts prometheus.Counter
}

// New constructs an Engine. grace is how long unconfirmed holds stay
// active. reg may be nil to skip metrics registration (tests).
func New(
	db *pgxpool.Pool,
	events *repository.EventRepository,
	signups *repository.SignupRepository,
	notifier *notify.Dispatcher,
	audit notify.AuditSink,
	logger *slog.Logger,
	grace time.Duration,
	reg prometheus.Registerer,
) *Engine {
	e := &Engine{
		db:       db,
		events:   events,
		signups:  signups,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
		grace:    grace,
	}
	if reg != nil {
		factory := promauto.With(reg)
		e.recomputes = factory.NewCounter(prometheus.CounterOpts{
			Name: "signupd_recomputes_total",
			Help: "Completed allocation recomputations",
		})
		e.rowsUpdated = factory.NewCounter(prometheus.CounterOpts{
			Name: "signupd_assignment_updates_total",
			Help: "Signup rows whose (status, position) changed",
		})
		e.promotions = factory.NewCounter(prometheus.CounterOpts{
			Name: "signupd_promotions_total",
			Help: "Signups promoted out of the queue",
		})
		e.guardAborts = factory.NewCounter(prometheus.CounterOpts{
			Name: "signupd_demotion_guard_aborts_total",
			Help: "Recomputations aborted by the demotion guard",
		})
	}
	return e
}

// Recompute runs one full recomputation for the event and returns the
// new canonical assignment for every active signup.
//
// Lock order is always event row first, then signup rows in
// (created_at, id) order; concurrent recomputations on the same event
// serialize on the event lock while different events proceed in
// parallel. The transaction either commits fully or rolls back fully;
// promotion notices are dispatched only after commit.
func (e *Engine) Recompute(ctx context.Context, eventID string, opts Options) ([]model.Assignment, error) {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	event, err := e.events.LockForUpdate(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}

	if opts.Mutate != nil {
		if err = opts.Mutate(ctx, tx, event); err != nil {
			return nil, err
		}
		// The mutation may have changed the open quota size.
		event, err = e.events.Reload(ctx, tx, eventID)
		if err != nil {
			return nil, err
		}
	}

	graceCutoff := time.Now().UTC().Add(-e.grace)
	signups, err := e.signups.ListActiveForUpdate(ctx, tx, eventID, graceCutoff)
	if err != nil {
		return nil, err
	}

	assignments := allocate.Assign(signups, event.OpenQuotaSize)
	diff := allocate.Compare(signups, assignments)

	if diff.Demoted > 0 && !opts.AllowDemotion {
		if e.guardAborts != nil {
			e.guardAborts.Inc()
		}
		err = &WouldDemoteError{Count: diff.Demoted}
		return nil, err
	}

	for _, a := range diff.Changed {
		if err = e.signups.UpdateAssignment(ctx, tx, a.SignupID, a.Status, a.Position); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	e.recordMetrics(diff)
	e.dispatchPromotions(ctx, event, diff.Promoted)

	e.logger.Debug("recomputed event",
		"event_id", eventID,
		"signups", len(signups),
		"updated", len(diff.Changed),
		"promoted", len(diff.Promoted))
	return assignments, nil
}

func (e *Engine) recordMetrics(diff allocate.Diff) {
	if e.recomputes == nil {
		return
	}
	e.recomputes.Inc()
	e.rowsUpdated.Add(float64(len(diff.Changed)))
	e.promotions.Add(float64(len(diff.Promoted)))
}

// dispatchPromotions runs after commit: at-most-once, best effort. A
// crash between commit and dispatch loses the notice, never the
// assignment.
func (e *Engine) dispatchPromotions(ctx context.Context, event *model.Event, promoted []model.Signup) {
	for _, s := range promoted {
		e.audit.Record(ctx, notify.AuditEntry{
			Action:   "signup.promoted",
			SignupID: s.ID,
			EventID:  event.ID,
		})
		if s.Email == nil {
			continue
		}
		e.notifier.Enqueue(notify.PromotionNotice{
			SignupID:   s.ID,
			EventID:    event.ID,
			EventTitle: event.Title,
			EventDate:  event.Date,
			Email:      *s.Email,
			Language:   s.Language,
		})
	}
}
