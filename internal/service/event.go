package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/evreg/signupd/internal/engine"
	"github.com/evreg/signupd/internal/model"
	"github.com/evreg/signupd/internal/notify"
	"github.com/evreg/signupd/internal/repository"
)

// EventService handles organizer-facing event operations.
type EventService struct {
	events  *repository.EventRepository
	signups *repository.SignupRepository
	engine  *engine.Engine
	audit   notify.AuditSink
	logger  *slog.Logger
}

// NewEventService constructs an EventService.
func NewEventService(
	events *repository.EventRepository,
	signups *repository.SignupRepository,
	eng *engine.Engine,
	audit notify.AuditSink,
	logger *slog.Logger,
) *EventService {
	return &EventService{
		events:  events,
		signups: signups,
		engine:  eng,
		audit:   audit,
		logger:  logger,
	}
}

// Create publishes a new event with its quotas and questions.
func (s *EventService) Create(ctx context.Context, req model.CreateEventRequest) (*model.EventDetails, error) {
	if err := validateEventRequest(req); err != nil {
		return nil, err
	}
	return s.events.Create(ctx, req)
}

// List returns all live events.
func (s *EventService) List(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// Get returns one event with quotas and questions.
func (s *EventService) Get(ctx context.Context, id string) (*model.EventDetails, error) {
	if id == "" {
		return nil, repository.ErrNotFound
	}
	return s.events.GetDetails(ctx, id)
}

// Signups returns an event's live signups in allocation order.
func (s *EventService) Signups(ctx context.Context, eventID string) ([]model.Signup, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.signups.ListByEvent(ctx, eventID)
}

// EditCapacity resizes the open quota and/or individual quotas, removing
// quotas marked for removal, and reallocates in the same transaction.
//
// This is the only path that can demote placed signups into the queue.
// Unless req.AllowDemotion is set, a shrink that would demote anyone
// aborts with engine.WouldDemoteError carrying the exact count, and no
// rows change.
func (s *EventService) EditCapacity(ctx context.Context, eventID string, req model.EditCapacityRequest) ([]model.Assignment, error) {
	if req.OpenQuotaSize != nil && *req.OpenQuotaSize < 0 {
		return nil, invalid("open_quota_size", "capacity cannot be negative")
	}
	for _, q := range req.Quotas {
		if !q.Remove && q.Size != nil && *q.Size < 0 {
			return nil, invalid("quotas", "capacity cannot be negative")
		}
	}

	assignments, err := s.engine.Recompute(ctx, eventID, engine.Options{
		AllowDemotion: req.AllowDemotion,
		Mutate: func(ctx context.Context, tx pgx.Tx, event *model.Event) error {
			if req.OpenQuotaSize != nil {
				if err := s.events.UpdateOpenQuotaSize(ctx, tx, eventID, *req.OpenQuotaSize); err != nil {
					return err
				}
			}
			for _, q := range req.Quotas {
				if q.Remove {
					if err := s.events.RemoveQuota(ctx, tx, eventID, q.ID); err != nil {
						return err
					}
					continue
				}
				if err := s.events.UpdateQuotaSize(ctx, tx, eventID, q.ID, q.Size); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, notify.AuditEntry{
		Action:  "event.capacity-edited",
		EventID: eventID,
		Detail:  fmt.Sprintf("%d quota changes", len(req.Quotas)),
	})
	return assignments, nil
}
