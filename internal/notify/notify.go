// Package notify dispatches best-effort side effects after an allocation
// transaction commits: promotion notices to registrants and audit-log
// entries. Delivery failures are logged and swallowed; nothing here may
// fail a committed recomputation.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	queueSize      = 256
	workerPoolSize = 2
	sendTimeout    = 10 * time.Second
)

// PromotionNotice carries everything the mailer needs to tell a signup
// it left the queue.
type PromotionNotice struct {
	SignupID   string
	EventID    string
	EventTitle string
	EventDate  *time.Time
	Email      string
	Language   string
}

// Mailer sends promotion notices. Implementations live outside the
// engine; the default is a log-only stub.
type Mailer interface {
	SendPromotionNotice(ctx context.Context, notice PromotionNotice) error
}

// AuditEntry is one audit-log record.
type AuditEntry struct {
	Action   string
	SignupID string
	EventID  string
	Detail   string
}

// AuditSink records audit entries. Fire-and-forget from the caller's
// perspective; implementations swallow their own errors.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Dispatcher queues promotion notices onto a bounded channel drained by
// a small worker pool. Enqueue never blocks the caller: when the queue
// is full the notice is dropped and logged, matching the at-most-once
// delivery contract.
type Dispatcher struct {
	mailer  Mailer
	logger  *slog.Logger
	queue   chan PromotionNotice
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopMu  sync.Mutex
	stopped bool

	sent    prometheus.Counter
	failed  prometheus.Counter
	dropped prometheus.Counter
}

// NewDispatcher starts the worker pool. reg may be nil to skip metrics
// registration (tests).
func NewDispatcher(mailer Mailer, logger *slog.Logger, reg prometheus.Registerer) *Dispatcher {
	d := &Dispatcher{
		mailer: mailer,
		logger: logger,
		queue:  make(chan PromotionNotice, queueSize),
		stopCh: make(chan struct{}),
	}
	if reg != nil {
		factory := promauto.With(reg)
		d.sent = factory.NewCounter(prometheus.CounterOpts{
			Name: "signupd_notifications_sent_total",
			Help: "Promotion notices successfully handed to the mailer",
		})
		d.failed = factory.NewCounter(prometheus.CounterOpts{
			Name: "signupd_notifications_failed_total",
			Help: "Promotion notices the mailer failed to send",
		})
		d.dropped = factory.NewCounter(prometheus.CounterOpts{
			Name: "signupd_notifications_dropped_total",
			Help: "Promotion notices dropped because the queue was full",
		})
	}
	for i := 0; i < workerPoolSize; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case notice, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(notice)
		}
	}
}

func (d *Dispatcher) deliver(notice PromotionNotice) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := d.mailer.SendPromotionNotice(ctx, notice); err != nil {
		if d.failed != nil {
			d.failed.Inc()
		}
		d.logger.Warn("promotion notice failed",
			"signup_id", notice.SignupID,
			"event_id", notice.EventID,
			"error", err)
		return
	}
	if d.sent != nil {
		d.sent.Inc()
	}
}

// Enqueue hands a notice to the worker pool without blocking.
func (d *Dispatcher) Enqueue(notice PromotionNotice) {
	select {
	case d.queue <- notice:
	default:
		if d.dropped != nil {
			d.dropped.Inc()
		}
		d.logger.Warn("notification queue full, dropping promotion notice",
			"signup_id", notice.SignupID)
	}
}

// Stop drains in-flight deliveries and stops the workers. Idempotent.
func (d *Dispatcher) Stop() {
	d.stopMu.Lock()
	defer d.stopMu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	close(d.stopCh)
	d.wg.Wait()
}

// LogMailer is the default Mailer: it writes the notice to the log
// instead of sending mail. Real rendering and SMTP live outside this
// service.
type LogMailer struct {
	Logger *slog.Logger
}

// SendPromotionNotice implements Mailer.
func (m *LogMailer) SendPromotionNotice(_ context.Context, notice PromotionNotice) error {
	m.Logger.Info("promotion notice",
		"signup_id", notice.SignupID,
		"event_title", notice.EventTitle,
		"email", notice.Email,
		"language", notice.Language)
	return nil
}
