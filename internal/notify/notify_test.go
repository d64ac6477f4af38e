package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	mu      sync.Mutex
	notices []PromotionNotice
	err     error
	done    chan struct{}
}

func (m *captureMailer) SendPromotionNotice(_ context.Context, notice PromotionNotice) error {
	m.mu.Lock()
	m.notices = append(m.notices, notice)
	m.mu.Unlock()
	select {
	case m.done <- struct{}{}:
	default:
	}
	return m.err
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notices)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherDelivers(t *testing.T) {
	mailer := &captureMailer{done: make(chan struct{}, 1)}
	d := NewDispatcher(mailer, discardLogger(), nil)
	defer d.Stop()

	d.Enqueue(PromotionNotice{SignupID: "s1", EventTitle: "Spring meetup", Email: "a@example.com"})

	select {
	case <-mailer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notice was not delivered")
	}
	require.Equal(t, 1, mailer.count())
	require.Equal(t, "s1", mailer.notices[0].SignupID)
}

func TestDispatcherSwallowsMailerFailure(t *testing.T) {
	mailer := &captureMailer{done: make(chan struct{}, 1), err: errors.New("smtp down")}
	d := NewDispatcher(mailer, discardLogger(), nil)
	defer d.Stop()

	// Must not panic or block regardless of mailer errors.
	d.Enqueue(PromotionNotice{SignupID: "s1"})
	d.Enqueue(PromotionNotice{SignupID: "s2"})

	select {
	case <-mailer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notices were not attempted")
	}
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	d := NewDispatcher(&captureMailer{done: make(chan struct{}, 1)}, discardLogger(), nil)
	d.Stop()
	d.Stop()
}

func TestEnqueueAfterQueueFullDoesNotBlock(t *testing.T) {
	// A mailer that never finishes would back the queue up; Enqueue must
	// still return promptly.
	blocked := make(chan struct{})
	mailer := blockingMailer{release: blocked}
	d := NewDispatcher(mailer, discardLogger(), nil)
	defer func() {
		close(blocked)
		d.Stop()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize+workerPoolSize+8; i++ {
			d.Enqueue(PromotionNotice{SignupID: "s"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

type blockingMailer struct {
	release chan struct{}
}

func (m blockingMailer) SendPromotionNotice(ctx context.Context, _ PromotionNotice) error {
	select {
	case <-m.release:
	case <-ctx.Done():
	}
	return nil
}
