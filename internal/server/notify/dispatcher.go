package notify

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/domainx/internal/logging"
	"github.com/dmitrijs2005/domainx/internal/server/metrics"
)

// Dispatcher runs best-effort sends in the background. Every send gets its
// own timeout and failures are only logged and counted.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	log     logging.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher returns a Dispatcher that gives each send timeout to finish.
func NewDispatcher(sender Sender, timeout time.Duration, log logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		timeout: timeout,
		log:     log.With("module", "notify.dispatcher"),
		metrics: m,
	}
}

// Send delivers msg synchronously within the dispatcher timeout.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.metrics.NotificationFailed(msg.Template)
		d.log.Error(ctx, "email delivery failed", "template", msg.Template, "to", msg.To, "error", err)
		return err
	}
	return nil
}

// Dispatch queues msg for background delivery. It never blocks on the
// network. After Close it drops the message with a warning.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn(context.Background(), "dispatcher closed, email dropped", "template", msg.Template, "to", msg.To)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		_ = d.Send(context.Background(), msg)
	}()
}

// Close stops accepting work and waits for in-flight sends or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
