package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"mltrain/internal/job"
	"mltrain/pkg/backoff"
	"mltrain/pkg/circuitbreaker"
)

// ErrBufferFull is returned when the queue is full and the event is dropped.
var ErrBufferFull = errors.New("notify buffer full, event dropped")

// delivery is one queued event bound for a destination.
type delivery struct {
	event      *Event
	url        string
	signingKey string
	requeues   int // times requeued due to open circuit
}

// MetricsRecorder is an optional interface for recording delivery metrics.
type MetricsRecorder interface {
	RecordWebhookDelivered(ctx context.Context, durationSeconds float64)
	RecordWebhookFailed(ctx context.Context)
	RecordWebhookDropped(ctx context.Context)
	RecordWebhookQueueSize(ctx context.Context, size int64)
}

// Dispatcher delivers lifecycle events to per-job callbacks, falling back
// to a configured default destination. It implements job.Notifier.
type Dispatcher struct {
	queue      chan *delivery
	sender     *sender
	breakers   *circuitbreaker.Registry
	retryDelay backoff.Policy
	config     Config
	logger     *slog.Logger
	metrics    MetricsRecorder

	// Internal counters (for Stats())
	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// Stats holds dispatcher statistics.
type Stats struct {
	QueueDepth    int   // current queue size
	Queued        int64 // total events queued
	Delivered     int64 // successful deliveries
	Failed        int64 // failed after retries
	Dropped       int64 // dropped due to full buffer or max requeues
	Requeued      int64 // requeued due to open circuit
	RetriesTotal  int64 // total retry attempts
	BreakersTotal int   // total circuit breakers
	BreakersOpen  int   // currently open breakers
}

// NewDispatcher creates and starts a webhook dispatcher.
func NewDispatcher(cfg Config, metrics MetricsRecorder) *Dispatcher {
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		queue:  make(chan *delivery, cfg.BufferSize),
		sender: newSender(cfg.HTTPTimeout),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: defaultBreakerThreshold,
			Cooldown:  defaultBreakerCooldown,
		}),
		config:   cfg,
		logger:   slog.With("component", "notify"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	if metrics != nil {
		go d.reportQueueSize()
	}

	d.logger.Info("Webhook dispatcher started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return d
}

// Publish queues a lifecycle event for the job's callback. Jobs without a
// callback use the configured default destination; without either, or when
// the callback's event filter excludes the type, nothing is sent.
// Never blocks.
func (d *Dispatcher) Publish(eventType string, j *job.Job) {
	dest, key, filter := d.destination(j)
	if dest == "" {
		return
	}
	if !job.FilteredEvents(eventType, filter) {
		return
	}

	if err := d.enqueue(&delivery{
		event:      NewEvent(eventType, j),
		url:        dest,
		signingKey: key,
	}); err != nil {
		d.logger.Warn("Event not queued", "jobId", j.ID, "type", eventType, "error", err)
	}
}

// destination resolves where a job's events go.
func (d *Dispatcher) destination(j *job.Job) (dest, key string, filter []string) {
	if j.Callback != nil && j.Callback.URL != "" {
		return j.Callback.URL, j.Callback.Key, j.Callback.Events
	}
	return d.config.DefaultURL, d.config.DefaultKey, nil
}

// enqueue adds a delivery to the queue without blocking.
func (d *Dispatcher) enqueue(del *delivery) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	select {
	case d.queue <- del:
		d.queued.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		if d.metrics != nil {
			d.metrics.RecordWebhookDropped(context.Background())
		}
		return ErrBufferFull
	}
}

// Stats returns current dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	breakerStats := d.breakers.Stats()
	return Stats{
		QueueDepth:    len(d.queue),
		Queued:        d.queued.Load(),
		Delivered:     d.delivered.Load(),
		Failed:        d.failed.Load(),
		Dropped:       d.dropped.Load(),
		Requeued:      d.requeued.Load(),
		RetriesTotal:  d.retriesTotal.Load(),
		BreakersTotal: breakerStats.Total,
		BreakersOpen:  breakerStats.Open,
	}
}

// Close gracefully shuts down the dispatcher, attempting to deliver queued
// events. The context deadline bounds the drain.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil // already closed
	}

	d.logger.Info("Webhook dispatcher shutting down", "queued", len(d.queue))

	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Webhook dispatcher shutdown complete",
			"delivered", d.delivered.Load(),
			"failed", d.failed.Load(),
			"dropped", d.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		d.logger.Warn("Webhook dispatcher shutdown timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

// reportQueueSize periodically reports the queue size metric.
func (d *Dispatcher) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.shutdown:
			return
		case <-ticker.C:
			d.metrics.RecordWebhookQueueSize(context.Background(), int64(len(d.queue)))
		}
	}
}

// worker processes deliveries from the queue.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.shutdown:
			// Drain remaining events before exiting
			d.drainQueue()
			return
		case del := <-d.queue:
			d.deliver(del)
		}
	}
}

// drainQueue delivers remaining events after shutdown signal.
func (d *Dispatcher) drainQueue() {
	for {
		select {
		case del := <-d.queue:
			d.deliver(del)
		default:
			return // queue empty
		}
	}
}

// deliver attempts one delivery with retry and circuit breaker.
func (d *Dispatcher) deliver(del *delivery) {
	host := extractHost(del.url)
	breaker := d.breakers.Get(host)

	if !breaker.Allow() {
		d.requeue(del, host)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := d.sendWithRetry(ctx, del); err != nil {
		breaker.RecordFailure()
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordWebhookFailed(ctx)
		}
		d.logger.Warn("Delivery failed", "destination", host, "type", del.event.Type, "error", err)
		return
	}

	breaker.RecordSuccess()
	d.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordWebhookDelivered(ctx, time.Since(start).Seconds())
	}
}

// requeue puts a delivery back in the queue after a delay when the circuit
// is open.
func (d *Dispatcher) requeue(del *delivery, host string) {
	if del.requeues >= defaultMaxRequeues {
		d.dropped.Add(1)
		if d.metrics != nil {
			d.metrics.RecordWebhookDropped(context.Background())
		}
		d.logger.Warn("Event dropped, max requeues reached",
			"destination", host,
			"type", del.event.Type,
			"requeues", del.requeues,
		)
		return
	}

	del.requeues++
	requeues := del.requeues // capture for goroutine
	d.requeued.Add(1)

	// Requeue after cooldown so the circuit has time to recover
	go func() {
		select {
		case <-d.shutdown:
			return
		case <-time.After(defaultBreakerCooldown):
		}

		select {
		case d.queue <- del:
			d.logger.Debug("Event requeued", "destination", host, "type", del.event.Type, "requeues", requeues)
		case <-d.shutdown:
		default:
			// Buffer full, drop
			d.dropped.Add(1)
			if d.metrics != nil {
				d.metrics.RecordWebhookDropped(context.Background())
			}
			d.logger.Warn("Event dropped on requeue, buffer full", "destination", host, "type", del.event.Type)
		}
	}()
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, del *delivery) error {
	var lastErr error
	for attempt := range defaultMaxRetries + 1 {
		if attempt > 0 {
			d.retriesTotal.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.retryDelay.Delay(attempt)):
			}
		}

		lastErr = d.sender.Send(ctx, del.url, del.event, del.signingKey)
		if lastErr == nil {
			return nil
		}
		if IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// extractHost extracts the host from a URL for circuit breaker keying.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

// Verify Dispatcher implements job.Notifier
var _ job.Notifier = (*Dispatcher)(nil)
