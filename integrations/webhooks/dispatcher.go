package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"vestake/core/events"
)

const (
	// EventLedgerCommitted is the topic of every delivery: one committed batch of ledger events.
	EventLedgerCommitted = "ledger.committed"

	SignatureHeader = "X-Vestake-Signature"
	EventHeader     = "X-Vestake-Event"
	DeliveryHeader  = "X-Vestake-Delivery"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 32
	defaultTimeout     = 15 * time.Second

	meterName = "vestake/webhooks"
)

var (
	// ErrQueueFull is returned by Enqueue when the delivery queue is saturated.
	ErrQueueFull = errors.New("webhook: queue full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("webhook: dispatcher closed")
)

// Payload is the webhook body for a committed batch.
type Payload struct {
	Type       string          `json:"type"`
	DeliveryID string          `json:"deliveryId"`
	SentAt     time.Time       `json:"sentAt"`
	Events     []events.Record `json:"events"`
}

// Dispatcher forwards committed ledger events to an HTTP endpoint with retry
// and exponential backoff. It implements events.Sink.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	logger      *slog.Logger
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	queueSize   int
	meter       metric.MeterProvider
	dropped     metric.Int64Counter

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type delivery struct {
	id     string
	body   []byte
	events int
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries. The client's
// Timeout bounds each attempt; zero falls back to the default.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithLogger routes delivery failures to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithQueueSize bounds the number of batches waiting for delivery.
func WithQueueSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithMeterProvider records drop counters on provider instead of the global
// OpenTelemetry provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(d *Dispatcher) {
		if provider != nil {
			d.meter = provider
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = string(bytes.TrimSpace([]byte(endpoint)))
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: defaultTimeout},
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		queueSize:   defaultQueueSize,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.initMetrics()
	dispatcher.queue = make(chan delivery, dispatcher.queueSize)
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

func (d *Dispatcher) initMetrics() {
	provider := d.meter
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	counter, err := provider.Meter(meterName).Int64Counter("vestake.webhooks.dropped",
		metric.WithDescription("Webhook batches dropped before a successful delivery."))
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("vestake.webhooks.dropped")
	}
	d.dropped = counter
}

func (d *Dispatcher) recordDropped(reason string, count int) {
	if d.dropped == nil || count <= 0 {
		return
	}
	d.dropped.Add(context.Background(), int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}

// Close stops the dispatcher and waits for the worker to exit. An in-flight
// delivery is aborted; it and every batch still queued are counted as dropped
// with reason "closed".
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	for {
		select {
		case job := <-d.queue:
			d.recordDropped("closed", job.events)
		default:
			return
		}
	}
}

// Publish implements events.Sink. A full queue drops the batch rather than
// blocking the ledger's commit path.
func (d *Dispatcher) Publish(records []events.Record) {
	if len(records) == 0 {
		return
	}
	err := d.Enqueue(records)
	switch {
	case err == nil:
	case errors.Is(err, ErrQueueFull):
		d.recordDropped("queue_full", len(records))
		d.logger.Warn("webhook: batch dropped", slog.Int("events", len(records)), slog.Any("error", err))
	case errors.Is(err, ErrClosed):
		d.recordDropped("closed", len(records))
	default:
		d.recordDropped("encode", len(records))
		d.logger.Warn("webhook: batch dropped", slog.Int("events", len(records)), slog.Any("error", err))
	}
}

// Enqueue schedules records for delivery.
func (d *Dispatcher) Enqueue(records []events.Record) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	payload := Payload{
		Type:       EventLedgerCommitted,
		DeliveryID: uuid.NewString(),
		SentAt:     time.Now().UTC(),
		Events:     records,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- delivery{id: payload.DeliveryID, body: data, events: len(records)}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	count := job.events
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.attemptTimeout())
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.logger.Error("webhook: delivery abandoned",
				slog.String("delivery", job.id),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			d.recordDropped("abandoned", count)
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			d.recordDropped("closed", count)
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) attemptTimeout() time.Duration {
	if d.client.Timeout > 0 {
		return d.client.Timeout
	}
	return defaultTimeout
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, EventLedgerCommitted)
	req.Header.Set(DeliveryHeader, job.id)
	req.Header.Set(SignatureHeader, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
