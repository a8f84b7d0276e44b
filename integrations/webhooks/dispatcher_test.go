package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"vestake/core/events"
)

func sampleBatch() []events.Record {
	return []events.Record{{
		Type:       events.TypeStakeClaimed,
		Timestamp:  1700,
		Attributes: map[string]string{"minted": "10"},
	}}
}

func TestDispatcherSignsPayload(t *testing.T) {
	var (
		mu        sync.Mutex
		signature string
		body      []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		signature = r.Header.Get(SignatureHeader)
		body = data
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Publish(sampleBatch())

	received := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return signature != ""
	}
	waitFor(received, time.Second)
	if !received() {
		t.Fatalf("expected signature header")
	}
	mu.Lock()
	defer mu.Unlock()
	if signature != Sign([]byte("secret"), body) {
		t.Fatalf("signature does not match body")
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Type != EventLedgerCommitted || payload.DeliveryID == "" || len(payload.Events) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Events[0].Attributes["minted"] != "10" {
		t.Fatalf("event attributes lost: %+v", payload.Events[0])
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.Enqueue(sampleBatch()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	dispatcher, err := NewDispatcher("http://127.0.0.1:1", []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	dispatcher.Close()
	if err := dispatcher.Enqueue(sampleBatch()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected enqueue after close to fail, got %v", err)
	}
}

func TestDispatcherCountsAbandonedDeliveries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithMeterProvider(provider),
		WithRetryPolicy(2, time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Publish(sampleBatch())

	dropped := func() int64 { return droppedCount(t, reader, "abandoned") }
	waitFor(func() bool { return dropped() == 1 }, 2*time.Second)
	if got := dropped(); got != 1 {
		t.Fatalf("expected one abandoned event, got %d", got)
	}
}

func TestDispatcherCountsBatchesLeftOnClose(t *testing.T) {
	inflight := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case inflight <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer server.Close()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithMeterProvider(provider),
		WithQueueSize(4))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	if err := dispatcher.Enqueue(sampleBatch()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-inflight:
	case <-time.After(2 * time.Second):
		t.Fatalf("first delivery never reached the endpoint")
	}
	for i := 0; i < 2; i++ {
		if err := dispatcher.Enqueue(sampleBatch()); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	dispatcher.Close()
	dispatcher.Close()

	if got := droppedCount(t, reader, "closed"); got != 3 {
		t.Fatalf("expected three batches counted as closed, got %d", got)
	}
}

func TestDispatcherZeroClientTimeoutStillDelivers(t *testing.T) {
	delivered := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithHTTPClient(&http.Client{}),
		WithRetryPolicy(1, time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Publish(sampleBatch())

	waitFor(func() bool { return atomic.LoadInt32(&delivered) == 1 }, time.Second)
	if atomic.LoadInt32(&delivered) != 1 {
		t.Fatalf("expected delivery with a client that has no timeout")
	}
}

func TestNewDispatcherRequiresEndpointAndSecret(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("secret")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func droppedCount(t *testing.T, reader *sdkmetric.ManualReader, reason string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || m.Name != "vestake.webhooks.dropped" {
				continue
			}
			for _, point := range sum.DataPoints {
				if value, _ := point.Attributes.Value("reason"); value.AsString() == reason {
					total += point.Value
				}
			}
		}
	}
	return total
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
