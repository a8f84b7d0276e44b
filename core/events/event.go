package events

import (
	"sort"
	"strings"
	"sync"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Record() Record
}

// Record is the flattened, broadcastable form of an event. Attribute values
// are decimal strings for amounts and 0x-prefixed hex for addresses.
type Record struct {
	Type       string            `json:"type"`
	Timestamp  uint64            `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// Account returns the primary account attribute of the record, if any.
func (r Record) Account() string {
	for _, key := range []string{"account", "to", "from", "owner"} {
		if value := strings.TrimSpace(r.Attributes[key]); value != "" {
			return value
		}
	}
	return ""
}

// Keys returns the attribute keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.Attributes))
	for key := range r.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Emitter broadcasts events to downstream subscribers (e.g. indexer, websocket hub).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Sink receives flattened records once the originating transaction committed.
type Sink interface {
	Publish(records []Record)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func([]Record)

// Publish implements Sink.
func (f SinkFunc) Publish(records []Record) { f(records) }

// Buffer collects events emitted during a transaction so they can be published
// only after commit, or dropped when the transaction is reverted.
type Buffer struct {
	mu      sync.Mutex
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
}

// Drain returns the buffered events as records stamped with ts and clears the buffer.
func (b *Buffer) Drain(ts uint64) []Record {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	records := make([]Record, 0, len(pending))
	for _, evt := range pending {
		record := evt.Record()
		record.Timestamp = ts
		records = append(records, record)
	}
	return records
}

// Reset drops any buffered events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
