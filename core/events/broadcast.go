package events

import (
	"strings"
	"sync"
)

// Filter selects records for a subscriber. Empty fields match everything;
// Account matches any attribute value, case-insensitively.
type Filter struct {
	Type    string
	Account string
}

// Matches reports whether record passes the filter.
func (f Filter) Matches(record Record) bool {
	if f.Type != "" && f.Type != record.Type {
		return false
	}
	if f.Account == "" {
		return true
	}
	for _, value := range record.Attributes {
		if strings.EqualFold(value, f.Account) {
			return true
		}
	}
	return false
}

// Broadcaster is a Sink that fans records out to live subscribers. Publish
// never blocks: a subscriber whose buffer is full is marked dropped and
// receives nothing further.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
}

// Subscription is a live feed of matching records.
type Subscription struct {
	C <-chan Record

	filter  Filter
	records chan Record
	dropped chan struct{}
	once    sync.Once
	owner   *Broadcaster
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[*Subscription]struct{})}
}

// Subscribe registers a feed buffering up to buffer records.
func (b *Broadcaster) Subscribe(filter Filter, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	records := make(chan Record, buffer)
	sub := &Subscription{
		C:       records,
		filter:  filter,
		records: records,
		dropped: make(chan struct{}),
		owner:   b,
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish implements Sink.
func (b *Broadcaster) Publish(records []Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		if !sub.deliver(records) {
			sub.markDropped()
			delete(b.subscribers, sub)
		}
	}
}

// Len reports the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped is closed when the subscriber fell behind and was removed.
func (s *Subscription) Dropped() <-chan struct{} { return s.dropped }

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.owner.mu.Lock()
	delete(s.owner.subscribers, s)
	s.owner.mu.Unlock()
}

func (s *Subscription) deliver(records []Record) bool {
	for _, record := range records {
		if !s.filter.Matches(record) {
			continue
		}
		select {
		case s.records <- record:
		default:
			return false
		}
	}
	return true
}

func (s *Subscription) markDropped() {
	s.once.Do(func() { close(s.dropped) })
}
