// Package indexer persists committed ledger events into a relational store so
// that history can be queried and exported after the fact.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vestake/core/events"
	"vestake/integrations/exports"
)

const (
	// DefaultLimit bounds queries that do not specify a limit.
	DefaultLimit = 100
	// MaxLimit is the largest page a single query may return.
	MaxLimit = 1000
)

var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// Event is the persisted form of a ledger event record.
type Event struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Sequence   uint64            `gorm:"uniqueIndex;not null"`
	Type       string            `gorm:"size:64;index"`
	Account    string            `gorm:"size:42;index"`
	Timestamp  uint64            `gorm:"index"`
	Attributes map[string]string `gorm:"serializer:json"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (Event) TableName() string { return "ledger_events" }

// Entry is the API view of an indexed event.
type Entry struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Account    string            `json:"account,omitempty"`
	Timestamp  uint64            `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// Filter narrows a history query. Zero values match everything.
type Filter struct {
	Account string
	Type    string
	Limit   int
}

// Open connects to the configured backend. Driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// Indexer appends event records in commit order and serves them back.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu   sync.Mutex
	next uint64
}

// New migrates the schema and resumes the sequence from the stored history.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&Event{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Indexer{db: db, logger: log, next: last + 1}, nil
}

// Publish implements events.Sink. Failures are logged; the ledger has already
// committed and must not be affected by the history store.
func (i *Indexer) Publish(records []events.Record) {
	if err := i.Store(context.Background(), records); err != nil {
		i.logger.Error("indexer: store events", slog.Int("count", len(records)), slog.Any("error", err))
	}
}

// Store persists records in a single transaction.
func (i *Indexer) Store(ctx context.Context, records []events.Record) error {
	if len(records) == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	rows := make([]Event, 0, len(records))
	for idx, record := range records {
		attrs := make(map[string]string, len(record.Attributes))
		for key, value := range record.Attributes {
			attrs[key] = value
		}
		rows = append(rows, Event{
			ID:         uuid.New(),
			Sequence:   i.next + uint64(idx),
			Type:       record.Type,
			Account:    record.Account(),
			Timestamp:  record.Timestamp,
			Attributes: attrs,
		})
	}
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("indexer: insert: %w", err)
	}
	i.next += uint64(len(rows))
	return nil
}

// Query returns the most recent events matching filter, newest first.
func (i *Indexer) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	query := i.db.WithContext(ctx).Model(&Event{})
	if account := strings.TrimSpace(filter.Account); account != "" {
		query = query.Where("account = ?", account)
	}
	if typ := strings.TrimSpace(filter.Type); typ != "" {
		query = query.Where("type = ?", typ)
	}
	var rows []Event
	if err := query.Order("sequence DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			ID:         row.ID.String(),
			Sequence:   row.Sequence,
			Type:       row.Type,
			Account:    row.Account,
			Timestamp:  row.Timestamp,
			Attributes: row.Attributes,
		})
	}
	return entries, nil
}

// Format selects the export encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ErrUnknownFormat is returned by Export for unsupported formats.
var ErrUnknownFormat = errors.New("indexer: unknown export format")

// ContentType reports the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "application/vnd.apache.parquet"
	}
}

// Export renders the matching events oldest first and returns the payload
// with its SHA-256 checksum.
func (i *Indexer) Export(ctx context.Context, filter Filter, format Format) ([]byte, string, error) {
	var render func([]exports.Row) ([]byte, string, error)
	switch format {
	case FormatCSV:
		render = exports.EventsCSV
	case FormatJSONL:
		render = exports.EventsJSONL
	case FormatParquet:
		render = exports.EventsParquet
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	entries, err := i.Query(ctx, filter)
	if err != nil {
		return nil, "", err
	}
	rows := make([]exports.Row, len(entries))
	for idx, entry := range entries {
		rows[len(entries)-1-idx] = exports.Row{
			ID:         entry.ID,
			Sequence:   entry.Sequence,
			Type:       entry.Type,
			Account:    entry.Account,
			Timestamp:  entry.Timestamp,
			Attributes: entry.Attributes,
		}
	}
	data, checksum, err := render(rows)
	if err != nil {
		return nil, "", fmt.Errorf("indexer: export %s: %w", format, err)
	}
	return data, checksum, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
