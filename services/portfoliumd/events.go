package portfoliumd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portfolium/core/types"
)

const (
	defaultEventPageSize = 100
	maxEventPageSize     = 1000
)

// EventRecord is one persisted platform event.
type EventRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Height     uint64    `gorm:"index" json:"height"`
	Module     string    `gorm:"size:32;index" json:"module"`
	Type       string    `gorm:"size:96;index" json:"type"`
	Portfolio  string    `gorm:"size:42;index" json:"portfolio,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	RecordedAt time.Time `gorm:"index" json:"recordedAt"`
}

// TableName pins the table name across drivers.
func (EventRecord) TableName() string { return "platform_events" }

// Decoded returns the stored attributes.
func (r EventRecord) Decoded() map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// EventFilter narrows an index query. AfterID is an exclusive cursor.
type EventFilter struct {
	Type      string
	Module    string
	Portfolio string
	AfterID   uint64
	Limit     int
}

// EventIndex persists emitted events so clients can page through history.
type EventIndex struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenEventIndex opens the index. DSNs starting with postgres:// or
// postgresql:// use Postgres; anything else is treated as a SQLite DSN or
// file path.
func OpenEventIndex(dsn string) (*EventIndex, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("event index dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open event index: %w", err)
	}
	return NewEventIndex(db)
}

// NewEventIndex migrates the schema on db and wraps it.
func NewEventIndex(db *gorm.DB) (*EventIndex, error) {
	if db == nil {
		return nil, fmt.Errorf("event index: nil database")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate event index: %w", err)
	}
	return &EventIndex{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (i *EventIndex) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores events observed at height in one transaction.
func (i *EventIndex) Record(ctx context.Context, height uint64, events ...*types.Event) error {
	if i == nil || len(events) == 0 {
		return nil
	}
	now := i.now().UTC()
	records := make([]EventRecord, 0, len(events))
	for _, evt := range events {
		if evt == nil {
			continue
		}
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("encode event attributes: %w", err)
		}
		module, _, _ := strings.Cut(evt.Type, ".")
		records = append(records, EventRecord{
			Height:     height,
			Module:     module,
			Type:       evt.Type,
			Portfolio:  strings.ToLower(evt.Attr("portfolio")),
			Attributes: string(attrs),
			RecordedAt: now,
		})
	}
	if len(records) == 0 {
		return nil
	}
	return i.db.WithContext(ctx).Create(&records).Error
}

// Query returns records matching filter in ascending id order.
func (i *EventIndex) Query(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	if i == nil {
		return nil, errors.New("event index unavailable")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventPageSize
	}
	if limit > maxEventPageSize {
		limit = maxEventPageSize
	}
	query := i.db.WithContext(ctx).Model(&EventRecord{}).Where("id > ?", filter.AfterID)
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if m := strings.TrimSpace(filter.Module); m != "" {
		query = query.Where("module = ?", m)
	}
	if p := strings.TrimSpace(filter.Portfolio); p != "" {
		query = query.Where("portfolio = ?", strings.ToLower(p))
	}
	var records []EventRecord
	if err := query.Order("id asc").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Follow consumes events until the channel closes or ctx ends. Heights come
// from height so records line up with the commit that produced them.
func (i *EventIndex) Follow(ctx context.Context, events <-chan *types.Event, height func() uint64, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			var h uint64
			if height != nil {
				h = height()
			}
			if err := i.Record(ctx, h, evt); err != nil {
				log.Error("event index write failed",
					slog.String("type", evt.Type),
					slog.String("error", err.Error()))
			}
		}
	}
}
