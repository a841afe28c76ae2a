package sink

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindStore = "store"

	defaultBulkSize = 100
)

func init() { register[StoreConfig](KindStore) }

type StoreConfig struct {
	Type     string `json:"type"`
	Bulk     bool   `json:"bulk,omitempty"`
	BulkSize int    `json:"bulk_size,omitempty"`
}

func (c *StoreConfig) Kind() string { return KindStore }

func (c *StoreConfig) Validate() error {
	if c.BulkSize < 0 {
		return pipeline.InvalidField(KindStore, "bulk_size", "must not be negative")
	}
	return nil
}

// JSONMap is a map persisted as a jsonb column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
	return json.Unmarshal(b, m)
}

// EnrichedRecord is the row the store sink keeps per record key.
type EnrichedRecord struct {
	Key           string  `gorm:"primaryKey;size:512"`
	SourceName    string  `gorm:"index;size:64"`
	ProcessedText string  `gorm:"type:text"`
	SegmentedData JSONMap `gorm:"type:jsonb"`
	Meta          JSONMap `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (EnrichedRecord) TableName() string { return "enriched_records" }

func newEnrichedRecord(r pipeline.Record) EnrichedRecord {
	return EnrichedRecord{
		Key:           r.Key(),
		SourceName:    r.SourceName,
		ProcessedText: r.ProcessedText,
		SegmentedData: JSONMap(r.SegmentedData),
		Meta:          JSONMap(r.Meta),
	}
}

var upsert = clause.OnConflict{
	Columns:   []clause.Column{{Name: "key"}},
	DoUpdates: clause.AssignmentColumns([]string{"source_name", "processed_text", "segmented_data", "meta", "updated_at"}),
}

// Store upserts records into the enriched_records table. In bulk mode all
// records go in one transaction and any failure fails the whole call.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Kind() string { return KindStore }

// Migrate creates or updates the enriched_records table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&EnrichedRecord{})
}

func (s *Store) Send(ctx context.Context, records []pipeline.Record, cfg Config) ([]DeliveryResult, error) {
	c, err := configFor[StoreConfig](KindStore, cfg)
	if err != nil {
		return nil, err
	}
	if c.Bulk {
		return s.sendBulk(ctx, records, c)
	}
	return deliverEach(ctx, KindStore, records, func(ctx context.Context, r pipeline.Record) (Status, error) {
		row := newEnrichedRecord(r)
		if err := s.db.WithContext(ctx).Clauses(upsert).Create(&row).Error; err != nil {
			return "", err
		}
		return StatusDelivered, nil
	})
}

func (s *Store) sendBulk(ctx context.Context, records []pipeline.Record, c *StoreConfig) ([]DeliveryResult, error) {
	results := make([]DeliveryResult, len(records))
	if len(records) == 0 {
		return results, nil
	}
	rows := make([]EnrichedRecord, 0, len(records))
	seen := make(map[string]int, len(records))
	for i, r := range records {
		row := newEnrichedRecord(r)
		results[i] = DeliveryResult{Key: row.Key, Status: StatusDelivered}
		// a statement cannot upsert the same key twice
		if j, dup := seen[row.Key]; dup {
			rows[j] = row
			continue
		}
		seen[row.Key] = len(rows)
		rows = append(rows, row)
	}

	size := c.BulkSize
	if size == 0 {
		size = defaultBulkSize
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(upsert).CreateInBatches(&rows, size).Error
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("bulk upsert of %d records failed: %w", len(rows), err)
	}
	return results, nil
}
