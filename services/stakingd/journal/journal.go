package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stakeledger/core/types"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Outcome values recorded for each operation.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
)

// DefaultRecentLimit bounds Recent when the caller passes no limit.
const DefaultRecentLimit = 50

// MaxRecentLimit caps the number of rows returned by Recent.
const MaxRecentLimit = 500

// Entry is one audited ledger operation. Committed rows carry the emitted
// event and the settlement reference of the outbound transfer, if any.
type Entry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Action      string    `gorm:"index" json:"action"`
	Caller      string    `gorm:"index" json:"caller"`
	Outcome     string    `gorm:"index" json:"outcome"`
	Error       string    `json:"error,omitempty"`
	EventType   string    `json:"event_type,omitempty"`
	Attributes  string    `gorm:"type:text" json:"attributes,omitempty"`
	Token       string    `json:"token,omitempty"`
	Recipient   string    `json:"recipient,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	TransferRef string    `json:"transfer_ref,omitempty"`
	BlockTime   uint64    `json:"block_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName pins the table name independent of the struct name.
func (Entry) TableName() string { return "staking_journal" }

// Journal persists operation records through gorm.
type Journal struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(dsn) == "" {
			dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("journal: postgres dsn required")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record stores entry, assigning an ID and timestamp when missing.
func (j *Journal) Record(ctx context.Context, entry *Entry) error {
	if j == nil || entry == nil {
		return nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("journal: record %s: %w", entry.Action, err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	var entries []Entry
	err := j.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return entries, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EncodeAttributes serialises event attributes for storage.
func EncodeAttributes(evt *types.Event) string {
	if evt == nil || len(evt.Attributes) == 0 {
		return ""
	}
	raw, err := json.Marshal(evt.Attributes)
	if err != nil {
		return ""
	}
	return string(raw)
}

// DecodeAttributes parses a stored attribute blob.
func (e Entry) DecodeAttributes() (map[string]string, error) {
	if e.Attributes == "" {
		return map[string]string{}, nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(e.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}
