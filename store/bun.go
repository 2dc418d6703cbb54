package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var _ auth.Store = (*Bun)(nil)

// EntryModel is the Bun model for persisted session entries.
type EntryModel struct {
	bun.BaseModel `bun:"table:session_entries"`

	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,default:current_timestamp"`
}

// Bun is a key/value store backed by a Bun database. Desktop installs use it
// over SQLite so sessions survive application restarts.
type Bun struct {
	db *bun.DB
}

// NewBun creates a store over an existing Bun database.
func NewBun(db *bun.DB) *Bun {
	return &Bun{db: db}
}

// OpenSQLite opens (or creates) a SQLite database at dsn, ensures the entry
// table exists, and returns a store over it. Use ":memory:" for tests.
func OpenSQLite(ctx context.Context, dsn string) (*Bun, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*EntryModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return NewBun(db), nil
}

// Get returns the stored value, or (nil, nil) when the key is absent.
func (s *Bun) Get(ctx context.Context, key string) ([]byte, error) {
	var model EntryModel
	err := s.db.NewSelect().
		Model(&model).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return model.Value, nil
}

// Set upserts value under key.
func (s *Bun) Set(ctx context.Context, key string, value []byte) error {
	model := &EntryModel{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Bun) Remove(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*EntryModel)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	return err
}

// Close releases the underlying database.
func (s *Bun) Close() error {
	return s.db.Close()
}
