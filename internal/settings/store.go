// Package settings provides the DB-backed runtime configuration store for
// sync preferences and mapping coefficients.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/router-for-me/ChannelHub/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store caches settings rows in an atomically swapped snapshot so readers
// never block on the database. Writers serialize through the store's mutex
// and refresh the snapshot after every change.
type Store struct {
	db       *gorm.DB
	mu       sync.Mutex
	snapshot atomic.Value // map[string]json.RawMessage
}

// NewStore constructs a settings store bound to the database.
func NewStore(db *gorm.DB) *Store {
	s := &Store{db: db}
	s.snapshot.Store(map[string]json.RawMessage{})
	return s
}

// Reload replaces the snapshot with the current settings table contents.
func (s *Store) Reload(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("settings: nil store")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}

	next := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		if len(row.Value) == 0 {
			continue
		}
		value := make(json.RawMessage, len(row.Value))
		copy(value, row.Value)
		next[row.Key] = value
	}
	s.snapshot.Store(next)
	return nil
}

// Value returns the raw JSON value for a key from the current snapshot.
func (s *Store) Value(key string) (json.RawMessage, bool) {
	if s == nil {
		return nil, false
	}
	snap, ok := s.snapshot.Load().(map[string]json.RawMessage)
	if !ok {
		return nil, false
	}
	value, found := snap[key]
	return value, found
}

// SetValues upserts the given settings rows and refreshes the snapshot.
// The whole update happens under the store's lock so concurrent merges
// resolve last-writer-wins without interleaving.
func (s *Store) SetValues(ctx context.Context, values map[string]json.RawMessage) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("settings: nil store")
	}
	if len(values) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			row := models.Setting{
				Key:       key,
				Value:     datatypes.JSON(value),
				UpdatedAt: now,
			}
			if errUpsert := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error; errUpsert != nil {
				return fmt.Errorf("settings: upsert %s: %w", key, errUpsert)
			}
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}
	return s.Reload(ctx)
}
