package keys

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ChapmaBeerbohm/crypticscore/crypto/seal"
)

// ErrNotFound is returned by Storage.Get for an absent key.
var ErrNotFound = errors.New("key not found")

// Storage is a string key/value store for credential records.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryStorage keeps records for the lifetime of the process.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Record is the database row behind DBStorage.
type Record struct {
	Key       string    `gorm:"column:storage_key;primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the gorm default.
func (Record) TableName() string {
	return "credentials"
}

// DBStorage persists records in SQLite.
type DBStorage struct {
	db *gorm.DB
}

// NewDBStorage wraps db. The Record table must be migrated.
func NewDBStorage(db *gorm.DB) *DBStorage {
	return &DBStorage{db: db}
}

func (s *DBStorage) Get(ctx context.Context, key string) (string, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return rec.Value, nil
}

func (s *DBStorage) Set(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&Record{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *DBStorage) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&Record{}, "storage_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// SealedStorage encrypts values before handing them to another Storage.
// Each value is bound to its key, so records cannot be swapped between users.
type SealedStorage struct {
	inner  Storage
	sealer *seal.Sealer
}

// NewSealedStorage wraps inner with sealer.
func NewSealedStorage(inner Storage, sealer *seal.Sealer) *SealedStorage {
	return &SealedStorage{inner: inner, sealer: sealer}
}

func (s *SealedStorage) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}
	data, err := hexutil.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("sealed record %s is not hex: %w", key, err)
	}
	plain, err := s.sealer.Open(data, []byte(key))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (s *SealedStorage) Set(ctx context.Context, key, value string) error {
	data, err := s.sealer.Seal([]byte(value), []byte(key))
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, hexutil.Encode(data))
}

func (s *SealedStorage) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}
