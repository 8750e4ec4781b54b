package fhevm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCiphertextNotFound is returned when a handle has no stored ciphertext.
var ErrCiphertextNotFound = errors.New("ciphertext not found")

// Ciphertext is a stored encrypted value.
type Ciphertext struct {
	Type FheType
	Data []byte
}

// CiphertextStore persists the ciphertexts behind mock handles.
type CiphertextStore interface {
	Put(ctx context.Context, h Handle, ct Ciphertext) error
	Get(ctx context.Context, h Handle) (Ciphertext, error)
}

// MemoryCiphertextStore keeps ciphertexts for the lifetime of the process.
type MemoryCiphertextStore struct {
	mu   sync.RWMutex
	data map[Handle]Ciphertext
}

// NewMemoryCiphertextStore creates an empty in-memory store.
func NewMemoryCiphertextStore() *MemoryCiphertextStore {
	return &MemoryCiphertextStore{data: make(map[Handle]Ciphertext)}
}

func (s *MemoryCiphertextStore) Put(_ context.Context, h Handle, ct Ciphertext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[h] = Ciphertext{Type: ct.Type, Data: append([]byte(nil), ct.Data...)}
	return nil
}

func (s *MemoryCiphertextStore) Get(_ context.Context, h Handle) (Ciphertext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ct, ok := s.data[h]
	if !ok {
		return Ciphertext{}, fmt.Errorf("%w: %s", ErrCiphertextNotFound, h)
	}
	return ct, nil
}

// CiphertextRecord is the database row behind DBCiphertextStore.
type CiphertextRecord struct {
	Handle    string    `gorm:"primaryKey;size:66"`
	Type      uint8     `gorm:"not null"`
	Data      []byte    `gorm:"type:blob;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the gorm default.
func (CiphertextRecord) TableName() string {
	return "fhevm_ciphertexts"
}

// DBCiphertextStore shares mock ciphertexts between processes through SQLite.
type DBCiphertextStore struct {
	db *gorm.DB
}

// NewDBCiphertextStore wraps db. The CiphertextRecord table must be migrated.
func NewDBCiphertextStore(db *gorm.DB) *DBCiphertextStore {
	return &DBCiphertextStore{db: db}
}

func (s *DBCiphertextStore) Put(ctx context.Context, h Handle, ct Ciphertext) error {
	rec := CiphertextRecord{Handle: string(h), Type: uint8(ct.Type), Data: ct.Data}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to store ciphertext %s: %w", h, err)
	}
	return nil
}

func (s *DBCiphertextStore) Get(ctx context.Context, h Handle) (Ciphertext, error) {
	var rec CiphertextRecord
	err := s.db.WithContext(ctx).Where("handle = ?", string(h)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Ciphertext{}, fmt.Errorf("%w: %s", ErrCiphertextNotFound, h)
	}
	if err != nil {
		return Ciphertext{}, fmt.Errorf("failed to load ciphertext %s: %w", h, err)
	}
	return Ciphertext{Type: FheType(rec.Type), Data: rec.Data}, nil
}
