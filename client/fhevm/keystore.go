package fhevm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/niclabs/tcpaillier"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ChapmaBeerbohm/crypticscore/crypto/seal"
)

// ErrKeysNotFound is returned by KeyStore.LoadKeys before any keys were saved.
var ErrKeysNotFound = errors.New("coprocessor keys not found")

// KeyStore persists the key material of a Coprocessor so that ciphertexts and
// input proofs written by one process can be used by another.
type KeyStore interface {
	LoadKeys(ctx context.Context) ([]byte, error)
	// SaveKeys stores data unless keys already exist. Existing keys are kept.
	SaveKeys(ctx context.Context, data []byte) error
}

// MemoryKeyStore keeps key material for the lifetime of the process.
type MemoryKeyStore struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryKeyStore returns an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

func (s *MemoryKeyStore) LoadKeys(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrKeysNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryKeyStore) SaveKeys(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = append([]byte(nil), data...)
	}
	return nil
}

// defaultKeyName names the single key set of a database.
const defaultKeyName = "default"

// CoprocessorKeyRecord is the database row behind DBKeyStore.
type CoprocessorKeyRecord struct {
	Name      string    `gorm:"primaryKey;size:64"`
	Data      []byte    `gorm:"type:blob;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the gorm default.
func (CoprocessorKeyRecord) TableName() string {
	return "fhevm_coprocessor_keys"
}

// DBKeyStore keeps coprocessor keys next to the ciphertexts of a
// DBCiphertextStore. With a sealer the row is encrypted at rest.
type DBKeyStore struct {
	db     *gorm.DB
	sealer *seal.Sealer
}

// NewDBKeyStore wraps db. The CoprocessorKeyRecord table must be migrated.
// sealer may be nil.
func NewDBKeyStore(db *gorm.DB, sealer *seal.Sealer) *DBKeyStore {
	return &DBKeyStore{db: db, sealer: sealer}
}

func (s *DBKeyStore) LoadKeys(ctx context.Context) ([]byte, error) {
	var rec CoprocessorKeyRecord
	err := s.db.WithContext(ctx).Where("name = ?", defaultKeyName).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeysNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read coprocessor keys: %w", err)
	}
	if s.sealer == nil {
		return rec.Data, nil
	}
	return s.sealer.Open(rec.Data, s.aad())
}

func (s *DBKeyStore) SaveKeys(ctx context.Context, data []byte) error {
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(data, s.aad())
		if err != nil {
			return err
		}
		data = sealed
	}
	rec := CoprocessorKeyRecord{Name: defaultKeyName, Data: data}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to write coprocessor keys: %w", err)
	}
	return nil
}

func (s *DBKeyStore) aad() []byte {
	return []byte(CoprocessorKeyRecord{}.TableName() + "/" + defaultKeyName)
}

// keyMaterial is the serialized form of a coprocessor's keys.
type keyMaterial struct {
	PubKey   *tcpaillier.PubKey `json:"pubKey"`
	Shares   []shareMaterial    `json:"shares"`
	Verifier hexutil.Bytes      `json:"verifier"`
}

type shareMaterial struct {
	Index uint8    `json:"index"`
	Si    *big.Int `json:"si"`
}

func (c *Coprocessor) marshalKeys() ([]byte, error) {
	km := keyMaterial{
		PubKey:   c.pk,
		Shares:   make([]shareMaterial, len(c.shares)),
		Verifier: crypto.FromECDSA(c.verifier),
	}
	for i, share := range c.shares {
		km.Shares[i] = shareMaterial{Index: share.Index, Si: share.Si}
	}
	data, err := json.Marshal(km)
	if err != nil {
		return nil, fmt.Errorf("failed to encode coprocessor keys: %w", err)
	}
	return data, nil
}

func (c *Coprocessor) restoreKeys(data []byte) error {
	var km keyMaterial
	if err := json.Unmarshal(data, &km); err != nil {
		return fmt.Errorf("failed to decode coprocessor keys: %w", err)
	}
	if km.PubKey == nil || km.PubKey.N == nil || len(km.Shares) != int(km.PubKey.L) || km.PubKey.L == 0 {
		return fmt.Errorf("coprocessor keys are incomplete")
	}

	shares := make([]*tcpaillier.KeyShare, len(km.Shares))
	for i, sm := range km.Shares {
		if sm.Si == nil {
			return fmt.Errorf("coprocessor key share %d is empty", i)
		}
		shares[i] = &tcpaillier.KeyShare{PubKey: km.PubKey, Index: sm.Index, Si: sm.Si}
	}

	verifier, err := crypto.ToECDSA(km.Verifier)
	if err != nil {
		return fmt.Errorf("invalid input verifier key: %w", err)
	}

	c.pk, c.shares, c.verifier = km.PubKey, shares, verifier
	return nil
}
