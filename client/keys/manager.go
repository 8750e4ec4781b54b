package keys

import (
	"context"
	"errors"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
)

// Manager obtains and caches user decryption credentials.
//
// Concurrent Obtain calls for one user are not serialized: both may sign and
// the last write to storage wins.
type Manager struct {
	storage      Storage
	now          func() time.Time
	durationDays int64
	logger       log.Logger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithDurationDays sets the validity of newly signed credentials.
func WithDurationDays(days int64) ManagerOption {
	return func(m *Manager) {
		if days > 0 {
			m.durationDays = days
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a Manager over storage. A nil storage is replaced by a
// MemoryStorage.
func NewManager(storage Storage, opts ...ManagerOption) *Manager {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	m := &Manager{
		storage:      storage,
		now:          time.Now,
		durationDays: DefaultDurationDays,
		logger:       log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("module", "keys")
	return m
}

// Obtain returns a credential authorizing signer to decrypt values held by
// contracts. A stored credential is reused while it is unexpired and covers
// every contract; otherwise a new keypair is generated and signed.
//
// A nil credential with a nil error means decryption is unavailable right now,
// e.g. the signer declined. The error is non-nil only when ctx is done.
func (m *Manager) Obtain(ctx context.Context, inst fhevm.Instance, contracts []common.Address, signer Signer) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := StorageKey(signer.Address())

	if cached := m.cached(ctx, key, contracts); cached != nil {
		return cached, nil
	}

	kp, err := inst.GenerateKeypair()
	if err != nil {
		m.logger.Error("Failed to generate keypair", "error", err)
		return nil, nil
	}

	start := m.now().Unix()
	td, err := inst.CreateEIP712(kp.PublicKey, contracts, start, m.durationDays)
	if err != nil {
		m.logger.Error("Failed to build authorization message", "error", err)
		return nil, nil
	}

	sig, err := signer.SignTypedData(ctx, td)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.logger.Info("Signature not obtained", "user", signer.Address().Hex(), "error", err)
		return nil, nil
	}

	cred := &Credential{
		PrivateKey:        kp.PrivateKey,
		PublicKey:         kp.PublicKey,
		Signature:         sig,
		ContractAddresses: append([]common.Address(nil), contracts...),
		UserAddress:       signer.Address(),
		StartTimestamp:    start,
		DurationDays:      m.durationDays,
	}

	raw, err := cred.marshal()
	if err == nil {
		err = m.storage.Set(ctx, key, raw)
	}
	if err != nil {
		m.logger.Error("Failed to persist credential", "key", key, "error", err)
	}

	m.logger.Debug("Signed new credential", "user", cred.UserAddress.Hex(), "contracts", len(contracts))
	return cred, nil
}

func (m *Manager) cached(ctx context.Context, key string, contracts []common.Address) *Credential {
	raw, err := m.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Error("Failed to read credential", "key", key, "error", err)
		}
		return nil
	}
	cred, err := parseCredential(raw)
	if err != nil {
		m.logger.Info("Discarding unreadable credential", "key", key, "error", err)
		return nil
	}
	if !cred.IsValid(m.now()) {
		m.logger.Debug("Stored credential expired", "key", key, "expires", cred.ExpiresAt())
		return nil
	}
	if !cred.Covers(contracts) {
		m.logger.Debug("Stored credential does not cover contracts", "key", key)
		return nil
	}
	return cred
}

// Get returns the stored credential for user, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, user common.Address) (*Credential, error) {
	raw, err := m.storage.Get(ctx, StorageKey(user))
	if err != nil {
		return nil, err
	}
	return parseCredential(raw)
}

// Invalidate removes the stored credential for user.
func (m *Manager) Invalidate(ctx context.Context, user common.Address) error {
	return m.storage.Remove(ctx, StorageKey(user))
}
