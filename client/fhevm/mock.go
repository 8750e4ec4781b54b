package fhevm

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// RelayerMetadata is returned by the fhevm_relayer_metadata RPC of a hardhat node.
type RelayerMetadata struct {
	ACLAddress           common.Address `json:"ACLAddress"`
	InputVerifierAddress common.Address `json:"InputVerifierAddress"`
	KMSVerifierAddress   common.Address `json:"KMSVerifierAddress"`
}

// ACL answers whether an account may access a handle.
type ACL interface {
	IsAllowed(ctx context.Context, h Handle, account common.Address) (bool, error)
}

// MockInstance serves a development chain with an in-process Coprocessor.
type MockInstance struct {
	chainID  uint64
	rpcURL   string
	metadata RelayerMetadata
	cop      *Coprocessor
	acl      ACL
	now      func() time.Time
	logger   log.Logger
}

// MockOption customizes a MockInstance.
type MockOption func(*MockInstance)

// WithACL enforces handle access control on user decryption.
func WithACL(acl ACL) MockOption {
	return func(m *MockInstance) {
		m.acl = acl
	}
}

// WithClock overrides the time source used to check authorization validity.
func WithClock(now func() time.Time) MockOption {
	return func(m *MockInstance) {
		m.now = now
	}
}

// WithMockLogger sets the logger.
func WithMockLogger(l log.Logger) MockOption {
	return func(m *MockInstance) {
		m.logger = l
	}
}

// NewMockInstance binds a coprocessor to a development chain.
func NewMockInstance(chainID uint64, rpcURL string, metadata RelayerMetadata, cop *Coprocessor, opts ...MockOption) *MockInstance {
	m := &MockInstance{
		chainID:  chainID,
		rpcURL:   rpcURL,
		metadata: metadata,
		cop:      cop,
		now:      time.Now,
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("module", "fhevm-mock")
	return m
}

func (m *MockInstance) ChainID() uint64 { return m.chainID }

func (m *MockInstance) Mode() string { return ModeMock }

// Metadata returns the addresses reported by the development node.
func (m *MockInstance) Metadata() RelayerMetadata { return m.metadata }

// Coprocessor exposes the backing coprocessor, used to verify input proofs.
func (m *MockInstance) Coprocessor() *Coprocessor { return m.cop }

func (m *MockInstance) CreateEncryptedInput(contract, user common.Address) InputBuilder {
	return newInputBuilder(contract, user, func(ctx context.Context, contract, user common.Address, values []inputValue) (*EncryptedInput, error) {
		return m.cop.encryptInput(ctx, m.chainID, contract, user, values)
	})
}

func (m *MockInstance) GenerateKeypair() (Keypair, error) {
	return GenerateKeypair()
}

func (m *MockInstance) CreateEIP712(publicKey string, contracts []common.Address, startTimestamp, durationDays int64) (apitypes.TypedData, error) {
	return NewUserDecryptTypedData(m.chainID, m.metadata.KMSVerifierAddress, publicKey, contracts, startTimestamp, durationDays)
}

// UserDecrypt performs the checks of the KMS: signature, validity window,
// contract coverage and ACL. Each value is then re-encrypted to the request
// public key and opened with the request private key.
func (m *MockInstance) UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[Handle]any, error) {
	out := make(map[Handle]any, len(req.Pairs))
	if len(req.Pairs) == 0 {
		return out, nil
	}

	if err := m.authorize(ctx, req); err != nil {
		return nil, err
	}

	for _, p := range req.Pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		plain, typ, err := m.cop.decrypt(ctx, p.Handle)
		if err != nil {
			return nil, clienterrors.WrapError(err, clienterrors.ErrDecryption, "handle %s", p.Handle)
		}

		sealed, err := sealTo(req.PublicKey, encodeValue(plain))
		if err != nil {
			return nil, clienterrors.WrapError(err, clienterrors.ErrDecryption, "re-encrypt %s", p.Handle)
		}
		opened, err := openWith(req.PrivateKey, sealed)
		if err != nil {
			return nil, clienterrors.WrapError(err, clienterrors.ErrDecryption, "open %s", p.Handle)
		}
		out[p.Handle] = decodeValue(typ, opened)
	}

	m.logger.Debug("User decryption complete", "user", req.UserAddress.Hex(), "handles", len(out))
	return out, nil
}

func (m *MockInstance) authorize(ctx context.Context, req UserDecryptRequest) error {
	td, err := m.CreateEIP712(req.PublicKey, req.ContractAddresses, req.StartTimestamp, req.DurationDays)
	if err != nil {
		return clienterrors.WrapError(err, clienterrors.ErrDecryption, "rebuild authorization")
	}
	signer, err := RecoverTypedDataSigner(td, req.Signature)
	if err != nil {
		return clienterrors.WrapError(err, clienterrors.ErrDecryption, "verify authorization")
	}
	if signer != req.UserAddress {
		return clienterrors.WrapError(
			fmt.Errorf("signed by %s", signer.Hex()), clienterrors.ErrUnauthorized, "authorization does not match user %s", req.UserAddress.Hex())
	}

	now := m.now().Unix()
	if now < req.StartTimestamp {
		return clienterrors.WrapError(fmt.Errorf("starts at %d", req.StartTimestamp), clienterrors.ErrDecryption, "authorization not yet valid")
	}
	if now >= req.StartTimestamp+req.DurationDays*86400 {
		return clienterrors.WrapError(fmt.Errorf("expired at %d", req.StartTimestamp+req.DurationDays*86400), clienterrors.ErrDecryption, "authorization expired")
	}

	allowed := make(map[common.Address]bool, len(req.ContractAddresses))
	for _, c := range req.ContractAddresses {
		if c == req.UserAddress {
			return clienterrors.WrapError(fmt.Errorf("%s", c.Hex()), clienterrors.ErrUnauthorized, "user address cannot be a contract address")
		}
		allowed[c] = true
	}

	for _, p := range req.Pairs {
		if p.Handle.ChainID() != m.chainID {
			return clienterrors.WrapError(fmt.Errorf("chain %d", p.Handle.ChainID()), clienterrors.ErrInvalidHandle, "handle %s belongs to another chain", p.Handle)
		}
		if !allowed[p.Contract] {
			return clienterrors.WrapError(fmt.Errorf("%s", p.Contract.Hex()), clienterrors.ErrUnauthorized, "contract not covered by authorization")
		}
		if m.acl == nil {
			continue
		}
		for _, account := range []common.Address{req.UserAddress, p.Contract} {
			ok, err := m.acl.IsAllowed(ctx, p.Handle, account)
			if err != nil {
				return clienterrors.WrapError(err, clienterrors.ErrDecryption, "acl lookup")
			}
			if !ok {
				return clienterrors.WrapError(fmt.Errorf("%s", account.Hex()), clienterrors.ErrUnauthorized, "handle %s not allowed", p.Handle)
			}
		}
	}
	return nil
}
