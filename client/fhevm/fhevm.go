// Package fhevm resolves and drives the encryption backend used to submit and
// decrypt confidential rating scores. Two backends exist: a mock coprocessor
// for local hardhat nodes and a remote relayer for public networks. Both are
// exposed through the Instance interface.
package fhevm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Backend modes reported by Instance.Mode.
const (
	ModeMock    = "mock"
	ModeRelayer = "relayer"
)

// Instance is a capability object bound to one resolved backend.
type Instance interface {
	// CreateEncryptedInput starts an encrypted input bound to a contract and user.
	CreateEncryptedInput(contract, user common.Address) InputBuilder

	// GenerateKeypair returns a fresh re-encryption keypair.
	GenerateKeypair() (Keypair, error)

	// CreateEIP712 builds the user decryption authorization message.
	CreateEIP712(publicKey string, contracts []common.Address, startTimestamp, durationDays int64) (apitypes.TypedData, error)

	// UserDecrypt decrypts every handle in a single batch. Values are *big.Int
	// for integer types and bool for booleans.
	UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[Handle]any, error)

	// ChainID returns the chain the instance was resolved for.
	ChainID() uint64

	// Mode returns ModeMock or ModeRelayer.
	Mode() string
}

// InputBuilder accumulates plaintext values before encryption.
type InputBuilder interface {
	Add32(v uint32) InputBuilder
	Add64(v uint64) InputBuilder
	AddBool(v bool) InputBuilder
	AddAddress(a common.Address) InputBuilder
	Encrypt(ctx context.Context) (*EncryptedInput, error)
}

// EncryptedInput is the result of encrypting a batch of values.
type EncryptedInput struct {
	Handles    []Handle `json:"handles"`
	InputProof []byte   `json:"inputProof"`
}

// Keypair is a hex encoded (0x prefixed) re-encryption keypair.
type Keypair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// HandleContractPair names a handle and the contract that holds it.
type HandleContractPair struct {
	Handle   Handle         `json:"handle"`
	Contract common.Address `json:"contractAddress"`
}

// UserDecryptRequest carries everything needed for one batched decryption.
type UserDecryptRequest struct {
	Pairs             []HandleContractPair
	PrivateKey        string
	PublicKey         string
	Signature         string
	ContractAddresses []common.Address
	UserAddress       common.Address
	StartTimestamp    int64
	DurationDays      int64
}

// Handles returns the handles of the request in order.
func (r UserDecryptRequest) Handles() []Handle {
	out := make([]Handle, len(r.Pairs))
	for i, p := range r.Pairs {
		out[i] = p.Handle
	}
	return out
}

// Status is a progress notification emitted while resolving an instance.
type Status string

// Statuses in emission order. A resolution emits a subset of them.
const (
	StatusSDKLoading      Status = "sdk-loading"
	StatusSDKLoaded       Status = "sdk-loaded"
	StatusSDKInitializing Status = "sdk-initializing"
	StatusSDKInitialized  Status = "sdk-initialized"
	StatusCreatingMock    Status = "creating-mock"
	StatusCreating        Status = "creating"
	StatusReady           Status = "ready"
)

// StatusFunc observes resolution progress.
type StatusFunc func(Status)

// MaxInputBits bounds the total plaintext width of one encrypted input.
const MaxInputBits = 2048
