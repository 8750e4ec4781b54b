package fhevm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/niclabs/tcpaillier"
)

// DefaultCoprocessorBits is the Paillier modulus size used by NewCoprocessor.
const DefaultCoprocessorBits = 512

// Coprocessor is an in-process stand-in for the FHE coprocessor and KMS of
// a development node. Values are encrypted under a 2-of-2 threshold Paillier
// key; decryption combines a partial decryption from each share.
type Coprocessor struct {
	mu       sync.Mutex
	pk       *tcpaillier.PubKey
	shares   []*tcpaillier.KeyShare
	store    CiphertextStore
	verifier *ecdsa.PrivateKey
	logger   log.Logger
}

// CoprocessorOption customizes a Coprocessor.
type CoprocessorOption func(*coprocessorOptions)

type coprocessorOptions struct {
	bits   int
	store  CiphertextStore
	keys   KeyStore
	logger log.Logger
}

// WithModulusBits sets the Paillier modulus size.
func WithModulusBits(bits int) CoprocessorOption {
	return func(o *coprocessorOptions) {
		o.bits = bits
	}
}

// WithCiphertextStore sets where ciphertexts are kept.
func WithCiphertextStore(s CiphertextStore) CoprocessorOption {
	return func(o *coprocessorOptions) {
		o.store = s
	}
}

// WithKeyStore sets where the threshold key and input verifier key are kept.
// Coprocessors opened on the same KeyStore share keys.
func WithKeyStore(ks KeyStore) CoprocessorOption {
	return func(o *coprocessorOptions) {
		o.keys = ks
	}
}

// WithCoprocessorLogger sets the logger.
func WithCoprocessorLogger(l log.Logger) CoprocessorOption {
	return func(o *coprocessorOptions) {
		o.logger = l
	}
}

// NewCoprocessor opens a coprocessor without a deadline. See OpenCoprocessor.
func NewCoprocessor(opts ...CoprocessorOption) (*Coprocessor, error) {
	return OpenCoprocessor(context.Background(), opts...)
}

// OpenCoprocessor loads the key material from the configured KeyStore,
// generating and saving it on first use. Without a KeyStore the keys are
// fresh and live only as long as the coprocessor.
func OpenCoprocessor(ctx context.Context, opts ...CoprocessorOption) (*Coprocessor, error) {
	o := &coprocessorOptions{
		bits:   DefaultCoprocessorBits,
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = NewMemoryCiphertextStore()
	}

	c := &Coprocessor{
		store:  o.store,
		logger: o.logger.With("module", "fhevm-coprocessor"),
	}
	if o.keys == nil {
		return c, c.generateKeys(o.bits)
	}

	data, err := o.keys.LoadKeys(ctx)
	if err == nil {
		return c, c.restoreKeys(data)
	}
	if !errors.Is(err, ErrKeysNotFound) {
		return nil, fmt.Errorf("failed to load coprocessor keys: %w", err)
	}

	if err := c.generateKeys(o.bits); err != nil {
		return nil, err
	}
	if data, err = c.marshalKeys(); err != nil {
		return nil, err
	}
	if err := o.keys.SaveKeys(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to save coprocessor keys: %w", err)
	}

	// another process may have saved first; its keys win
	if data, err = o.keys.LoadKeys(ctx); err != nil {
		return nil, fmt.Errorf("failed to load coprocessor keys: %w", err)
	}
	c.logger.Info("Generated coprocessor keys", "verifier", c.VerifierAddress().Hex())
	return c, c.restoreKeys(data)
}

func (c *Coprocessor) generateKeys(bits int) error {
	shares, pk, err := tcpaillier.NewKey(bits, 1, 2, 2)
	if err != nil {
		return fmt.Errorf("failed to generate threshold key: %w", err)
	}

	verifier, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate input verifier key: %w", err)
	}

	c.pk, c.shares, c.verifier = pk, shares, verifier
	return nil
}

// VerifierAddress returns the address that signs input proofs.
func (c *Coprocessor) VerifierAddress() common.Address {
	return crypto.PubkeyToAddress(c.verifier.PublicKey)
}

// encryptInput encrypts values, stores them under fresh handles and signs the proof.
func (c *Coprocessor) encryptInput(ctx context.Context, chainID uint64, contract, user common.Address, values []inputValue) (*EncryptedInput, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	cts := make([]*big.Int, len(values))
	seed := crypto.NewKeccakState()
	seed.Write(nonce)
	seed.Write(contract.Bytes())
	seed.Write(user.Bytes())

	c.mu.Lock()
	for i, v := range values {
		ct, _, err := c.pk.Encrypt(v.value)
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("failed to encrypt value %d: %w", i, err)
		}
		cts[i] = ct
		seed.Write(ct.Bytes())
	}
	c.mu.Unlock()

	digest := seed.Sum(nil)
	handles := make([]Handle, len(values))
	for i, v := range values {
		h := deriveHandle(digest, uint8(i), chainID, v.typ)
		if err := c.store.Put(ctx, h, Ciphertext{Type: v.typ, Data: cts[i].Bytes()}); err != nil {
			return nil, err
		}
		handles[i] = h
	}

	proof, err := c.signInputProof(contract, user, handles)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Encrypted input", "contract", contract.Hex(), "user", user.Hex(), "values", len(values))
	return &EncryptedInput{Handles: handles, InputProof: proof}, nil
}

// decrypt recovers the plaintext behind h by combining both partial decryptions.
func (c *Coprocessor) decrypt(ctx context.Context, h Handle) (*big.Int, FheType, error) {
	ct, err := c.store.Get(ctx, h)
	if err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cipher := new(big.Int).SetBytes(ct.Data)
	parts := make([]*tcpaillier.DecryptionShare, len(c.shares))
	for i, share := range c.shares {
		part, err := share.PartialDecrypt(cipher)
		if err != nil {
			return nil, 0, fmt.Errorf("partial decryption %d failed: %w", i, err)
		}
		parts[i] = part
	}

	plain, err := c.pk.CombineShares(parts...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to combine decryption shares: %w", err)
	}
	if err := checkPlaintext(ct.Type, plain); err != nil {
		return nil, 0, fmt.Errorf("handle %s: %w", h, err)
	}
	return plain, ct.Type, nil
}

// Proof layout: handle count (1 byte), handles (32 bytes each), verifier signature (65 bytes).
func (c *Coprocessor) signInputProof(contract, user common.Address, handles []Handle) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(len(handles)))
	for _, h := range handles {
		b := h.Bytes32()
		buf.Write(b[:])
	}

	sig, err := crypto.Sign(inputProofDigest(contract, user, handles), c.verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to sign input proof: %w", err)
	}
	buf.Write(sig)
	return buf.Bytes(), nil
}

// VerifyInputProof checks that proof was issued by this coprocessor for exactly
// these handles, bound to contract and user.
func (c *Coprocessor) VerifyInputProof(contract, user common.Address, handles []Handle, proof []byte) error {
	if len(proof) < 1 {
		return fmt.Errorf("input proof is empty")
	}
	n := int(proof[0])
	if n != len(handles) {
		return fmt.Errorf("input proof covers %d handles, got %d", n, len(handles))
	}
	if len(proof) != 1+32*n+crypto.SignatureLength {
		return fmt.Errorf("input proof has invalid length %d", len(proof))
	}
	for i, h := range handles {
		b := h.Bytes32()
		if !bytes.Equal(proof[1+32*i:1+32*(i+1)], b[:]) {
			return fmt.Errorf("input proof handle %d does not match", i)
		}
	}

	sig := proof[1+32*n:]
	pub, err := crypto.SigToPub(inputProofDigest(contract, user, handles), sig)
	if err != nil {
		return fmt.Errorf("invalid input proof signature: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != c.VerifierAddress() {
		return fmt.Errorf("input proof not signed by the input verifier")
	}
	return nil
}

func inputProofDigest(contract, user common.Address, handles []Handle) []byte {
	parts := make([][]byte, 0, len(handles)+2)
	for _, h := range handles {
		b := h.Bytes32()
		parts = append(parts, b[:])
	}
	parts = append(parts, contract.Bytes(), user.Bytes())
	return crypto.Keccak256(parts...)
}
