// Package seal encrypts small records at rest under a passphrase, using an
// Argon2id derived AES-256-GCM key with a fresh salt per record.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// NonceSize is the standard 96-bit GCM nonce.
	NonceSize = 12
	// TagSize is the 128-bit GCM authentication tag.
	TagSize = 16
	// KeySize selects AES-256.
	KeySize = 32

	formatVersion byte = 1
)

// ErrOpen is returned when a sealed record cannot be authenticated.
var ErrOpen = errors.New("sealed record failed authentication")

// Params are the Argon2id cost parameters.
type Params struct {
	Time        uint32 // iterations
	Memory      uint32 // KiB
	Parallelism uint8
	SaltLength  uint32
}

// DefaultParams returns interactive-use parameters.
func DefaultParams() Params {
	return Params{
		Time:        1,
		Memory:      64 * 1024,
		Parallelism: 4,
		SaltLength:  16,
	}
}

// LightParams returns cheap parameters for tests.
func LightParams() Params {
	return Params{
		Time:        1,
		Memory:      8 * 1024,
		Parallelism: 1,
		SaltLength:  16,
	}
}

// Validate checks the parameters against minimum costs.
func (p Params) Validate() error {
	if p.Time < 1 {
		return fmt.Errorf("time must be at least 1")
	}
	if p.Memory < 8*1024 {
		return fmt.Errorf("memory must be at least 8MB")
	}
	if p.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	if p.SaltLength < 8 {
		return fmt.Errorf("salt length must be at least 8 bytes")
	}
	return nil
}

// Sealer seals and opens records under one passphrase.
type Sealer struct {
	passphrase []byte
	params     Params
}

// New creates a Sealer. The passphrase must not be empty.
func New(passphrase string, params Params) (*Sealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid argon2 parameters: %w", err)
	}
	return &Sealer{passphrase: []byte(passphrase), params: params}, nil
}

// Seal encrypts plaintext bound to aad.
// Output layout: version, salt, nonce, ciphertext with tag.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	salt := make([]byte, s.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+len(salt)+NonceSize+len(plaintext)+TagSize)
	out = append(out, formatVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts a record produced by Seal with the same aad.
func (s *Sealer) Open(data, aad []byte) ([]byte, error) {
	saltLen := int(s.params.SaltLength)
	if len(data) < 1+saltLen+NonceSize+TagSize {
		return nil, fmt.Errorf("%w: record too short", ErrOpen)
	}
	if data[0] != formatVersion {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrOpen, data[0])
	}

	salt := data[1 : 1+saltLen]
	nonce := data[1+saltLen : 1+saltLen+NonceSize]
	ciphertext := data[1+saltLen+NonceSize:]

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return plaintext, nil
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.passphrase, salt, s.params.Time, s.params.Memory, s.params.Parallelism, KeySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM mode: %w", err)
	}
	return gcm, nil
}
