package keys

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
)

// DefaultDurationDays is the validity window of a new credential.
const DefaultDurationDays = 365

// StorageKeyPrefix namespaces credential records in a Storage.
const StorageKeyPrefix = "fhevm.decryptionSignature."

// StorageKey returns the key a user's credential is stored under.
func StorageKey(user common.Address) string {
	return StorageKeyPrefix + user.Hex()
}

// Credential is a signed authorization binding a re-encryption keypair to a
// user and a set of contracts for a bounded time window.
type Credential struct {
	PrivateKey        string           `json:"privateKey"`
	PublicKey         string           `json:"publicKey"`
	Signature         string           `json:"signature"`
	ContractAddresses []common.Address `json:"contractAddresses"`
	UserAddress       common.Address   `json:"userAddress"`
	StartTimestamp    int64            `json:"startTimestamp"`
	DurationDays      int64            `json:"durationDays"`
}

// ExpiresAt is the first instant the credential is no longer usable.
func (c *Credential) ExpiresAt() time.Time {
	return time.Unix(c.StartTimestamp+c.DurationDays*86400, 0)
}

// IsValid reports whether now lies before the end of the validity window.
func (c *Credential) IsValid(now time.Time) bool {
	return now.Before(c.ExpiresAt())
}

// Covers reports whether every contract is part of the authorization.
func (c *Credential) Covers(contracts []common.Address) bool {
	for _, want := range contracts {
		found := false
		for _, have := range c.ContractAddresses {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// DecryptRequest builds a batched user decryption request for pairs.
func (c *Credential) DecryptRequest(pairs []fhevm.HandleContractPair) fhevm.UserDecryptRequest {
	return fhevm.UserDecryptRequest{
		Pairs:             pairs,
		PrivateKey:        c.PrivateKey,
		PublicKey:         c.PublicKey,
		Signature:         c.Signature,
		ContractAddresses: c.ContractAddresses,
		UserAddress:       c.UserAddress,
		StartTimestamp:    c.StartTimestamp,
		DurationDays:      c.DurationDays,
	}
}

func (c *Credential) marshal() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseCredential(raw string) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("malformed credential: %w", err)
	}
	if c.PrivateKey == "" || c.PublicKey == "" || c.Signature == "" || len(c.ContractAddresses) == 0 {
		return nil, fmt.Errorf("malformed credential: missing fields")
	}
	return &c, nil
}
