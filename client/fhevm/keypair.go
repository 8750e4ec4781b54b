package fhevm

import (
	"fmt"

	ecies "github.com/ecies/go/v2"
)

// GenerateKeypair creates a secp256k1 ECIES keypair used to receive re-encrypted values.
func GenerateKeypair() (Keypair, error) {
	sk, err := ecies.GenerateKey()
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return Keypair{
		PublicKey:  with0x(sk.PublicKey.Hex(false)),
		PrivateKey: with0x(sk.Hex()),
	}, nil
}

// sealTo encrypts plaintext to a hex encoded ECIES public key.
func sealTo(publicKey string, plaintext []byte) ([]byte, error) {
	pk, err := ecies.NewPublicKeyFromHex(strip0x(publicKey))
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return ecies.Encrypt(pk, plaintext)
}

// openWith decrypts an ECIES ciphertext with a hex encoded private key.
func openWith(privateKey string, ciphertext []byte) ([]byte, error) {
	sk, err := ecies.NewPrivateKeyFromHex(strip0x(privateKey))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return ecies.Decrypt(sk, ciphertext)
}
