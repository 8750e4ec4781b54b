package seal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := New("correct horse", LightParams())
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
		aad       []byte
	}{
		{"json record", []byte(`{"publicKey":"0x04"}`), []byte("fhevm.decryptionSignature.0xabc")},
		{"empty plaintext", []byte{}, []byte("k")},
		{"no aad", []byte("value"), nil},
		{"large", bytes.Repeat([]byte{0x5a}, 4096), []byte("k")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := s.Seal(tt.plaintext, tt.aad)
			require.NoError(t, err)
			assert.NotContains(t, string(sealed), string(tt.plaintext[:min(len(tt.plaintext), 8)])+"\x00")

			opened, err := s.Open(sealed, tt.aad)
			require.NoError(t, err)
			assert.Equal(t, len(tt.plaintext), len(opened))
			assert.True(t, bytes.Equal(tt.plaintext, opened))
		})
	}
}

func TestSealFreshSalt(t *testing.T) {
	s, err := New("pw", LightParams())
	require.NoError(t, err)

	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenFailures(t *testing.T) {
	s, err := New("pw", LightParams())
	require.NoError(t, err)
	sealed, err := s.Seal([]byte("secret"), []byte("key-a"))
	require.NoError(t, err)

	other, err := New("other", LightParams())
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	badVersion := append([]byte(nil), sealed...)
	badVersion[0] = 9

	tests := []struct {
		name   string
		sealer *Sealer
		data   []byte
		aad    []byte
	}{
		{"wrong aad", s, sealed, []byte("key-b")},
		{"wrong passphrase", other, sealed, []byte("key-a")},
		{"tampered", s, tampered, []byte("key-a")},
		{"unknown version", s, badVersion, []byte("key-a")},
		{"truncated", s, sealed[:10], []byte("key-a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sealer.Open(tt.data, tt.aad)
			require.ErrorIs(t, err, ErrOpen)
		})
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New("", LightParams())
	require.Error(t, err)

	_, err = New("pw", Params{Time: 0, Memory: 8 * 1024, Parallelism: 1, SaltLength: 16})
	require.ErrorContains(t, err, "time must be at least 1")

	_, err = New("pw", Params{Time: 1, Memory: 1024, Parallelism: 1, SaltLength: 16})
	require.ErrorContains(t, err, "memory must be at least 8MB")

	require.NoError(t, DefaultParams().Validate())
}
