package keys

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSignerSignTx(t *testing.T) {
	s, err := GenerateLocalSigner()
	require.NoError(t, err)

	chainID := big.NewInt(31337)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &ratingManager,
		Value:     big.NewInt(0),
	})

	signed, err := s.SignTx(t.Context(), tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestLocalSignerCanceled(t *testing.T) {
	s, err := GenerateLocalSigner()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = s.SignTx(ctx, types.NewTx(&types.LegacyTx{}), big.NewInt(1))
	require.ErrorIs(t, err, context.Canceled)
}
