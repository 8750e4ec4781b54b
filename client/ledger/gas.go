package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// GasConfig holds gas estimation configuration.
type GasConfig struct {
	Adjustment  float64 // multiplier applied to the node's estimate
	MaxGasLimit uint64  // upper bound on the adjusted limit
}

// GasEstimate is the gas and fee plan for one transaction.
type GasEstimate struct {
	GasUsed       uint64
	GasLimit      uint64
	GasTipCap     *big.Int
	GasFeeCap     *big.Int
	GasAdjustment float64
}

// estimateGas simulates msg and prices it as a dynamic fee transaction.
// The fee cap leaves room for the base fee to double before inclusion.
func estimateGas(ctx context.Context, b Backend, cfg GasConfig, msg ethereum.CallMsg) (*GasEstimate, error) {
	gasUsed, err := b.EstimateGas(ctx, msg)
	if err != nil {
		return nil, err
	}

	gasLimit := uint64(float64(gasUsed) * cfg.Adjustment)
	if cfg.MaxGasLimit > 0 && gasLimit > cfg.MaxGasLimit {
		gasLimit = cfg.MaxGasLimit
	}

	tip, err := b.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrLedger, "failed to suggest gas tip")
	}
	head, err := b.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrLedger, "failed to read latest header")
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	return &GasEstimate{
		GasUsed:       gasUsed,
		GasLimit:      gasLimit,
		GasTipCap:     tip,
		GasFeeCap:     feeCap,
		GasAdjustment: cfg.Adjustment,
	}, nil
}
