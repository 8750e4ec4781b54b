package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/suite"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// feeBackend overrides the pricing calls of simBackend.
type feeBackend struct {
	*simBackend
	gas     uint64
	baseFee *big.Int
	tipErr  error
}

func (b *feeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return b.gas, nil
}

func (b *feeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if b.tipErr != nil {
		return nil, b.tipErr
	}
	return big.NewInt(1_000_000_000), nil
}

func (b *feeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: b.baseFee}, nil
}

// GasEstimatorTestSuite tests gas estimation.
type GasEstimatorTestSuite struct {
	suite.Suite
	backend *feeBackend
}

func (suite *GasEstimatorTestSuite) SetupTest() {
	suite.backend = &feeBackend{
		simBackend: newSimBackend(suite.T(), NewMemory(contractAddress)),
		gas:        100_000,
		baseFee:    big.NewInt(2_000_000_000),
	}
}

func (suite *GasEstimatorTestSuite) TestAdjustment() {
	est, err := estimateGas(suite.T().Context(), suite.backend, GasConfig{Adjustment: 1.5}, ethereum.CallMsg{})
	suite.Require().NoError(err)
	suite.Require().Equal(uint64(100_000), est.GasUsed)
	suite.Require().Equal(uint64(150_000), est.GasLimit)
	suite.Require().Equal(1.5, est.GasAdjustment)
}

func (suite *GasEstimatorTestSuite) TestMaxGasLimit() {
	cfg := GasConfig{Adjustment: 2, MaxGasLimit: 120_000}
	est, err := estimateGas(suite.T().Context(), suite.backend, cfg, ethereum.CallMsg{})
	suite.Require().NoError(err)
	suite.Require().Equal(uint64(120_000), est.GasLimit)
}

func (suite *GasEstimatorTestSuite) TestFeeCap() {
	est, err := estimateGas(suite.T().Context(), suite.backend, GasConfig{Adjustment: 1}, ethereum.CallMsg{})
	suite.Require().NoError(err)
	suite.Require().Equal(int64(1_000_000_000), est.GasTipCap.Int64())
	suite.Require().Equal(int64(5_000_000_000), est.GasFeeCap.Int64())
}

func (suite *GasEstimatorTestSuite) TestPreLondonHeader() {
	suite.backend.baseFee = nil
	est, err := estimateGas(suite.T().Context(), suite.backend, GasConfig{Adjustment: 1}, ethereum.CallMsg{})
	suite.Require().NoError(err)
	suite.Require().Equal(0, est.GasFeeCap.Cmp(est.GasTipCap))
}

func (suite *GasEstimatorTestSuite) TestTipFailure() {
	suite.backend.tipErr = errors.New("method not found")
	_, err := estimateGas(suite.T().Context(), suite.backend, GasConfig{Adjustment: 1}, ethereum.CallMsg{})
	suite.Require().ErrorIs(err, clienterrors.ErrLedger)
}

func TestGasEstimatorTestSuite(t *testing.T) {
	suite.Run(t, new(GasEstimatorTestSuite))
}
