package ledger

import (
	_ "embed"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed RatingManager.abi.json
var ratingManagerABIJSON string

// ParseABI returns the parsed RatingManager ABI.
var ParseABI = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ratingManagerABIJSON))
})

// projectTuple mirrors RatingManager.RatingProject.
type projectTuple struct {
	ProjectId     *big.Int
	Creator       common.Address
	Name          string
	Description   string
	Dimensions    []string
	ScaleMax      uint8
	EndTime       *big.Int
	AllowMultiple bool
	Ended         bool
	RatingCount   *big.Int
}

func (p *projectTuple) campaign() *Campaign {
	return &Campaign{
		ID:              p.ProjectId.Uint64(),
		Creator:         p.Creator,
		Name:            p.Name,
		Description:     p.Description,
		Dimensions:      p.Dimensions,
		ScaleMax:        p.ScaleMax,
		EndTime:         p.EndTime.Int64(),
		AllowMultiple:   p.AllowMultiple,
		Ended:           p.Ended,
		SubmissionCount: p.RatingCount.Uint64(),
	}
}

func u256(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
