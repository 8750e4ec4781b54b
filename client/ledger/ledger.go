// Package ledger reads and writes rating campaigns held by the RatingManager
// contract. Client talks to a node over JSON-RPC; Memory simulates the
// contract in process for development chains and tests.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
)

// Contract limits enforced on campaign creation.
const (
	MinDimensions = 1
	MaxDimensions = 10
	MinScale      = 2
	MaxScale      = 100
)

// Ledger is the set of RatingManager operations used by the client.
type Ledger interface {
	// Address returns the RatingManager contract address.
	Address() common.Address

	CreateCampaign(ctx context.Context, params CampaignParams) (uint64, *types.Receipt, error)
	SubmitEncryptedRating(ctx context.Context, campaignID uint64, handles []fhevm.Handle, inputProof []byte) (*types.Receipt, error)

	GetCampaign(ctx context.Context, campaignID uint64) (*Campaign, error)
	GetCampaignCount(ctx context.Context) (uint64, error)
	HasSubmitted(ctx context.Context, campaignID uint64, account common.Address) (bool, error)
	GetSubmissionCount(ctx context.Context, campaignID uint64) (uint64, error)

	// GetScoreHandle returns the empty handle when no ciphertext is stored.
	GetScoreHandle(ctx context.Context, campaignID, submissionIndex, dimensionIndex uint64) (fhevm.Handle, error)

	AuthorizeCreatorDecryptAll(ctx context.Context, campaignID uint64) (*types.Receipt, error)
	AuthorizeCreatorDecryptDimension(ctx context.Context, campaignID, dimensionIndex uint64) (*types.Receipt, error)
	AuthorizeOwnDecrypt(ctx context.Context, campaignID uint64) (*types.Receipt, error)
	EndCampaignEarly(ctx context.Context, campaignID uint64) (*types.Receipt, error)
}

// CampaignParams describes a campaign to create.
type CampaignParams struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Dimensions    []string  `json:"dimensions"`
	ScaleMax      uint8     `json:"scaleMax"`
	EndTime       time.Time `json:"endTime"`
	AllowMultiple bool      `json:"allowMultiple"`
}

// Validate applies the contract's creation rules at now.
func (p CampaignParams) Validate(now time.Time) error {
	if len(p.Dimensions) < MinDimensions || len(p.Dimensions) > MaxDimensions {
		return &RevertError{Name: "InvalidDimensions"}
	}
	for _, d := range p.Dimensions {
		if strings.TrimSpace(d) == "" {
			return &RevertError{Name: "InvalidDimensions"}
		}
	}
	if p.ScaleMax < MinScale || p.ScaleMax > MaxScale {
		return &RevertError{Name: "InvalidScale"}
	}
	if !p.EndTime.After(now) {
		return &RevertError{Name: "InvalidEndTime"}
	}
	return nil
}

// Campaign is one rating project as stored by the contract.
type Campaign struct {
	ID              uint64         `json:"id"`
	Creator         common.Address `json:"creator"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Dimensions      []string       `json:"dimensions"`
	ScaleMax        uint8          `json:"scaleMax"`
	EndTime         int64          `json:"endTime"`
	AllowMultiple   bool           `json:"allowMultiple"`
	Ended           bool           `json:"ended"`
	SubmissionCount uint64         `json:"submissionCount"`
}

// Campaign states reported by Status.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Active reports whether the campaign still accepts ratings at now.
func (c *Campaign) Active(now time.Time) bool {
	return !c.Ended && now.Unix() < c.EndTime
}

// Status returns StatusActive or StatusEnded.
func (c *Campaign) Status(now time.Time) string {
	if c.Active(now) {
		return StatusActive
	}
	return StatusEnded
}

// RevertError is a named contract revert. It matches both ErrLedger and the
// registered error for its name under errors.Is.
type RevertError struct {
	Name string
	Args []any
}

func (e *RevertError) Error() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("execution reverted: %s()", e.Name)
	}
	return fmt.Sprintf("execution reverted: %s%v", e.Name, e.Args)
}

func (e *RevertError) Unwrap() []error {
	errs := []error{clienterrors.ErrLedger}
	if sentinel, ok := clienterrors.RevertByName(e.Name); ok {
		errs = append(errs, sentinel)
	}
	return errs
}

// ListCampaigns reads every campaign in id order.
func ListCampaigns(ctx context.Context, l Ledger) ([]*Campaign, error) {
	count, err := l.GetCampaignCount(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Campaign, 0, count)
	for id := uint64(0); id < count; id++ {
		c, err := l.GetCampaign(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// CampaignsByCreator reads the campaigns created by creator.
func CampaignsByCreator(ctx context.Context, l Ledger, creator common.Address) ([]*Campaign, error) {
	all, err := ListCampaigns(ctx, l)
	if err != nil {
		return nil, err
	}
	var out []*Campaign
	for _, c := range all {
		if c.Creator == creator {
			out = append(out, c)
		}
	}
	return out, nil
}
