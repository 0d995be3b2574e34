package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Campaign is a time-boxed fundraising record held in custody by the ledger.
type Campaign struct {
	ID             uint64         `json:"id"`
	Creator        common.Address `json:"creator"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	ImageReference string         `json:"image_reference,omitempty"`
	TargetAmount   *big.Int       `json:"target_amount"`
	RaisedAmount   *big.Int       `json:"raised_amount"`
	Beneficiary    common.Address `json:"beneficiary"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	IsActive       bool           `json:"is_active"`
	FundsReleased  bool           `json:"funds_released"`
	DonorCount     uint64         `json:"donor_count"`
}

// CampaignInput holds the caller-supplied fields for a new campaign.
type CampaignInput struct {
	Title          string
	Description    string
	ImageReference string
	TargetAmount   *big.Int
	Beneficiary    common.Address
	DurationInDays int64
}

// Clone returns a deep copy so callers can't mutate ledger state through
// the shared *big.Int fields.
func (c *Campaign) Clone() *Campaign {
	out := *c
	out.TargetAmount = new(big.Int).Set(c.TargetAmount)
	out.RaisedAmount = new(big.Int).Set(c.RaisedAmount)
	return &out
}

// OpenAt reports whether the campaign accepts donations at t.
func (c *Campaign) OpenAt(t time.Time) bool {
	return c.IsActive && t.Before(c.EndTime)
}

// Progress returns raised/target as an integer percentage capped at 100.
func (c *Campaign) Progress() uint64 {
	if c.TargetAmount == nil || c.TargetAmount.Sign() <= 0 {
		return 0
	}
	p := new(big.Int).Mul(c.RaisedAmount, big.NewInt(100))
	p.Quo(p, c.TargetAmount)
	if p.Cmp(big.NewInt(100)) > 0 {
		return 100
	}
	return p.Uint64()
}

// Release describes a completed outbound transfer for a campaign.
type Release struct {
	CampaignID uint64         `json:"campaign_id"`
	Recipient  common.Address `json:"recipient"`
	Amount     *big.Int       `json:"amount"`
	Emergency  bool           `json:"emergency"`
}
