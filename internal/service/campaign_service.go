package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/givers/charity-ledger/internal/model"
)

// TokenLedger は台帳が依存する代替可能トークンのインターフェース。
// Identities are explicit because Go has no ambient transaction sender.
type TokenLedger interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
	Decimals(ctx context.Context) (uint8, error)
}

// EventRecorder receives every event the ledger emits.
type EventRecorder interface {
	Record(ctx context.Context, ev *model.Event) error
}

// CampaignService はキャンペーン台帳のビジネスロジックのインターフェース
type CampaignService interface {
	Create(ctx context.Context, caller common.Address, in model.CampaignInput, now time.Time) (*model.Campaign, error)
	Donate(ctx context.Context, donor common.Address, campaignID uint64, amount *big.Int, message string, now time.Time) (*model.Donation, error)
	ReleaseFunds(ctx context.Context, caller common.Address, campaignID uint64, now time.Time) (*model.Release, error)
	EmergencyWithdraw(ctx context.Context, caller common.Address, campaignID uint64, now time.Time) (*model.Release, error)
	ExtendCampaign(ctx context.Context, caller common.Address, campaignID uint64, additionalDays int64, now time.Time) (*model.Campaign, error)
	ToggleCampaignStatus(ctx context.Context, caller common.Address, campaignID uint64, now time.Time) (*model.Campaign, error)

	Campaign(ctx context.Context, campaignID uint64) (*model.Campaign, error)
	Donations(ctx context.Context, campaignID uint64) ([]model.Donation, error)
	Donors(ctx context.Context, campaignID uint64) ([]common.Address, error)
	DonorContribution(ctx context.Context, campaignID uint64, donor common.Address) (*big.Int, error)
	CampaignCount(ctx context.Context) uint64
	IsCampaignActive(ctx context.Context, campaignID uint64, now time.Time) (bool, error)
	Progress(ctx context.Context, campaignID uint64) (uint64, error)
	PlatformStats(ctx context.Context, now time.Time) *model.PlatformStats

	Owner() common.Address
	Custody() common.Address

	// Restore rebuilds ledger state from journal records without moving any
	// tokens. It must run before the service handles calls.
	Restore(ctx context.Context, events []*model.Event) error
}
