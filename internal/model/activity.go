package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Activity types shown in the feed.
const (
	ActivityCampaignCreated   = "campaign_created"
	ActivityDonation          = "donation"
	ActivityFundsReleased     = "funds_released"
	ActivityEmergencyWithdraw = "emergency_withdraw"
	ActivityCampaignPaused    = "campaign_paused"
	ActivityCampaignResumed   = "campaign_resumed"
	ActivityCampaignExtended  = "campaign_extended"
	ActivityMilestone         = "milestone"
)

// ActivityItem is a feed entry derived from one journal event.
// Actor is the creator, donor or payout recipient depending on Type.
type ActivityItem struct {
	Seq           int64
	Type          string
	CampaignID    uint64
	CampaignTitle string
	Actor         *common.Address
	Amount        *big.Int
	Rate          *int
	Message       string
	EndTime       *time.Time
	CreatedAt     time.Time
}
