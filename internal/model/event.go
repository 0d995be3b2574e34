package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies the type of a journal record.
type EventKind string

const (
	EventCampaignCreated       EventKind = "campaign_created"
	EventDonationReceived      EventKind = "donation_received"
	EventFundsReleased         EventKind = "funds_released"
	EventCampaignStatusChanged EventKind = "campaign_status_changed"
	EventCampaignExtended      EventKind = "campaign_extended"
	EventCampaignMilestone     EventKind = "campaign_milestone"
	EventTokenTransfer         EventKind = "token_transfer"
	EventTokenApproval         EventKind = "token_approval"
)

// Event is one entry of the ledger journal.
// Seq is assigned by the journal on append and defines replay order.
type Event struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id"`
	Kind       EventKind       `json:"kind"`
	CampaignID uint64          `json:"campaign_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent encodes payload into an Event of the given kind.
func NewEvent(kind EventKind, campaignID uint64, payload any, at time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Event{Kind: kind, CampaignID: campaignID, Payload: raw, OccurredAt: at}, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload (seq %d): %w", e.Kind, e.Seq, err)
	}
	return nil
}

// CampaignCreated carries everything needed to rebuild a campaign on replay.
type CampaignCreated struct {
	CampaignID     uint64         `json:"campaign_id"`
	Creator        common.Address `json:"creator"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	ImageReference string         `json:"image_reference"`
	TargetAmount   *big.Int       `json:"target_amount"`
	Beneficiary    common.Address `json:"beneficiary"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
}

type DonationReceived struct {
	CampaignID uint64         `json:"campaign_id"`
	Donor      common.Address `json:"donor"`
	Amount     *big.Int       `json:"amount"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
}

// FundsReleased is emitted by both a normal release and an emergency
// withdraw; Emergency tells them apart.
type FundsReleased struct {
	CampaignID  uint64         `json:"campaign_id"`
	Beneficiary common.Address `json:"beneficiary"`
	Amount      *big.Int       `json:"amount"`
	Emergency   bool           `json:"emergency,omitempty"`
}

type CampaignStatusChanged struct {
	CampaignID uint64 `json:"campaign_id"`
	IsActive   bool   `json:"is_active"`
}

type CampaignExtended struct {
	CampaignID uint64    `json:"campaign_id"`
	NewEndTime time.Time `json:"new_end_time"`
}

// CampaignMilestone marks the first time raised reached Rate percent of target.
type CampaignMilestone struct {
	CampaignID uint64   `json:"campaign_id"`
	Rate       int      `json:"rate"`
	Raised     *big.Int `json:"raised"`
}

// TokenTransfer mirrors the ERC-20 Transfer log. From is the zero address on mint.
type TokenTransfer struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

type TokenApproval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *big.Int       `json:"value"`
}
