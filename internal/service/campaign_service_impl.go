package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/givers/charity-ledger/internal/model"
)

const (
	MinDurationDays  = 1
	MaxDurationDays  = 365
	MinExtensionDays = 1
	MaxExtensionDays = 30

	day = 24 * time.Hour
)

// role is the authority an operation requires from its caller.
type role int

const (
	roleCreatorOrOwner role = iota
	roleOwner
)

// campaignState is everything the ledger keeps for one campaign.
type campaignState struct {
	campaign      *model.Campaign
	donations     []model.Donation
	donors        []common.Address // first-contribution order
	contributions map[common.Address]*big.Int
}

// CampaignServiceImpl は CampaignService の実装。
// All mutations run under mu's write lock, so each call sees a settled state
// and commits as a unit.
type CampaignServiceImpl struct {
	token   TokenLedger
	events  EventRecorder
	owner   common.Address
	custody common.Address

	mu             sync.RWMutex
	campaigns      map[uint64]*campaignState
	counter        uint64
	totalDonations *big.Int
}

// NewCampaignService は CampaignServiceImpl を生成する。
// owner is the fixed platform owner; custody is the address the ledger holds
// donated tokens under. events may be nil.
func NewCampaignService(token TokenLedger, events EventRecorder, owner, custody common.Address) CampaignService {
	return &CampaignServiceImpl{
		token:          token,
		events:         events,
		owner:          owner,
		custody:        custody,
		campaigns:      make(map[uint64]*campaignState),
		totalDonations: new(big.Int),
	}
}

func (s *CampaignServiceImpl) Owner() common.Address { return s.owner }
func (s *CampaignServiceImpl) Custody() common.Address { return s.custody }

// authorize is the single role check shared by every guarded operation.
func (s *CampaignServiceImpl) authorize(caller common.Address, c *model.Campaign, r role) error {
	if caller == (common.Address{}) {
		return ErrUnauthorized
	}
	if caller == s.owner {
		return nil
	}
	if r == roleCreatorOrOwner && c != nil && caller == c.Creator {
		return nil
	}
	return ErrUnauthorized
}

func (s *CampaignServiceImpl) lookup(id uint64) (*campaignState, error) {
	cs, ok := s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return cs, nil
}

// emit hands ev to the recorder. Failures are logged, not returned: by the
// time an event exists the state change (and any token movement) is final.
func (s *CampaignServiceImpl) emit(ctx context.Context, kind model.EventKind, campaignID uint64, payload any, now time.Time) {
	if s.events == nil {
		return
	}
	ev, err := model.NewEvent(kind, campaignID, payload, now)
	if err == nil {
		err = s.events.Record(ctx, ev)
	}
	if err != nil {
		slog.Error("ledger event not recorded", "kind", kind, "campaign_id", campaignID, "error", err)
	}
}

func (s *CampaignServiceImpl) Create(ctx context.Context, caller common.Address, in model.CampaignInput, now time.Time) (*model.Campaign, error) {
	if err := validateInput(in, s.custody); err != nil {
		return nil, err
	}
	now = now.UTC().Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := model.CampaignCreated{
		CampaignID:     s.counter + 1,
		Creator:        caller,
		Title:          in.Title,
		Description:    in.Description,
		ImageReference: in.ImageReference,
		TargetAmount:   new(big.Int).Set(in.TargetAmount),
		Beneficiary:    in.Beneficiary,
		StartTime:      now,
		EndTime:        now.Add(time.Duration(in.DurationInDays) * day),
	}
	cs, err := s.applyCreated(ev)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventCampaignCreated, ev.CampaignID, ev, now)
	slog.Info("campaign created", "campaign_id", ev.CampaignID, "creator", caller.Hex(), "end_time", ev.EndTime)
	return cs.campaign.Clone(), nil
}

// validateInput rejects a custody beneficiary: a release to custody would
// close the campaign and strand its funds.
func validateInput(in model.CampaignInput, custody common.Address) error {
	switch {
	case in.Title == "":
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
	case in.Description == "":
		return fmt.Errorf("%w: description cannot be empty", ErrInvalidInput)
	case in.TargetAmount == nil || in.TargetAmount.Sign() <= 0:
		return fmt.Errorf("%w: target amount must be positive", ErrInvalidInput)
	case in.Beneficiary == (common.Address{}):
		return fmt.Errorf("%w: invalid beneficiary address", ErrInvalidInput)
	case in.Beneficiary == custody:
		return fmt.Errorf("%w: beneficiary cannot be the custody address", ErrInvalidInput)
	case in.DurationInDays < MinDurationDays || in.DurationInDays > MaxDurationDays:
		return fmt.Errorf("%w: duration must be between %d-%d days", ErrInvalidInput, MinDurationDays, MaxDurationDays)
	}
	return nil
}

func (s *CampaignServiceImpl) applyCreated(ev model.CampaignCreated) (*campaignState, error) {
	if ev.CampaignID != s.counter+1 {
		return nil, fmt.Errorf("campaign id %d out of sequence (counter %d)", ev.CampaignID, s.counter)
	}
	cs := &campaignState{
		campaign: &model.Campaign{
			ID:             ev.CampaignID,
			Creator:        ev.Creator,
			Title:          ev.Title,
			Description:    ev.Description,
			ImageReference: ev.ImageReference,
			TargetAmount:   new(big.Int).Set(ev.TargetAmount),
			RaisedAmount:   new(big.Int),
			Beneficiary:    ev.Beneficiary,
			StartTime:      ev.StartTime,
			EndTime:        ev.EndTime,
			IsActive:       true,
		},
		contributions: make(map[common.Address]*big.Int),
	}
	s.campaigns[ev.CampaignID] = cs
	s.counter = ev.CampaignID
	return cs, nil
}

// Donate pulls amount from donor into custody and records it. The token
// transfer runs before any accounting change, so a failed transfer leaves the
// ledger untouched.
func (s *CampaignServiceImpl) Donate(ctx context.Context, donor common.Address, campaignID uint64, amount *big.Int, message string, now time.Time) (*model.Donation, error) {
	now = now.UTC().Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	c := cs.campaign
	if !c.IsActive {
		return nil, ErrInactiveCampaign
	}
	if !now.Before(c.EndTime) {
		return nil, ErrExpired
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	// Same checks the token performs inside TransferFrom; done here first so
	// callers get a ledger error rather than a token one.
	balance, err := s.token.BalanceOf(ctx, donor)
	if err != nil {
		return nil, fmt.Errorf("token balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientFunds
	}
	allowance, err := s.token.Allowance(ctx, donor, s.custody)
	if err != nil {
		return nil, fmt.Errorf("token allowance: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		return nil, ErrInsufficientAllowance
	}

	if err := s.token.TransferFrom(ctx, s.custody, donor, s.custody, amount); err != nil {
		return nil, fmt.Errorf("token transferFrom: %w", err)
	}

	ev := model.DonationReceived{
		CampaignID: campaignID,
		Donor:      donor,
		Amount:     new(big.Int).Set(amount),
		Message:    message,
		Timestamp:  now,
	}
	before := new(big.Int).Set(c.RaisedAmount)
	d, err := s.applyDonation(ev)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventDonationReceived, campaignID, ev, now)
	slog.Info("donation received", "campaign_id", campaignID, "donor", donor.Hex(), "amount", amount.String())

	for _, rate := range crossedMilestones(before, c.RaisedAmount, c.TargetAmount) {
		s.emit(ctx, model.EventCampaignMilestone, campaignID, model.CampaignMilestone{
			CampaignID: campaignID,
			Rate:       rate,
			Raised:     new(big.Int).Set(c.RaisedAmount),
		}, now)
		slog.Info("campaign milestone reached", "campaign_id", campaignID, "rate", rate)
	}
	return d, nil
}

func (s *CampaignServiceImpl) applyDonation(ev model.DonationReceived) (*model.Donation, error) {
	cs, err := s.lookup(ev.CampaignID)
	if err != nil {
		return nil, err
	}
	d := model.Donation{
		Donor:     ev.Donor,
		Amount:    new(big.Int).Set(ev.Amount),
		Timestamp: ev.Timestamp,
		Message:   ev.Message,
	}
	cs.donations = append(cs.donations, d)
	cs.campaign.RaisedAmount.Add(cs.campaign.RaisedAmount, ev.Amount)

	prior, seen := cs.contributions[ev.Donor]
	if !seen {
		prior = new(big.Int)
		cs.contributions[ev.Donor] = prior
		cs.donors = append(cs.donors, ev.Donor)
		cs.campaign.DonorCount++
	}
	prior.Add(prior, ev.Amount)
	s.totalDonations.Add(s.totalDonations, ev.Amount)

	out := d
	out.Amount = new(big.Int).Set(d.Amount)
	return &out, nil
}

func (s *CampaignServiceImpl) ReleaseFunds(ctx context.Context, caller common.Address, campaignID uint64, now time.Time) (*model.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	c := cs.campaign
	if err := s.authorize(caller, c, roleCreatorOrOwner); err != nil {
		return nil, fmt.Errorf("%w to release funds", err)
	}
	if now.Before(c.EndTime) {
		return nil, ErrNotEnded
	}
	return s.payout(ctx, cs, c.Beneficiary, false, now)
}

// EmergencyWithdraw moves a campaign's custody to the platform owner without
// waiting for the end time.
func (s *CampaignServiceImpl) EmergencyWithdraw(ctx context.Context, caller common.Address, campaignID uint64, now time.Time) (*model.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(caller, nil, roleOwner); err != nil {
		return nil, err
	}
	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	r, err := s.payout(ctx, cs, s.owner, true, now)
	if err != nil {
		return nil, err
	}
	slog.Warn("emergency withdraw executed",
		"campaign_id", campaignID,
		"caller", caller.Hex(),
		"amount", r.Amount.String(),
		"beneficiary", cs.campaign.Beneficiary.Hex(),
	)
	return r, nil
}

// payout is the only path that moves value out of custody. Callers hold mu.
func (s *CampaignServiceImpl) payout(ctx context.Context, cs *campaignState, to common.Address, emergency bool, now time.Time) (*model.Release, error) {
	c := cs.campaign
	if c.FundsReleased {
		return nil, ErrAlreadyReleased
	}
	if c.RaisedAmount.Sign() == 0 {
		return nil, ErrNothingToRelease
	}

	amount := new(big.Int).Set(c.RaisedAmount)
	if err := s.token.Transfer(ctx, s.custody, to, amount); err != nil {
		return nil, fmt.Errorf("token transfer: %w", err)
	}

	ev := model.FundsReleased{CampaignID: c.ID, Beneficiary: to, Amount: amount, Emergency: emergency}
	if err := s.applyReleased(ev); err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventFundsReleased, c.ID, ev, now.UTC())
	slog.Info("funds released", "campaign_id", c.ID, "recipient", to.Hex(), "amount", amount.String(), "emergency", emergency)
	return &model.Release{CampaignID: c.ID, Recipient: to, Amount: new(big.Int).Set(amount), Emergency: emergency}, nil
}

func (s *CampaignServiceImpl) applyReleased(ev model.FundsReleased) error {
	cs, err := s.lookup(ev.CampaignID)
	if err != nil {
		return err
	}
	if cs.campaign.FundsReleased {
		return fmt.Errorf("%w: campaign %d", ErrAlreadyReleased, ev.CampaignID)
	}
	cs.campaign.FundsReleased = true
	cs.campaign.IsActive = false
	return nil
}

func (s *CampaignServiceImpl) ExtendCampaign(ctx context.Context, caller common.Address, campaignID uint64, additionalDays int64, now time.Time) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(caller, cs.campaign, roleCreatorOrOwner); err != nil {
		return nil, err
	}
	if additionalDays < MinExtensionDays || additionalDays > MaxExtensionDays {
		return nil, fmt.Errorf("%w: can extend by %d-%d days", ErrInvalidInput, MinExtensionDays, MaxExtensionDays)
	}

	ev := model.CampaignExtended{
		CampaignID: campaignID,
		NewEndTime: cs.campaign.EndTime.Add(time.Duration(additionalDays) * day),
	}
	if err := s.applyExtended(ev); err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventCampaignExtended, campaignID, ev, now.UTC())
	return cs.campaign.Clone(), nil
}

func (s *CampaignServiceImpl) applyExtended(ev model.CampaignExtended) error {
	cs, err := s.lookup(ev.CampaignID)
	if err != nil {
		return err
	}
	if ev.NewEndTime.Before(cs.campaign.EndTime) {
		return fmt.Errorf("campaign %d end time cannot move backward", ev.CampaignID)
	}
	cs.campaign.EndTime = ev.NewEndTime
	return nil
}

// ToggleCampaignStatus pauses or resumes donations. A released campaign stays
// closed for good.
func (s *CampaignServiceImpl) ToggleCampaignStatus(ctx context.Context, caller common.Address, campaignID uint64, now time.Time) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(caller, cs.campaign, roleCreatorOrOwner); err != nil {
		return nil, err
	}
	if cs.campaign.FundsReleased {
		return nil, ErrAlreadyReleased
	}

	ev := model.CampaignStatusChanged{CampaignID: campaignID, IsActive: !cs.campaign.IsActive}
	if err := s.applyStatus(ev); err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventCampaignStatusChanged, campaignID, ev, now.UTC())
	return cs.campaign.Clone(), nil
}

func (s *CampaignServiceImpl) applyStatus(ev model.CampaignStatusChanged) error {
	cs, err := s.lookup(ev.CampaignID)
	if err != nil {
		return err
	}
	if ev.IsActive && cs.campaign.FundsReleased {
		return fmt.Errorf("%w: campaign %d cannot be reactivated", ErrAlreadyReleased, ev.CampaignID)
	}
	cs.campaign.IsActive = ev.IsActive
	return nil
}

// Restore replays journal records in order. Token records are ignored here;
// the token ledger restores its own. Milestones carry no state.
func (s *CampaignServiceImpl) Restore(ctx context.Context, events []*model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		var err error
		switch ev.Kind {
		case model.EventCampaignCreated:
			var p model.CampaignCreated
			if err = ev.Decode(&p); err == nil {
				_, err = s.applyCreated(p)
			}
		case model.EventDonationReceived:
			var p model.DonationReceived
			if err = ev.Decode(&p); err == nil {
				_, err = s.applyDonation(p)
			}
		case model.EventFundsReleased:
			var p model.FundsReleased
			if err = ev.Decode(&p); err == nil {
				err = s.applyReleased(p)
			}
		case model.EventCampaignExtended:
			var p model.CampaignExtended
			if err = ev.Decode(&p); err == nil {
				err = s.applyExtended(p)
			}
		case model.EventCampaignStatusChanged:
			var p model.CampaignStatusChanged
			if err = ev.Decode(&p); err == nil {
				err = s.applyStatus(p)
			}
		}
		if err != nil {
			return fmt.Errorf("restore seq %d: %w", ev.Seq, err)
		}
	}
	if len(events) > 0 {
		slog.Info("campaign ledger restored", "events", len(events), "campaigns", s.counter)
	}
	return nil
}

func (s *CampaignServiceImpl) Campaign(_ context.Context, campaignID uint64) (*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	return cs.campaign.Clone(), nil
}

func (s *CampaignServiceImpl) Donations(_ context.Context, campaignID uint64) ([]model.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Donation, len(cs.donations))
	for i, d := range cs.donations {
		out[i] = d
		out[i].Amount = new(big.Int).Set(d.Amount)
	}
	return out, nil
}

func (s *CampaignServiceImpl) Donors(_ context.Context, campaignID uint64) ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	return append([]common.Address{}, cs.donors...), nil
}

func (s *CampaignServiceImpl) DonorContribution(_ context.Context, campaignID uint64, donor common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return nil, err
	}
	if v, ok := cs.contributions[donor]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (s *CampaignServiceImpl) CampaignCount(_ context.Context) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter
}

func (s *CampaignServiceImpl) IsCampaignActive(_ context.Context, campaignID uint64, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return false, err
	}
	return cs.campaign.OpenAt(now), nil
}

func (s *CampaignServiceImpl) Progress(_ context.Context, campaignID uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, err := s.lookup(campaignID)
	if err != nil {
		return 0, err
	}
	return cs.campaign.Progress(), nil
}

func (s *CampaignServiceImpl) PlatformStats(_ context.Context, now time.Time) *model.PlatformStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.PlatformStats{
		TotalCampaigns: s.counter,
		TotalRaised:    new(big.Int),
		TotalDonations: new(big.Int).Set(s.totalDonations),
	}
	for _, cs := range s.campaigns {
		stats.TotalRaised.Add(stats.TotalRaised, cs.campaign.RaisedAmount)
		if cs.campaign.OpenAt(now) {
			stats.ActiveCampaigns++
		}
	}
	return stats
}
