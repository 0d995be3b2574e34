package handler

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/givers/charity-ledger/internal/model"
	"github.com/givers/charity-ledger/internal/service"
	"github.com/givers/charity-ledger/pkg/auth"
	"github.com/givers/charity-ledger/pkg/units"
)

// CampaignHandler はキャンペーン台帳の HTTP ハンドラ
type CampaignHandler struct {
	svc      service.CampaignService
	decimals uint8
	now      func() time.Time
}

// NewCampaignHandler は CampaignHandler を生成する。now が nil なら time.Now を使う
func NewCampaignHandler(svc service.CampaignService, decimals uint8, now func() time.Time) *CampaignHandler {
	if now == nil {
		now = time.Now
	}
	return &CampaignHandler{svc: svc, decimals: decimals, now: now}
}

type campaignResponse struct {
	ID                  uint64    `json:"id"`
	Creator             string    `json:"creator"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	ImageReference      string    `json:"image_reference"`
	TargetAmount        string    `json:"target_amount"`
	TargetAmountDisplay string    `json:"target_amount_display"`
	RaisedAmount        string    `json:"raised_amount"`
	RaisedAmountDisplay string    `json:"raised_amount_display"`
	Beneficiary         string    `json:"beneficiary"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	IsActive            bool      `json:"is_active"`
	FundsReleased       bool      `json:"funds_released"`
	DonorCount          uint64    `json:"donor_count"`
	Progress            uint64    `json:"progress"`
	AcceptingDonations  bool      `json:"accepting_donations"`
}

func (h *CampaignHandler) toCampaignResponse(c *model.Campaign, now time.Time) campaignResponse {
	return campaignResponse{
		ID:                  c.ID,
		Creator:             c.Creator.Hex(),
		Title:               c.Title,
		Description:         c.Description,
		ImageReference:      c.ImageReference,
		TargetAmount:        c.TargetAmount.String(),
		TargetAmountDisplay: units.Format(c.TargetAmount, h.decimals),
		RaisedAmount:        c.RaisedAmount.String(),
		RaisedAmountDisplay: units.Format(c.RaisedAmount, h.decimals),
		Beneficiary:         c.Beneficiary.Hex(),
		StartTime:           c.StartTime,
		EndTime:             c.EndTime,
		IsActive:            c.IsActive,
		FundsReleased:       c.FundsReleased,
		DonorCount:          c.DonorCount,
		Progress:            c.Progress(),
		AcceptingDonations:  c.OpenAt(now),
	}
}

type donationResponse struct {
	Donor         string    `json:"donor"`
	Amount        string    `json:"amount"`
	AmountDisplay string    `json:"amount_display"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message"`
}

func (h *CampaignHandler) toDonationResponse(d *model.Donation) donationResponse {
	return donationResponse{
		Donor:         d.Donor.Hex(),
		Amount:        d.Amount.String(),
		AmountDisplay: units.Format(d.Amount, h.decimals),
		Timestamp:     d.Timestamp,
		Message:       d.Message,
	}
}

type releaseResponse struct {
	CampaignID    uint64 `json:"campaign_id"`
	Recipient     string `json:"recipient"`
	Amount        string `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Emergency     bool   `json:"emergency"`
}

func (h *CampaignHandler) toReleaseResponse(rel *model.Release) releaseResponse {
	return releaseResponse{
		CampaignID:    rel.CampaignID,
		Recipient:     rel.Recipient.Hex(),
		Amount:        rel.Amount.String(),
		AmountDisplay: units.Format(rel.Amount, h.decimals),
		Emergency:     rel.Emergency,
	}
}

// campaignID parses the {id} path segment. It writes the 400 itself.
func campaignID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	return id, true
}

// pathAddress parses a hex address path segment. It writes the 400 itself.
func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := r.PathValue(name)
	if !common.IsHexAddress(v) {
		writeError(w, http.StatusBadRequest, "invalid_address")
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return caller, ok
}

// Count は GET /api/campaigns/count を処理する
func (h *CampaignHandler) Count(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"count": h.svc.CampaignCount(r.Context())})
}

type createCampaignRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	ImageReference string `json:"image_reference"`
	TargetAmount   string `json:"target_amount"`
	Beneficiary    string `json:"beneficiary"`
	DurationInDays int64  `json:"duration_in_days"`
}

// Create は POST /api/campaigns を処理する（認証必須）
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createCampaignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, ok := units.ParseInteger(req.TargetAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if !common.IsHexAddress(req.Beneficiary) {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	now := h.now()
	c, err := h.svc.Create(r.Context(), caller, model.CampaignInput{
		Title:          req.Title,
		Description:    req.Description,
		ImageReference: req.ImageReference,
		TargetAmount:   target,
		Beneficiary:    common.HexToAddress(req.Beneficiary),
		DurationInDays: req.DurationInDays,
	}, now)
	if err != nil {
		writeServiceError(w, r, "create campaign", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toCampaignResponse(c, now))
}

// Get は GET /api/campaigns/{id} を処理する
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Campaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toCampaignResponse(c, h.now()))
}

// Donations は GET /api/campaigns/{id}/donations を処理する
func (h *CampaignHandler) Donations(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Donations(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "list donations", err)
		return
	}
	out := make([]donationResponse, 0, len(list))
	for i := range list {
		out = append(out, h.toDonationResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string][]donationResponse{"donations": out})
}

// Donors は GET /api/campaigns/{id}/donors を処理する
func (h *CampaignHandler) Donors(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	donors, err := h.svc.Donors(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "list donors", err)
		return
	}
	out := make([]string, 0, len(donors))
	for _, d := range donors {
		out = append(out, d.Hex())
	}
	writeJSON(w, http.StatusOK, map[string][]string{"donors": out})
}

// DonorContribution は GET /api/campaigns/{id}/donors/{address} を処理する
func (h *CampaignHandler) DonorContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	donor, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	amount, err := h.svc.DonorContribution(r.Context(), id, donor)
	if err != nil {
		writeServiceError(w, r, "donor contribution", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"donor":          donor.Hex(),
		"amount":         amount.String(),
		"amount_display": units.Format(amount, h.decimals),
	})
}

// Progress は GET /api/campaigns/{id}/progress を処理する
func (h *CampaignHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Progress(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "progress", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"progress": p})
}

// Active は GET /api/campaigns/{id}/active を処理する
func (h *CampaignHandler) Active(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	active, err := h.svc.IsCampaignActive(r.Context(), id, h.now())
	if err != nil {
		writeServiceError(w, r, "campaign active", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

type donateRequest struct {
	Amount  string `json:"amount"`
	Message string `json:"message"`
}

// Donate は POST /api/campaigns/{id}/donations を処理する（認証必須）。
// The caller must have approved the custody address on the token first.
func (h *CampaignHandler) Donate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var req donateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := units.ParseInteger(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_amount")
		return
	}

	d, err := h.svc.Donate(r.Context(), caller, id, amount, req.Message, h.now())
	if err != nil {
		writeServiceError(w, r, "donate", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toDonationResponse(d))
}

// Release は POST /api/campaigns/{id}/release を処理する（作成者またはオーナー）
func (h *CampaignHandler) Release(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	rel, err := h.svc.ReleaseFunds(r.Context(), caller, id, h.now())
	if err != nil {
		writeServiceError(w, r, "release funds", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toReleaseResponse(rel))
}

// EmergencyWithdraw は POST /api/campaigns/{id}/emergency-withdraw を処理する（オーナーのみ）
func (h *CampaignHandler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	rel, err := h.svc.EmergencyWithdraw(r.Context(), caller, id, h.now())
	if err != nil {
		writeServiceError(w, r, "emergency withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toReleaseResponse(rel))
}

type extendRequest struct {
	AdditionalDays int64 `json:"additional_days"`
}

// Extend は POST /api/campaigns/{id}/extend を処理する
func (h *CampaignHandler) Extend(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var req extendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	now := h.now()
	c, err := h.svc.ExtendCampaign(r.Context(), caller, id, req.AdditionalDays, now)
	if err != nil {
		writeServiceError(w, r, "extend campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toCampaignResponse(c, now))
}

// Toggle は POST /api/campaigns/{id}/toggle を処理する
func (h *CampaignHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	now := h.now()
	c, err := h.svc.ToggleCampaignStatus(r.Context(), caller, id, now)
	if err != nil {
		writeServiceError(w, r, "toggle campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toCampaignResponse(c, now))
}

type statsResponse struct {
	TotalCampaigns        uint64 `json:"total_campaigns"`
	TotalRaised           string `json:"total_raised"`
	TotalRaisedDisplay    string `json:"total_raised_display"`
	ActiveCampaigns       uint64 `json:"active_campaigns"`
	TotalDonations        string `json:"total_donations"`
	TotalDonationsDisplay string `json:"total_donations_display"`
	Owner                 string `json:"owner"`
	Custody               string `json:"custody"`
}

// Stats は GET /api/stats を処理する
func (h *CampaignHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.svc.PlatformStats(r.Context(), h.now())
	writeJSON(w, http.StatusOK, statsResponse{
		TotalCampaigns:        s.TotalCampaigns,
		TotalRaised:           s.TotalRaised.String(),
		TotalRaisedDisplay:    units.Format(s.TotalRaised, h.decimals),
		ActiveCampaigns:       s.ActiveCampaigns,
		TotalDonations:        s.TotalDonations.String(),
		TotalDonationsDisplay: units.Format(s.TotalDonations, h.decimals),
		Owner:                 h.svc.Owner().Hex(),
		Custody:               h.svc.Custody().Hex(),
	})
}

// parseAmount accepts a base-10 amount in smallest units.
func parseAmount(s string) (*big.Int, bool) {
	v, ok := units.ParseInteger(s)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
