package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/givers/charity-ledger/internal/model"
	"github.com/givers/charity-ledger/internal/service"
	"github.com/givers/charity-ledger/pkg/auth"
)

// ---------------------------------------------------------------------------
// mockCampaignService — CampaignService のモック
// ---------------------------------------------------------------------------

type mockCampaignService struct {
	createFunc            func(ctx context.Context, caller common.Address, in model.CampaignInput, now time.Time) (*model.Campaign, error)
	donateFunc            func(ctx context.Context, donor common.Address, id uint64, amount *big.Int, message string, now time.Time) (*model.Donation, error)
	releaseFunc           func(ctx context.Context, caller common.Address, id uint64, now time.Time) (*model.Release, error)
	emergencyWithdrawFunc func(ctx context.Context, caller common.Address, id uint64, now time.Time) (*model.Release, error)
	extendFunc            func(ctx context.Context, caller common.Address, id uint64, days int64, now time.Time) (*model.Campaign, error)
	toggleFunc            func(ctx context.Context, caller common.Address, id uint64, now time.Time) (*model.Campaign, error)
	campaignFunc          func(ctx context.Context, id uint64) (*model.Campaign, error)
	donationsFunc         func(ctx context.Context, id uint64) ([]model.Donation, error)
	donorsFunc            func(ctx context.Context, id uint64) ([]common.Address, error)
	contributionFunc      func(ctx context.Context, id uint64, donor common.Address) (*big.Int, error)
	isActiveFunc          func(ctx context.Context, id uint64, now time.Time) (bool, error)
	progressFunc          func(ctx context.Context, id uint64) (uint64, error)
	statsFunc             func(ctx context.Context, now time.Time) *model.PlatformStats
	count                 uint64
}

func (m *mockCampaignService) Create(ctx context.Context, caller common.Address, in model.CampaignInput, now time.Time) (*model.Campaign, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, caller, in, now)
	}
	return sampleCampaign(), nil
}

func (m *mockCampaignService) Donate(ctx context.Context, donor common.Address, id uint64, amount *big.Int, message string, now time.Time) (*model.Donation, error) {
	if m.donateFunc != nil {
		return m.donateFunc(ctx, donor, id, amount, message, now)
	}
	return &model.Donation{Donor: donor, Amount: amount, Timestamp: now, Message: message}, nil
}

func (m *mockCampaignService) ReleaseFunds(ctx context.Context, caller common.Address, id uint64, now time.Time) (*model.Release, error) {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, caller, id, now)
	}
	return &model.Release{CampaignID: id, Recipient: testBeneficiary, Amount: big.NewInt(1)}, nil
}

func (m *mockCampaignService) EmergencyWithdraw(ctx context.Context, caller common.Address, id uint64, now time.Time) (*model.Release, error) {
	if m.emergencyWithdrawFunc != nil {
		return m.emergencyWithdrawFunc(ctx, caller, id, now)
	}
	return &model.Release{CampaignID: id, Recipient: testOwner, Amount: big.NewInt(1), Emergency: true}, nil
}

func (m *mockCampaignService) ExtendCampaign(ctx context.Context, caller common.Address, id uint64, days int64, now time.Time) (*model.Campaign, error) {
	if m.extendFunc != nil {
		return m.extendFunc(ctx, caller, id, days, now)
	}
	return sampleCampaign(), nil
}

func (m *mockCampaignService) ToggleCampaignStatus(ctx context.Context, caller common.Address, id uint64, now time.Time) (*model.Campaign, error) {
	if m.toggleFunc != nil {
		return m.toggleFunc(ctx, caller, id, now)
	}
	return sampleCampaign(), nil
}

func (m *mockCampaignService) Campaign(ctx context.Context, id uint64) (*model.Campaign, error) {
	if m.campaignFunc != nil {
		return m.campaignFunc(ctx, id)
	}
	return sampleCampaign(), nil
}

func (m *mockCampaignService) Donations(ctx context.Context, id uint64) ([]model.Donation, error) {
	if m.donationsFunc != nil {
		return m.donationsFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockCampaignService) Donors(ctx context.Context, id uint64) ([]common.Address, error) {
	if m.donorsFunc != nil {
		return m.donorsFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockCampaignService) DonorContribution(ctx context.Context, id uint64, donor common.Address) (*big.Int, error) {
	if m.contributionFunc != nil {
		return m.contributionFunc(ctx, id, donor)
	}
	return new(big.Int), nil
}

func (m *mockCampaignService) CampaignCount(context.Context) uint64 { return m.count }

func (m *mockCampaignService) IsCampaignActive(ctx context.Context, id uint64, now time.Time) (bool, error) {
	if m.isActiveFunc != nil {
		return m.isActiveFunc(ctx, id, now)
	}
	return true, nil
}

func (m *mockCampaignService) Progress(ctx context.Context, id uint64) (uint64, error) {
	if m.progressFunc != nil {
		return m.progressFunc(ctx, id)
	}
	return 0, nil
}

func (m *mockCampaignService) PlatformStats(ctx context.Context, now time.Time) *model.PlatformStats {
	if m.statsFunc != nil {
		return m.statsFunc(ctx, now)
	}
	return &model.PlatformStats{TotalRaised: new(big.Int), TotalDonations: new(big.Int)}
}

func (m *mockCampaignService) Owner() common.Address   { return testOwner }
func (m *mockCampaignService) Custody() common.Address { return testCustody }

func (m *mockCampaignService) Restore(context.Context, []*model.Event) error { return nil }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

var (
	testOwner       = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testCustody     = common.HexToAddress("0x98340893fA616C7D9624652Cbc83977962D0F617")
	testCreator     = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testBeneficiary = common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65")
	testNow         = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
)

func sampleCampaign() *model.Campaign {
	return &model.Campaign{
		ID:           1,
		Creator:      testCreator,
		Title:        "Clean water",
		Description:  "Wells",
		TargetAmount: new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
		RaisedAmount: new(big.Int).Mul(big.NewInt(250), big.NewInt(1e18)),
		Beneficiary:  testBeneficiary,
		StartTime:    testNow.Add(-24 * time.Hour),
		EndTime:      testNow.Add(9 * 24 * time.Hour),
		IsActive:     true,
		DonorCount:   2,
	}
}

func newCampaignMux(svc service.CampaignService) *http.ServeMux {
	h := NewCampaignHandler(svc, 18, func() time.Time { return testNow })
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/campaigns/count", h.Count)
	mux.HandleFunc("POST /api/campaigns", h.Create)
	mux.HandleFunc("GET /api/campaigns/{id}", h.Get)
	mux.HandleFunc("GET /api/campaigns/{id}/donations", h.Donations)
	mux.HandleFunc("GET /api/campaigns/{id}/donors", h.Donors)
	mux.HandleFunc("GET /api/campaigns/{id}/donors/{address}", h.DonorContribution)
	mux.HandleFunc("GET /api/campaigns/{id}/progress", h.Progress)
	mux.HandleFunc("GET /api/campaigns/{id}/active", h.Active)
	mux.HandleFunc("POST /api/campaigns/{id}/donations", h.Donate)
	mux.HandleFunc("POST /api/campaigns/{id}/release", h.Release)
	mux.HandleFunc("POST /api/campaigns/{id}/emergency-withdraw", h.EmergencyWithdraw)
	mux.HandleFunc("POST /api/campaigns/{id}/extend", h.Extend)
	mux.HandleFunc("POST /api/campaigns/{id}/toggle", h.Toggle)
	mux.HandleFunc("GET /api/stats", h.Stats)
	return mux
}

func doRequest(mux http.Handler, method, path, body string, caller *common.Address) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if caller != nil {
		req = req.WithContext(auth.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

// ---------------------------------------------------------------------------
// GET endpoints
// ---------------------------------------------------------------------------

func TestCampaignHandler_Get_Success(t *testing.T) {
	mux := newCampaignMux(&mockCampaignService{})
	rec := doRequest(mux, "GET", "/api/campaigns/1", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", rec.Code, rec.Body.String())
	}
	var resp campaignResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RaisedAmount != "250000000000000000000" || resp.RaisedAmountDisplay != "250" {
		t.Errorf("unexpected raised amount %q / %q", resp.RaisedAmount, resp.RaisedAmountDisplay)
	}
	if resp.Progress != 25 {
		t.Errorf("expected progress 25, got %d", resp.Progress)
	}
	if !resp.AcceptingDonations {
		t.Error("expected accepting_donations=true")
	}
	if resp.Creator != testCreator.Hex() {
		t.Errorf("expected creator %s, got %s", testCreator.Hex(), resp.Creator)
	}
}

func TestCampaignHandler_Get_NotFound(t *testing.T) {
	mock := &mockCampaignService{
		campaignFunc: func(ctx context.Context, id uint64) (*model.Campaign, error) {
			return nil, fmt.Errorf("%w: id %d", service.ErrNotFound, id)
		},
	}
	rec := doRequest(newCampaignMux(mock), "GET", "/api/campaigns/7", "", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "not_found" {
		t.Errorf("expected not_found, got %q", code)
	}
}

func TestCampaignHandler_Get_InvalidID(t *testing.T) {
	rec := doRequest(newCampaignMux(&mockCampaignService{}), "GET", "/api/campaigns/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCampaignHandler_Count(t *testing.T) {
	rec := doRequest(newCampaignMux(&mockCampaignService{count: 4}), "GET", "/api/campaigns/count", "", nil)
	var body map[string]uint64
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusOK || body["count"] != 4 {
		t.Errorf("expected 200 count=4, got %d %v", rec.Code, body)
	}
}

func TestCampaignHandler_Donations_EmptyArray(t *testing.T) {
	rec := doRequest(newCampaignMux(&mockCampaignService{}), "GET", "/api/campaigns/1/donations", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"donations":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestCampaignHandler_Donors(t *testing.T) {
	mock := &mockCampaignService{
		donorsFunc: func(ctx context.Context, id uint64) ([]common.Address, error) {
			return []common.Address{testCreator, testBeneficiary}, nil
		},
	}
	rec := doRequest(newCampaignMux(mock), "GET", "/api/campaigns/1/donors", "", nil)
	var body map[string][]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if len(body["donors"]) != 2 || body["donors"][0] != testCreator.Hex() {
		t.Errorf("unexpected donors %v", body)
	}
}

func TestCampaignHandler_DonorContribution(t *testing.T) {
	var gotDonor common.Address
	mock := &mockCampaignService{
		contributionFunc: func(ctx context.Context, id uint64, donor common.Address) (*big.Int, error) {
			gotDonor = donor
			return big.NewInt(1500000000000000000), nil
		},
	}
	path := "/api/campaigns/1/donors/" + strings.ToLower(testCreator.Hex())
	rec := doRequest(newCampaignMux(mock), "GET", path, "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotDonor != testCreator {
		t.Errorf("expected donor %s, got %s", testCreator.Hex(), gotDonor.Hex())
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["amount_display"] != "1.5" {
		t.Errorf("expected display 1.5, got %q", body["amount_display"])
	}

	rec = doRequest(newCampaignMux(mock), "GET", "/api/campaigns/1/donors/nobody", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad address, got %d", rec.Code)
	}
}

func TestCampaignHandler_Active_UsesClock(t *testing.T) {
	var gotNow time.Time
	mock := &mockCampaignService{
		isActiveFunc: func(ctx context.Context, id uint64, now time.Time) (bool, error) {
			gotNow = now
			return false, nil
		},
	}
	rec := doRequest(newCampaignMux(mock), "GET", "/api/campaigns/1/active", "", nil)
	if !strings.Contains(rec.Body.String(), `"active":false`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if !gotNow.Equal(testNow) {
		t.Errorf("expected injected clock %v, got %v", testNow, gotNow)
	}
}

func TestCampaignHandler_Stats(t *testing.T) {
	mock := &mockCampaignService{
		statsFunc: func(ctx context.Context, now time.Time) *model.PlatformStats {
			return &model.PlatformStats{
				TotalCampaigns:  3,
				TotalRaised:     big.NewInt(2e18),
				ActiveCampaigns: 1,
				TotalDonations:  big.NewInt(2e18),
			}
		},
	}
	rec := doRequest(newCampaignMux(mock), "GET", "/api/stats", "", nil)
	var resp statsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalCampaigns != 3 || resp.ActiveCampaigns != 1 || resp.TotalRaisedDisplay != "2" {
		t.Errorf("unexpected stats %+v", resp)
	}
	if resp.Custody != testCustody.Hex() {
		t.Errorf("expected custody %s, got %s", testCustody.Hex(), resp.Custody)
	}
}

// ---------------------------------------------------------------------------
// POST endpoints
// ---------------------------------------------------------------------------

func TestCampaignHandler_Create_Success(t *testing.T) {
	var got model.CampaignInput
	var gotCaller common.Address
	mock := &mockCampaignService{
		createFunc: func(ctx context.Context, caller common.Address, in model.CampaignInput, now time.Time) (*model.Campaign, error) {
			got, gotCaller = in, caller
			return sampleCampaign(), nil
		},
	}
	body := fmt.Sprintf(`{"title":"Clean water","description":"Wells","target_amount":"1000","beneficiary":%q,"duration_in_days":10}`, testBeneficiary.Hex())
	rec := doRequest(newCampaignMux(mock), "POST", "/api/campaigns", body, &testCreator)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d — body: %s", rec.Code, rec.Body.String())
	}
	if gotCaller != testCreator {
		t.Errorf("expected caller %s, got %s", testCreator.Hex(), gotCaller.Hex())
	}
	if got.TargetAmount.Int64() != 1000 || got.DurationInDays != 10 || got.Beneficiary != testBeneficiary {
		t.Errorf("unexpected input %+v", got)
	}
}

func TestCampaignHandler_Create_Unauthenticated(t *testing.T) {
	rec := doRequest(newCampaignMux(&mockCampaignService{}), "POST", "/api/campaigns", `{}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestCampaignHandler_Create_BadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"unknown field", `{"title":"x","owner":"me"}`},
		{"bad amount", `{"title":"x","target_amount":"1.5","beneficiary":"0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"}`},
		{"bad beneficiary", `{"title":"x","target_amount":"10","beneficiary":"bob"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(newCampaignMux(&mockCampaignService{}), "POST", "/api/campaigns", tt.body, &testCreator)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestCampaignHandler_Donate(t *testing.T) {
	var gotAmount *big.Int
	var gotMessage string
	mock := &mockCampaignService{
		donateFunc: func(ctx context.Context, donor common.Address, id uint64, amount *big.Int, message string, now time.Time) (*model.Donation, error) {
			gotAmount, gotMessage = amount, message
			return &model.Donation{Donor: donor, Amount: amount, Timestamp: now, Message: message}, nil
		},
	}
	rec := doRequest(newCampaignMux(mock), "POST", "/api/campaigns/1/donations",
		`{"amount":"100000000000000000000","message":"x"}`, &testCreator)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d — body: %s", rec.Code, rec.Body.String())
	}
	if gotAmount.String() != "100000000000000000000" || gotMessage != "x" {
		t.Errorf("unexpected donate args %s %q", gotAmount, gotMessage)
	}
	var resp donationResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.AmountDisplay != "100" {
		t.Errorf("expected display 100, got %q", resp.AmountDisplay)
	}
}

func TestCampaignHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{service.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{fmt.Errorf("%w: title cannot be empty", service.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("%w to release funds", service.ErrUnauthorized), http.StatusForbidden, "unauthorized"},
		{fmt.Errorf("%w: id 9", service.ErrNotFound), http.StatusNotFound, "not_found"},
		{service.ErrInactiveCampaign, http.StatusConflict, "inactive_campaign"},
		{service.ErrExpired, http.StatusConflict, "expired"},
		{service.ErrNotEnded, http.StatusConflict, "not_ended"},
		{service.ErrNothingToRelease, http.StatusConflict, "nothing_to_release"},
		{service.ErrAlreadyReleased, http.StatusConflict, "already_released"},
		{service.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
		{service.ErrInsufficientAllowance, http.StatusPaymentRequired, "insufficient_allowance"},
		{fmt.Errorf("token transfer: %w", fmt.Errorf("boom")), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			mock := &mockCampaignService{
				releaseFunc: func(ctx context.Context, caller common.Address, id uint64, now time.Time) (*model.Release, error) {
					return nil, tt.err
				},
			}
			rec := doRequest(newCampaignMux(mock), "POST", "/api/campaigns/1/release", "", &testCreator)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("expected %q, got %q", tt.wantCode, code)
			}
		})
	}
}

func TestCampaignHandler_Release(t *testing.T) {
	var gotID uint64
	var gotNow time.Time
	mock := &mockCampaignService{
		releaseFunc: func(ctx context.Context, caller common.Address, id uint64, now time.Time) (*model.Release, error) {
			gotID, gotNow = id, now
			return &model.Release{CampaignID: id, Recipient: testBeneficiary, Amount: big.NewInt(5e17)}, nil
		},
	}
	rec := doRequest(newCampaignMux(mock), "POST", "/api/campaigns/12/release", "", &testCreator)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != 12 || !gotNow.Equal(testNow) {
		t.Errorf("unexpected args id=%d now=%v", gotID, gotNow)
	}
	var resp releaseResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.AmountDisplay != "0.5" || resp.Recipient != testBeneficiary.Hex() {
		t.Errorf("unexpected release %+v", resp)
	}
}

func TestCampaignHandler_EmergencyWithdraw(t *testing.T) {
	rec := doRequest(newCampaignMux(&mockCampaignService{}), "POST", "/api/campaigns/1/emergency-withdraw", "", &testOwner)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp releaseResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Emergency {
		t.Error("expected emergency=true")
	}
}

func TestCampaignHandler_Extend(t *testing.T) {
	var gotDays int64
	mock := &mockCampaignService{
		extendFunc: func(ctx context.Context, caller common.Address, id uint64, days int64, now time.Time) (*model.Campaign, error) {
			gotDays = days
			return sampleCampaign(), nil
		},
	}
	rec := doRequest(newCampaignMux(mock), "POST", "/api/campaigns/1/extend", `{"additional_days":7}`, &testCreator)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotDays != 7 {
		t.Errorf("expected 7 days, got %d", gotDays)
	}
}

func TestCampaignHandler_Toggle_Unauthenticated(t *testing.T) {
	rec := doRequest(newCampaignMux(&mockCampaignService{}), "POST", "/api/campaigns/1/toggle", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
