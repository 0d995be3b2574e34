package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/givers/charity-ledger/internal/model"
	"github.com/givers/charity-ledger/internal/service"
	"github.com/givers/charity-ledger/pkg/units"
)

const (
	defaultGlobalFeedLimit   = 10
	defaultCampaignFeedLimit = 20
	maxFeedLimit             = 50
)

// ActivityHandler handles activity feed endpoints.
type ActivityHandler struct {
	svc      service.ActivityService
	decimals uint8
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(svc service.ActivityService, decimals uint8) *ActivityHandler {
	return &ActivityHandler{svc: svc, decimals: decimals}
}

type activityResponse struct {
	Seq           int64      `json:"seq"`
	Type          string     `json:"type"`
	CampaignID    uint64     `json:"campaign_id"`
	CampaignTitle string     `json:"campaign_title"`
	Actor         string     `json:"actor,omitempty"`
	Amount        string     `json:"amount,omitempty"`
	AmountDisplay string     `json:"amount_display,omitempty"`
	Rate          *int       `json:"rate,omitempty"`
	Message       string     `json:"message,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (h *ActivityHandler) toResponses(items []*model.ActivityItem) []activityResponse {
	out := make([]activityResponse, 0, len(items))
	for _, it := range items {
		resp := activityResponse{
			Seq:           it.Seq,
			Type:          it.Type,
			CampaignID:    it.CampaignID,
			CampaignTitle: it.CampaignTitle,
			Rate:          it.Rate,
			Message:       it.Message,
			EndTime:       it.EndTime,
			CreatedAt:     it.CreatedAt,
		}
		if it.Actor != nil {
			resp.Actor = it.Actor.Hex()
		}
		if it.Amount != nil {
			resp.Amount = it.Amount.String()
			resp.AmountDisplay = units.Format(it.Amount, h.decimals)
		}
		out = append(out, resp)
	}
	return out
}

// feedLimit reads ?limit=N, falling back to def when absent or outside 1..50.
func feedLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxFeedLimit {
			return n
		}
	}
	return def
}

// GlobalFeed handles GET /api/activity?limit=N (no auth required).
func (h *ActivityHandler) GlobalFeed(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListGlobal(r.Context(), feedLimit(r, defaultGlobalFeedLimit))
	if err != nil {
		writeServiceError(w, r, "activity feed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": h.toResponses(items)})
}

// CampaignFeed handles GET /api/campaigns/{id}/activity (no auth required).
func (h *ActivityHandler) CampaignFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListByCampaign(r.Context(), id, feedLimit(r, defaultCampaignFeedLimit))
	if err != nil {
		writeServiceError(w, r, "campaign activity feed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": h.toResponses(items)})
}
