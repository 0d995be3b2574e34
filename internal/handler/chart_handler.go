package handler

import (
	"math/big"
	"net/http"
	"sort"

	"github.com/givers/charity-ledger/internal/model"
	"github.com/givers/charity-ledger/internal/service"
	"github.com/givers/charity-ledger/pkg/units"
)

const chartDayLayout = "2006-01-02"

// ChartHandler handles GET /api/campaigns/{id}/chart.
type ChartHandler struct {
	svc      service.CampaignService
	decimals uint8
}

// NewChartHandler creates a ChartHandler.
func NewChartHandler(svc service.CampaignService, decimals uint8) *ChartHandler {
	return &ChartHandler{svc: svc, decimals: decimals}
}

type chartPoint struct {
	Date              string `json:"date"`
	Amount            string `json:"amount"`
	AmountDisplay     string `json:"amount_display"`
	Cumulative        string `json:"cumulative"`
	CumulativeDisplay string `json:"cumulative_display"`
	Donations         int    `json:"donations"`
}

type chartResponse struct {
	CampaignID          uint64       `json:"campaign_id"`
	TargetAmount        string       `json:"target_amount"`
	TargetAmountDisplay string       `json:"target_amount_display"`
	Chart               []chartPoint `json:"chart"`
}

// Chart handles GET /api/campaigns/{id}/chart. One point per UTC day that has
// donations, oldest first; Cumulative is the running total.
func (h *ChartHandler) Chart(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Campaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "chart campaign", err)
		return
	}
	donations, err := h.svc.Donations(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "chart donations", err)
		return
	}

	writeJSON(w, http.StatusOK, chartResponse{
		CampaignID:          c.ID,
		TargetAmount:        c.TargetAmount.String(),
		TargetAmountDisplay: units.Format(c.TargetAmount, h.decimals),
		Chart:               h.dailySeries(donations),
	})
}

// dailySeries buckets donations by UTC day after sorting a copy by timestamp.
func (h *ChartHandler) dailySeries(in []model.Donation) []chartPoint {
	donations := make([]model.Donation, len(in))
	copy(donations, in)
	sort.SliceStable(donations, func(i, j int) bool {
		return donations[i].Timestamp.Before(donations[j].Timestamp)
	})
	points := make([]chartPoint, 0)
	cumulative := new(big.Int)
	var (
		day   string
		sum   *big.Int
		count int
	)
	flush := func() {
		if sum == nil {
			return
		}
		cumulative.Add(cumulative, sum)
		points = append(points, chartPoint{
			Date:              day,
			Amount:            sum.String(),
			AmountDisplay:     units.Format(sum, h.decimals),
			Cumulative:        cumulative.String(),
			CumulativeDisplay: units.Format(cumulative, h.decimals),
			Donations:         count,
		})
	}
	for _, d := range donations {
		key := d.Timestamp.UTC().Format(chartDayLayout)
		if key != day {
			flush()
			day, sum, count = key, new(big.Int), 0
		}
		sum.Add(sum, d.Amount)
		count++
	}
	flush()
	return points
}
