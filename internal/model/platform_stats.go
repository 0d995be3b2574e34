package model

import "math/big"

// PlatformStats aggregates ledger-wide numbers for reporting.
type PlatformStats struct {
	TotalCampaigns  uint64   `json:"total_campaigns"`
	TotalRaised     *big.Int `json:"total_raised"`
	ActiveCampaigns uint64   `json:"active_campaigns"`
	TotalDonations  *big.Int `json:"total_donations"`
}
