package service

import (
	"math/big"
)

// milestoneThresholds are funding rates (percent of target) announced once
// per campaign. Checked high→low.
var milestoneThresholds = []int{100, 50}

// crossedMilestones returns the thresholds a donation moved raised across,
// i.e. rate(before) < threshold <= rate(after). raised only grows, so each
// threshold is crossed at most once in a campaign's life.
func crossedMilestones(before, after, target *big.Int) []int {
	if target == nil || target.Sign() <= 0 {
		return nil
	}
	from, to := fundingRate(before, target), fundingRate(after, target)
	var out []int
	for _, threshold := range milestoneThresholds {
		if from < int64(threshold) && to >= int64(threshold) {
			out = append(out, threshold)
		}
	}
	return out
}

// fundingRate is floor(raised*100/target), not capped at 100.
func fundingRate(raised, target *big.Int) int64 {
	r := new(big.Int).Mul(raised, big.NewInt(100))
	r.Quo(r, target)
	if !r.IsInt64() {
		return 1<<63 - 1
	}
	return r.Int64()
}
