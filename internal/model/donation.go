package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Donation is a single contribution to a campaign. Never mutated once recorded.
type Donation struct {
	Donor     common.Address `json:"donor"`
	Amount    *big.Int       `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message,omitempty"`
}
