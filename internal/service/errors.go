package service

import "errors"

// Campaign ledger errors. Handlers match them with errors.Is; call sites wrap
// them with a short detail via fmt.Errorf("%w: ...").
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("campaign not found")
	ErrUnauthorized          = errors.New("not authorized")
	ErrInactiveCampaign      = errors.New("campaign is not active")
	ErrExpired               = errors.New("campaign has ended")
	ErrInvalidAmount         = errors.New("donation amount must be positive")
	ErrInsufficientFunds     = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotEnded              = errors.New("campaign not ended yet")
	ErrNothingToRelease      = errors.New("no funds to release")
	ErrAlreadyReleased       = errors.New("funds already released")
)
