// Package token provides an in-memory ERC-20 style ledger used as the
// custody token in development and tests.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/givers/charity-ledger/internal/model"
)

var (
	ErrZeroAddress           = errors.New("token: zero address")
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrAllowanceBelowZero    = errors.New("token: decreased allowance below zero")
	ErrLengthMismatch        = errors.New("token: arrays length mismatch")
	ErrNotOwner              = errors.New("token: caller is not the owner")
	ErrNegativeAmount        = errors.New("token: negative amount")
)

// MaxUint256 is the "unlimited" allowance; TransferFrom never decrements it.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Recorder receives token transfer and approval records.
type Recorder interface {
	Record(ctx context.Context, ev *model.Event) error
}

// Config describes a token deployment.
type Config struct {
	Name          string
	Symbol        string
	Decimals      uint8
	Owner         common.Address
	InitialSupply *big.Int // smallest units, minted to Owner
}

// Memory is a mutex-guarded fungible token ledger.
type Memory struct {
	name     string
	symbol   string
	decimals uint8
	owner    common.Address
	rec      Recorder
	now      func() time.Time

	mu          sync.RWMutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

// NewMemory creates a token and mints the initial supply to the owner.
// rec may be nil. When the ledger is going to be restored from a journal,
// pass a zero InitialSupply so the genesis mint isn't applied twice.
func NewMemory(ctx context.Context, cfg Config, rec Recorder) (*Memory, error) {
	m := &Memory{
		name:        cfg.Name,
		symbol:      cfg.Symbol,
		decimals:    cfg.Decimals,
		owner:       cfg.Owner,
		rec:         rec,
		now:         time.Now,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
	if cfg.InitialSupply != nil && cfg.InitialSupply.Sign() > 0 {
		if err := m.Mint(ctx, cfg.Owner, cfg.Owner, cfg.InitialSupply); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Memory) Name() string { return m.name }
func (m *Memory) Symbol() string { return m.symbol }
func (m *Memory) Owner() common.Address { return m.owner }

func (m *Memory) Decimals(context.Context) (uint8, error) { return m.decimals, nil }

func (m *Memory) TotalSupply(context.Context) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.totalSupply)
}

func (m *Memory) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.balance(owner)), nil
}

func (m *Memory) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.allowance(owner, spender)), nil
}

// balance and allowance return zero for unknown keys. Callers hold mu.
func (m *Memory) balance(a common.Address) *big.Int {
	if b, ok := m.balances[a]; ok {
		return b
	}
	return new(big.Int)
}

func (m *Memory) allowance(owner, spender common.Address) *big.Int {
	if v, ok := m.allowances[owner][spender]; ok {
		return v
	}
	return new(big.Int)
}

func (m *Memory) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkTransfer(from, to, amount); err != nil {
		return err
	}
	m.move(from, to, amount)
	m.record(ctx, model.EventTokenTransfer, model.TokenTransfer{From: from, To: to, Value: new(big.Int).Set(amount)})
	return nil
}

// TransferFrom lets spender move amount from from to to within its allowance.
func (m *Memory) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	current := m.allowance(from, spender)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := m.checkTransfer(from, to, amount); err != nil {
		return err
	}
	if current.Cmp(MaxUint256) != 0 {
		m.setAllowance(from, spender, new(big.Int).Sub(current, amount))
		m.record(ctx, model.EventTokenApproval, model.TokenApproval{Owner: from, Spender: spender, Value: m.allowance(from, spender)})
	}
	m.move(from, to, amount)
	m.record(ctx, model.EventTokenTransfer, model.TokenTransfer{From: from, To: to, Value: new(big.Int).Set(amount)})
	return nil
}

func (m *Memory) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approve(ctx, owner, spender, amount)
}

func (m *Memory) IncreaseAllowance(ctx context.Context, owner, spender common.Address, added *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if added == nil || added.Sign() < 0 {
		return ErrNegativeAmount
	}
	return m.approve(ctx, owner, spender, new(big.Int).Add(m.allowance(owner, spender), added))
}

func (m *Memory) DecreaseAllowance(ctx context.Context, owner, spender common.Address, subtracted *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subtracted == nil || subtracted.Sign() < 0 {
		return ErrNegativeAmount
	}
	current := m.allowance(owner, spender)
	if current.Cmp(subtracted) < 0 {
		return ErrAllowanceBelowZero
	}
	return m.approve(ctx, owner, spender, new(big.Int).Sub(current, subtracted))
}

func (m *Memory) approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	m.setAllowance(owner, spender, new(big.Int).Set(amount))
	m.record(ctx, model.EventTokenApproval, model.TokenApproval{Owner: owner, Spender: spender, Value: new(big.Int).Set(amount)})
	return nil
}

// Mint creates amount new tokens for to. Only the token owner may mint.
func (m *Memory) Mint(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.owner {
		return ErrNotOwner
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: mint to the zero address", ErrZeroAddress)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	m.mint(to, amount)
	m.record(ctx, model.EventTokenTransfer, model.TokenTransfer{To: to, Value: new(big.Int).Set(amount)})
	return nil
}

// BatchTransfer sends amounts[i] to recipients[i]. Either every transfer
// applies or none does.
func (m *Memory) BatchTransfer(ctx context.Context, from common.Address, recipients []common.Address, amounts []*big.Int) error {
	if len(recipients) != len(amounts) {
		return ErrLengthMismatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	total := new(big.Int)
	for i, to := range recipients {
		if to == (common.Address{}) || from == (common.Address{}) {
			return fmt.Errorf("%w: transfer to the zero address", ErrZeroAddress)
		}
		if amounts[i] == nil || amounts[i].Sign() < 0 {
			return ErrNegativeAmount
		}
		total.Add(total, amounts[i])
	}
	if m.balance(from).Cmp(total) < 0 {
		return ErrInsufficientBalance
	}
	for i, to := range recipients {
		m.move(from, to, amounts[i])
		m.record(ctx, model.EventTokenTransfer, model.TokenTransfer{From: from, To: to, Value: new(big.Int).Set(amounts[i])})
	}
	return nil
}

func (m *Memory) checkTransfer(from, to common.Address, amount *big.Int) error {
	if from == (common.Address{}) {
		return fmt.Errorf("%w: transfer from the zero address", ErrZeroAddress)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to the zero address", ErrZeroAddress)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if m.balance(from).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (m *Memory) move(from, to common.Address, amount *big.Int) {
	m.balances[from] = new(big.Int).Sub(m.balance(from), amount)
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
}

func (m *Memory) mint(to common.Address, amount *big.Int) {
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
	m.totalSupply.Add(m.totalSupply, amount)
}

func (m *Memory) setAllowance(owner, spender common.Address, v *big.Int) {
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[common.Address]*big.Int)
	}
	m.allowances[owner][spender] = v
}

func (m *Memory) record(ctx context.Context, kind model.EventKind, payload any) {
	if m.rec == nil {
		return
	}
	ev, err := model.NewEvent(kind, 0, payload, m.now().UTC())
	if err == nil {
		err = m.rec.Record(ctx, ev)
	}
	if err != nil {
		slog.Error("token event not recorded", "kind", kind, "error", err)
	}
}

// Restore applies journaled transfers and approvals without re-recording them.
func (m *Memory) Restore(_ context.Context, events []*model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range events {
		switch ev.Kind {
		case model.EventTokenTransfer:
			var p model.TokenTransfer
			if err := ev.Decode(&p); err != nil {
				return err
			}
			if p.From == (common.Address{}) {
				m.mint(p.To, p.Value)
				continue
			}
			if m.balance(p.From).Cmp(p.Value) < 0 {
				return fmt.Errorf("restore seq %d: %w", ev.Seq, ErrInsufficientBalance)
			}
			m.move(p.From, p.To, p.Value)
		case model.EventTokenApproval:
			var p model.TokenApproval
			if err := ev.Decode(&p); err != nil {
				return err
			}
			m.setAllowance(p.Owner, p.Spender, p.Value)
		}
	}
	return nil
}
