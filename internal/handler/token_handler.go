package handler

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/givers/charity-ledger/pkg/units"
)

// TokenLedger is the dev token surface exposed over HTTP.
type TokenLedger interface {
	Name() string
	Symbol() string
	Owner() common.Address
	Decimals(ctx context.Context) (uint8, error)
	TotalSupply(ctx context.Context) *big.Int
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	BatchTransfer(ctx context.Context, from common.Address, recipients []common.Address, amounts []*big.Int) error
	Mint(ctx context.Context, caller, to common.Address, amount *big.Int) error
}

// TokenHandler はトークンの HTTP ハンドラ
type TokenHandler struct {
	token   TokenLedger
	custody common.Address
}

// NewTokenHandler は TokenHandler を生成する。
// custody is the ledger's holding address; it can never send or approve from here.
func NewTokenHandler(token TokenLedger, custody common.Address) *TokenHandler {
	return &TokenHandler{token: token, custody: custody}
}

// requireSender is requireCaller for routes that spend the caller's balance.
// Custody funds leave only through release or emergency withdraw.
func (h *TokenHandler) requireSender(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return caller, false
	}
	if caller == h.custody {
		writeError(w, http.StatusForbidden, "unauthorized")
		return caller, false
	}
	return caller, true
}

func (h *TokenHandler) amountBody(ctx context.Context, v *big.Int) map[string]string {
	d, _ := h.token.Decimals(ctx)
	return map[string]string{
		"amount":         v.String(),
		"amount_display": units.Format(v, d),
	}
}

type tokenInfoResponse struct {
	Name               string `json:"name"`
	Symbol             string `json:"symbol"`
	Decimals           uint8  `json:"decimals"`
	TotalSupply        string `json:"total_supply"`
	TotalSupplyDisplay string `json:"total_supply_display"`
	Owner              string `json:"owner"`
}

// Info は GET /api/token を処理する
func (h *TokenHandler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.token.Decimals(ctx)
	if err != nil {
		writeServiceError(w, r, "token decimals", err)
		return
	}
	supply := h.token.TotalSupply(ctx)
	writeJSON(w, http.StatusOK, tokenInfoResponse{
		Name:               h.token.Name(),
		Symbol:             h.token.Symbol(),
		Decimals:           d,
		TotalSupply:        supply.String(),
		TotalSupplyDisplay: units.Format(supply, d),
		Owner:              h.token.Owner().Hex(),
	})
}

// Balance は GET /api/token/balances/{address} を処理する
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	bal, err := h.token.BalanceOf(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, "balance", err)
		return
	}
	body := h.amountBody(r.Context(), bal)
	body["address"] = addr.Hex()
	writeJSON(w, http.StatusOK, body)
}

// Allowance は GET /api/token/allowances/{owner}/{spender} を処理する
func (h *TokenHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := pathAddress(w, r, "spender")
	if !ok {
		return
	}
	v, err := h.token.Allowance(r.Context(), owner, spender)
	if err != nil {
		writeServiceError(w, r, "allowance", err)
		return
	}
	body := h.amountBody(r.Context(), v)
	body["owner"] = owner.Hex()
	body["spender"] = spender.Hex()
	writeJSON(w, http.StatusOK, body)
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// Approve は POST /api/token/approve を処理する（認証必須）
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireSender(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || !common.IsHexAddress(req.Spender) {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if err := h.token.Approve(r.Context(), caller, common.HexToAddress(req.Spender), amount); err != nil {
		writeServiceError(w, r, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Transfer は POST /api/token/transfer を処理する（認証必須）
func (h *TokenHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireSender(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if err := h.token.Transfer(r.Context(), caller, common.HexToAddress(req.To), amount); err != nil {
		writeServiceError(w, r, "transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type batchTransferRequest struct {
	Recipients []string `json:"recipients"`
	Amounts    []string `json:"amounts"`
}

// BatchTransfer は POST /api/token/batch-transfer を処理する（認証必須・全件成功または全件失敗）
func (h *TokenHandler) BatchTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireSender(w, r)
	if !ok {
		return
	}
	var req batchTransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	recipients := make([]common.Address, 0, len(req.Recipients))
	for _, s := range req.Recipients {
		if !common.IsHexAddress(s) {
			writeError(w, http.StatusBadRequest, "invalid_input")
			return
		}
		recipients = append(recipients, common.HexToAddress(s))
	}
	amounts := make([]*big.Int, 0, len(req.Amounts))
	for _, s := range req.Amounts {
		v, ok := parseAmount(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_input")
			return
		}
		amounts = append(amounts, v)
	}
	if err := h.token.BatchTransfer(r.Context(), caller, recipients, amounts); err != nil {
		writeServiceError(w, r, "batch transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"transfers": len(recipients)})
}

// Mint は POST /api/token/mint を処理する（トークンオーナーのみ）
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if err := h.token.Mint(r.Context(), caller, common.HexToAddress(req.To), amount); err != nil {
		writeServiceError(w, r, "mint", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
