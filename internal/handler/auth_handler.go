package handler

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/givers/charity-ledger/pkg/auth"
)

const nonceTTL = 10 * time.Minute

// generateNonce は署名ログイン用のランダム nonce を生成する
func generateNonce() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

type pendingLogin struct {
	message string
	expires time.Time
}

// AuthHandler はウォレット署名によるログインの HTTP ハンドラ
type AuthHandler struct {
	sessionSecret []byte
	sessionTTL    time.Duration
	now           func() time.Time

	mu      sync.Mutex
	pending map[common.Address]pendingLogin
}

// NewAuthHandler は AuthHandler を生成する
func NewAuthHandler(sessionSecret []byte, sessionTTL time.Duration, now func() time.Time) *AuthHandler {
	if now == nil {
		now = time.Now
	}
	return &AuthHandler{
		sessionSecret: sessionSecret,
		sessionTTL:    sessionTTL,
		now:           now,
		pending:       make(map[common.Address]pendingLogin),
	}
}

type nonceRequest struct {
	Address string `json:"address"`
}

// Nonce は POST /api/auth/nonce を処理する。署名すべきメッセージを返す
func (h *AuthHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	var req nonceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid_address")
		return
	}
	addr := common.HexToAddress(req.Address)
	now := h.now()
	msg := auth.LoginMessage(addr, generateNonce(), now)

	h.mu.Lock()
	for a, p := range h.pending {
		if now.After(p.expires) {
			delete(h.pending, a)
		}
	}
	h.pending[addr] = pendingLogin{message: msg, expires: now.Add(nonceTTL)}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    msg,
		"expires_at": now.Add(nonceTTL),
	})
}

type verifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// Verify は POST /api/auth/verify を処理する。署名が正しければセッショントークンを発行する。
// A nonce is single-use whether or not verification succeeds.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid_address")
		return
	}
	addr := common.HexToAddress(req.Address)
	now := h.now()

	h.mu.Lock()
	p, ok := h.pending[addr]
	delete(h.pending, addr)
	h.mu.Unlock()

	if !ok || now.After(p.expires) {
		writeError(w, http.StatusUnauthorized, "invalid_nonce")
		return
	}
	if err := auth.VerifySignature(addr, p.message, req.Signature); err != nil {
		slog.Info("wallet login rejected", "address", addr.Hex(), "error", err)
		writeError(w, http.StatusUnauthorized, "invalid_signature")
		return
	}

	token, err := auth.CreateSessionToken(addr, h.sessionSecret, h.sessionTTL, now)
	if err != nil {
		writeServiceError(w, r, "create session", err)
		return
	}
	slog.Info("wallet login", "address", addr.Hex())
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"address":    addr.Hex(),
		"expires_at": now.Add(h.sessionTTL),
	})
}
