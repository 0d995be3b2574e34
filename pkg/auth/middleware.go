package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey string

const callerKey contextKey = "caller"

// DevCallerHeader carries the caller address when auth is not required.
const DevCallerHeader = "X-Caller-Address"

// CallerFromContext は context から呼び出し元アドレスを取得する
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	v, ok := ctx.Value(callerKey).(common.Address)
	return v, ok && v != (common.Address{})
}

// WithCaller は context に呼び出し元アドレスをセットする
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey, addr)
}

func unauthorized(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// RequireAuth は認証必須ミドルウェア。Bearer トークンを検証し、アドレスを context にセットする
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "unauthorized")
				return
			}
			addr, err := VerifySessionToken(token, secret)
			if err != nil {
				unauthorized(w, "invalid_session")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}

// DevCaller は開発用のダミー呼び出し元（AUTH_REQUIRED=false でヘッダーがない時に使用）。
// It must never be configured as the platform owner or custody.
var DevCaller = common.HexToAddress("0x0000000000000000000000000000000000000dE1")

// DevAuth は開発用ミドルウェア。X-Caller-Address ヘッダー、なければ DevCaller を呼び出し元にする
func DevAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := DevCaller
		if h := r.Header.Get(DevCallerHeader); h != "" {
			if !common.IsHexAddress(h) {
				unauthorized(w, "invalid_caller")
				return
			}
			addr = common.HexToAddress(h)
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
	})
}
