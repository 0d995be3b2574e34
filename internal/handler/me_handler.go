package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// MeHandler は現在の呼び出し元情報を返すハンドラ
type MeHandler struct {
	owner   common.Address
	custody common.Address
}

// NewMeHandler は MeHandler を生成する
func NewMeHandler(owner, custody common.Address) *MeHandler {
	return &MeHandler{owner: owner, custody: custody}
}

type meResponse struct {
	Address string `json:"address"`
	Role    string `json:"role,omitempty"`
}

// Me は GET /api/me を処理する（認証必須）
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	resp := meResponse{Address: caller.Hex()}
	switch caller {
	case h.owner:
		resp.Role = "owner"
	case h.custody:
		resp.Role = "custody"
	}
	writeJSON(w, http.StatusOK, resp)
}
