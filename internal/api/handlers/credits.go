// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

type CreditsHandler struct {
	ops licensing.Operations
}

func NewCreditsHandler(ops licensing.Operations) *CreditsHandler {
	return &CreditsHandler{ops: ops}
}

type AdjustRequest struct {
	Action licensing.CreditAction `json:"action"`
	Amount int                    `json:"amount"`
}

// RedeemRequest may override the configured cost; zero keeps the default.
type RedeemRequest struct {
	Cost int `json:"cost,omitempty"`
}

func (h *CreditsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	result, err := h.ops.Balance(r.Context(), pathParam(r, "accountID"))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *CreditsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.ops.Adjust(r.Context(), pathParam(r, "accountID"), req.Action, req.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *CreditsHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.ops.Redeem(r.Context(), pathParam(r, "accountID"), req.Cost)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
