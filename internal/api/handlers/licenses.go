// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

type LicensesHandler struct {
	ops licensing.Operations
}

func NewLicensesHandler(ops licensing.Operations) *LicensesHandler {
	return &LicensesHandler{ops: ops}
}

// ClaimRequest binds a key to an account.
type ClaimRequest struct {
	Key       string `json:"key"`
	AccountID string `json:"discord_id"`
}

// BatchRequest names the keys for reset, recover, delete and ban.
type BatchRequest struct {
	Keys   []string `json:"keys"`
	Reason string   `json:"reason,omitempty"`
}

type BanAccountRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *LicensesHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req licensing.GenerateRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.ops.Generate(r.Context(), req)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *LicensesHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.ops.Claim(r.Context(), req.Key, req.AccountID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Verify answers 200 when the key is accepted and 403 for every domain
// rejection, always with a VerifyResult body.
func (h *LicensesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req licensing.VerifyRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	req.IPAddress = clientIP(r)

	result, err := h.ops.Verify(r.Context(), req)
	if err != nil {
		RespondError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusForbidden
	}
	RespondJSON(w, status, result)
}

func (h *LicensesHandler) List(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.ops.List(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, licenses)
}

func (h *LicensesHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.ops.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *LicensesHandler) Info(w http.ResponseWriter, r *http.Request) {
	license, err := h.ops.Info(r.Context(), pathParam(r, "keyCode"))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, license)
}

func (h *LicensesHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.ops.ListByAccount(r.Context(), pathParam(r, "accountID"))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, licenses)
}

func (h *LicensesHandler) BanAccount(w http.ResponseWriter, r *http.Request) {
	var req BanAccountRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.ops.BanAccount(r.Context(), pathParam(r, "accountID"), req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}

	log.Info().Str("account", result.AccountID).Int("keys", result.KeysRevoked).Msg("Account banned via API")
	RespondJSON(w, http.StatusOK, result)
}

func (h *LicensesHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, func(req BatchRequest) (*licensing.BatchResult, error) {
		return h.ops.Reset(r.Context(), req.Keys)
	})
}

func (h *LicensesHandler) Recover(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, func(req BatchRequest) (*licensing.BatchResult, error) {
		return h.ops.Recover(r.Context(), req.Keys)
	})
}

func (h *LicensesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, func(req BatchRequest) (*licensing.BatchResult, error) {
		return h.ops.Delete(r.Context(), req.Keys)
	})
}

func (h *LicensesHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, func(req BatchRequest) (*licensing.BatchResult, error) {
		return h.ops.Ban(r.Context(), req.Keys, req.Reason)
	})
}

func (h *LicensesHandler) batch(w http.ResponseWriter, r *http.Request, apply func(BatchRequest) (*licensing.BatchResult, error)) {
	var req BatchRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := apply(req)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *LicensesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ops.Stats(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, stats)
}

// clientIP strips the port from RemoteAddr, which RealIP has already
// rewritten when the request came through a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
