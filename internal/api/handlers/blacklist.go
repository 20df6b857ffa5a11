// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

type BlacklistHandler struct {
	ops licensing.Operations
}

func NewBlacklistHandler(ops licensing.Operations) *BlacklistHandler {
	return &BlacklistHandler{ops: ops}
}

type BlacklistRequest struct {
	HWID   string `json:"hwid"`
	Reason string `json:"reason,omitempty"`
}

func (h *BlacklistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ops.Blacklist(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, entries)
}

func (h *BlacklistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req BlacklistRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.ops.BlacklistAdd(r.Context(), req.HWID, req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}

	status := http.StatusOK
	if result.Changed {
		status = http.StatusCreated
	}
	RespondJSON(w, status, result)
}

func (h *BlacklistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	result, err := h.ops.BlacklistRemove(r.Context(), pathParam(r, "hwid"))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
