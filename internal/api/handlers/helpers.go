// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string         `json:"error"`
	Code  licensing.Code `json:"code"`
}

var codeStatus = map[licensing.Code]int{
	licensing.CodeUnauthorized:          http.StatusUnauthorized,
	licensing.CodeInvalidRequest:        http.StatusBadRequest,
	licensing.CodeInvalidKey:            http.StatusNotFound,
	licensing.CodeNotClaimed:            http.StatusForbidden,
	licensing.CodeHWIDBanned:            http.StatusForbidden,
	licensing.CodeHWIDMismatch:          http.StatusForbidden,
	licensing.CodeExpired:               http.StatusForbidden,
	licensing.CodeKeyBanned:             http.StatusForbidden,
	licensing.CodeAlreadyClaimedByOther: http.StatusConflict,
	licensing.CodeAccountHasOtherKey:    http.StatusConflict,
	licensing.CodeInsufficientBalance:   http.StatusPaymentRequired,
	licensing.CodeGenerationFailed:      http.StatusInternalServerError,
	licensing.CodeNotFound:              http.StatusNotFound,
	licensing.CodeInternal:              http.StatusInternalServerError,
}

// StatusForCode maps an error code to its HTTP status.
func StatusForCode(code licensing.Code) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, err error) {
	domainErr := licensing.AsError(err)
	if domainErr.Code == licensing.CodeInternal {
		log.Error().Err(err).Msg("Request failed")
	}

	RespondJSON(w, StatusForCode(domainErr.Code), ErrorResponse{
		Error: domainErr.Message,
		Code:  domainErr.Code,
	})
}

func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return licensing.NewError(licensing.CodeInvalidRequest, "Invalid request body")
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, licensing.NewError(licensing.CodeInvalidRequest, "Invalid %s parameter", name)
	}
	return n, nil
}

// pathParam returns the decoded value of a route parameter. chi matches on
// RawPath when the request path carries escapes, so the captured segment is
// still escaped in that case.
func pathParam(r *http.Request, name string) string {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value
	}
	if decoded, err := url.PathUnescape(value); err == nil {
		return decoded
	}
	return value
}
