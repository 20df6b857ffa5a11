// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

// SecretHeader carries the shared admin secret on every API request.
const SecretHeader = "X-Admin-Secret"

// SecretVerifier is satisfied by auth.Service.
type SecretVerifier interface {
	Verify(presented string) error
}

// RequireSecret rejects requests whose admin secret does not match before any
// handler runs.
func RequireSecret(verifier SecretVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := verifier.Verify(r.Header.Get(SecretHeader)); err != nil {
				log.Warn().Str("remote_addr", r.RemoteAddr).Str("path", r.URL.Path).Msg("Rejected request with invalid admin secret")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": licensing.ErrUnauthorized.Message,
					"code":  string(licensing.CodeUnauthorized),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
