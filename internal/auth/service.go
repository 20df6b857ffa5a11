// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidSecret = errors.New("invalid admin secret")
	ErrNoSecret      = errors.New("admin secret is not configured")
)

// Service checks the shared admin secret presented by callers. The
// configured value is either the secret itself or an Argon2id hash of it.
type Service struct {
	plain  []byte
	hashed string

	// digest of the last secret that matched hashed
	verified atomic.Pointer[[sha256.Size]byte]
}

func NewService(configured string) (*Service, error) {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return nil, ErrNoSecret
	}

	if IsHash(configured) {
		if _, _, _, err := decodeHash(configured); err != nil {
			return nil, err
		}
		return &Service{hashed: configured}, nil
	}

	sum := sha256.Sum256([]byte(configured))
	return &Service{plain: sum[:]}, nil
}

// Verify returns ErrInvalidSecret unless presented matches the configured
// secret. Plain secrets are compared as digests so the comparison does not
// leak their length.
func (s *Service) Verify(presented string) error {
	if presented == "" {
		return ErrInvalidSecret
	}

	sum := sha256.Sum256([]byte(presented))

	if s.hashed != "" {
		if last := s.verified.Load(); last != nil && subtle.ConstantTimeCompare(last[:], sum[:]) == 1 {
			return nil
		}

		ok, err := verifyHash(presented, s.hashed)
		if err != nil {
			log.Error().Err(err).Msg("Failed to verify admin secret hash")
			return ErrInvalidSecret
		}
		if !ok {
			return ErrInvalidSecret
		}
		s.verified.Store(&sum)
		return nil
	}

	if subtle.ConstantTimeCompare(s.plain, sum[:]) != 1 {
		return ErrInvalidSecret
	}
	return nil
}
