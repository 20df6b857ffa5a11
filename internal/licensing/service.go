// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/database"
)

const (
	DefaultKeyPrefix  = "PILLOW-PLAYER"
	DefaultRedeemCost = 20

	maxGenerateCount = 1000
	keyRandomBytes   = 6
)

// KeyGenerator returns a fresh candidate key code.
type KeyGenerator func() (string, error)

// Observer receives a copy of every verification outcome. Implementations
// must not block; their failures never affect the verification result.
type Observer interface {
	ObserveVerify(ctx context.Context, event VerifyEvent)
}

// Service implements Operations directly against the credential store. It
// holds every lifecycle rule; transports only translate requests.
type Service struct {
	db         *database.DB
	now        func() time.Time
	generate   KeyGenerator
	keyPrefix  string
	redeemCost int
	observers  []Observer
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithKeyGenerator(gen KeyGenerator) Option {
	return func(s *Service) {
		s.generate = gen
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

func WithRedeemCost(cost int) Option {
	return func(s *Service) {
		if cost > 0 {
			s.redeemCost = cost
		}
	}
}

func WithObservers(observers ...Observer) Option {
	return func(s *Service) {
		for _, o := range observers {
			if o != nil {
				s.observers = append(s.observers, o)
			}
		}
	}
}

func NewService(db *database.DB, opts ...Option) *Service {
	s := &Service{
		db:         db,
		now:        time.Now,
		keyPrefix:  DefaultKeyPrefix,
		redeemCost: DefaultRedeemCost,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.generate == nil {
		prefix := s.keyPrefix
		s.generate = func() (string, error) {
			return NewKeyCode(prefix)
		}
	}

	return s
}

var _ Operations = (*Service)(nil)

// RedeemCost is the default price of a redeemed key.
func (s *Service) RedeemCost() int {
	return s.redeemCost
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) notify(ctx context.Context, event VerifyEvent) {
	for _, o := range s.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Verification observer panicked")
				}
			}()
			o.ObserveVerify(ctx, event)
		}()
	}
}

// NewKeyCode returns prefix followed by 12 random upper-case hex characters.
func NewKeyCode(prefix string) (string, error) {
	b := make([]byte, keyRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(b)), nil
}

// normalizeKeys trims, drops empties and removes duplicates, keeping order.
func normalizeKeys(keyCodes []string) []string {
	seen := make(map[string]struct{}, len(keyCodes))
	out := make([]string, 0, len(keyCodes))
	for _, k := range keyCodes {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// maskKey shortens a key for log output.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:len(key)-4] + "****"
}
