// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/licensing"
	"github.com/pillowplayer/pillowauth/internal/models"
)

const (
	defaultInitialBackoff = 30 * time.Second
	defaultMaxBackoff     = 10 * time.Minute
)

// Opener prepares the local executor on first use. The returned close func
// releases whatever the executor holds open.
type Opener func() (licensing.Operations, func() error, error)

// failureInfo tracks consecutive gateway failures and the backoff they earned
type failureInfo struct {
	attempts  int
	nextRetry time.Time
}

// Fallback sends every operation to the gateway first. When the gateway
// cannot be reached the same operation runs on the local executor, and the
// gateway is skipped until its backoff period has passed. Errors returned by
// a gateway that answered are final.
type Fallback struct {
	remote licensing.Operations
	open   Opener

	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time

	mu         sync.Mutex
	local      licensing.Operations
	closeLocal func() error
	failures   *failureInfo
}

var _ licensing.Operations = (*Fallback)(nil)

type FallbackOption func(*Fallback)

// WithBackoff sets the gateway retry backoff; maxBackoff caps the doubling.
func WithBackoff(initial, maxBackoff time.Duration) FallbackOption {
	return func(f *Fallback) {
		if initial > 0 {
			f.initialBackoff = initial
		}
		if maxBackoff >= f.initialBackoff {
			f.maxBackoff = maxBackoff
		}
	}
}

func NewFallback(remote licensing.Operations, open Opener, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		remote:         remote,
		open:           open,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxBackoff < f.initialBackoff {
		f.maxBackoff = f.initialBackoff
	}
	return f
}

// Close releases the local executor if it was opened.
func (f *Fallback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closeLocal == nil {
		return nil
	}
	err := f.closeLocal()
	f.local, f.closeLocal = nil, nil
	return err
}

func (f *Fallback) isInBackoff() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures != nil && f.now().Before(f.failures.nextRetry)
}

func (f *Fallback) trackFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures == nil {
		f.failures = &failureInfo{}
	}
	f.failures.attempts++

	backoff := calculateBackoff(f.failures.attempts, f.initialBackoff, f.maxBackoff)
	f.failures.nextRetry = f.now().Add(backoff)

	log.Warn().Err(err).Int("attempts", f.failures.attempts).Dur("backoffDuration", backoff).Msg("Gateway unreachable, using local database")
}

func (f *Fallback) resetFailureTracking() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures != nil {
		f.failures = nil
		log.Debug().Msg("Reset gateway failure tracking after successful request")
	}
}

// BackoffStatus reports whether the gateway is currently being skipped.
func (f *Fallback) BackoffStatus() (inBackoff bool, nextRetry time.Time, attempts int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures == nil {
		return false, time.Time{}, 0
	}
	return f.now().Before(f.failures.nextRetry), f.failures.nextRetry, f.failures.attempts
}

// calculateBackoff returns exponential backoff duration with limits
func calculateBackoff(attempts int, initialDuration, maxDuration time.Duration) time.Duration {
	if attempts > 30 {
		return maxDuration
	}
	backoff := time.Duration(1<<(attempts-1)) * initialDuration
	if backoff > maxDuration || backoff <= 0 {
		backoff = maxDuration
	}
	return backoff
}

func (f *Fallback) localOps() (licensing.Operations, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.local != nil {
		return f.local, nil
	}
	if f.open == nil {
		return nil, errors.New("no local executor configured")
	}

	ops, closeFn, err := f.open()
	if err != nil {
		return nil, err
	}
	f.local, f.closeLocal = ops, closeFn
	return ops, nil
}

func dispatch[T any](ctx context.Context, f *Fallback, call func(licensing.Operations) (T, error)) (T, error) {
	var zero T

	if !f.isInBackoff() {
		out, err := call(f.remote)
		if err == nil || !errors.Is(err, ErrUnreachable) {
			f.resetFailureTracking()
			if err != nil {
				return zero, licensing.AsError(err)
			}
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, licensing.AsError(ctxErr)
		}
		f.trackFailure(err)
	}

	local, err := f.localOps()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open local database")
		return zero, licensing.AsError(err)
	}

	out, err := call(local)
	if err != nil {
		return zero, licensing.AsError(err)
	}
	return out, nil
}

func (f *Fallback) Generate(ctx context.Context, req licensing.GenerateRequest) (*licensing.GenerateResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.GenerateResult, error) {
		return ops.Generate(ctx, req)
	})
}

func (f *Fallback) Claim(ctx context.Context, keyCode, accountID string) (*licensing.ClaimResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.ClaimResult, error) {
		return ops.Claim(ctx, keyCode, accountID)
	})
}

func (f *Fallback) Verify(ctx context.Context, req licensing.VerifyRequest) (*licensing.VerifyResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.VerifyResult, error) {
		return ops.Verify(ctx, req)
	})
}

func (f *Fallback) Info(ctx context.Context, keyCode string) (*models.License, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*models.License, error) {
		return ops.Info(ctx, keyCode)
	})
}

func (f *Fallback) List(ctx context.Context) ([]*models.License, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) ([]*models.License, error) {
		return ops.List(ctx)
	})
}

func (f *Fallback) Search(ctx context.Context, query string, limit int) (*licensing.SearchResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.SearchResult, error) {
		return ops.Search(ctx, query, limit)
	})
}

func (f *Fallback) ListByAccount(ctx context.Context, accountID string) ([]*models.License, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) ([]*models.License, error) {
		return ops.ListByAccount(ctx, accountID)
	})
}

func (f *Fallback) Reset(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.BatchResult, error) {
		return ops.Reset(ctx, keyCodes)
	})
}

func (f *Fallback) Recover(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.BatchResult, error) {
		return ops.Recover(ctx, keyCodes)
	})
}

func (f *Fallback) Delete(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.BatchResult, error) {
		return ops.Delete(ctx, keyCodes)
	})
}

func (f *Fallback) Ban(ctx context.Context, keyCodes []string, reason string) (*licensing.BatchResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.BatchResult, error) {
		return ops.Ban(ctx, keyCodes, reason)
	})
}

func (f *Fallback) BanAccount(ctx context.Context, accountID, reason string) (*licensing.BanAccountResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.BanAccountResult, error) {
		return ops.BanAccount(ctx, accountID, reason)
	})
}

func (f *Fallback) BlacklistAdd(ctx context.Context, hwid, reason string) (*licensing.BlacklistResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.BlacklistResult, error) {
		return ops.BlacklistAdd(ctx, hwid, reason)
	})
}

func (f *Fallback) BlacklistRemove(ctx context.Context, hwid string) (*licensing.BlacklistResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.BlacklistResult, error) {
		return ops.BlacklistRemove(ctx, hwid)
	})
}

func (f *Fallback) Blacklist(ctx context.Context) ([]*models.BlacklistEntry, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) ([]*models.BlacklistEntry, error) {
		return ops.Blacklist(ctx)
	})
}

func (f *Fallback) Balance(ctx context.Context, accountID string) (*licensing.CreditResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.CreditResult, error) {
		return ops.Balance(ctx, accountID)
	})
}

func (f *Fallback) Adjust(ctx context.Context, accountID string, action licensing.CreditAction, amount int) (*licensing.CreditResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.CreditResult, error) {
		return ops.Adjust(ctx, accountID, action, amount)
	})
}

func (f *Fallback) Redeem(ctx context.Context, accountID string, cost int) (*licensing.RedeemResult, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.RedeemResult, error) {
		return ops.Redeem(ctx, accountID, cost)
	})
}

func (f *Fallback) Stats(ctx context.Context) (*licensing.Stats, error) {
	return dispatch(ctx, f, func(ops licensing.Operations) (*licensing.Stats, error) {
		return ops.Stats(ctx)
	})
}
