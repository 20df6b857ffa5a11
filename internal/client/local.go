// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package client

import (
	"context"

	"github.com/pillowplayer/pillowauth/internal/licensing"
	"github.com/pillowplayer/pillowauth/internal/models"
)

// SecretVerifier is satisfied by auth.Service.
type SecretVerifier interface {
	Verify(presented string) error
}

// Local runs operations in-process against the database, applying the same
// secret check as the gateway middleware before anything else.
type Local struct {
	verifier SecretVerifier
	secret   string
	ops      licensing.Operations
}

var _ licensing.Operations = (*Local)(nil)

func NewLocal(verifier SecretVerifier, presentedSecret string, ops licensing.Operations) *Local {
	return &Local{
		verifier: verifier,
		secret:   presentedSecret,
		ops:      ops,
	}
}

func (l *Local) authorize() error {
	if err := l.verifier.Verify(l.secret); err != nil {
		return licensing.ErrUnauthorized
	}
	return nil
}

func (l *Local) Generate(ctx context.Context, req licensing.GenerateRequest) (*licensing.GenerateResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Generate(ctx, req)
}

func (l *Local) Claim(ctx context.Context, keyCode, accountID string) (*licensing.ClaimResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Claim(ctx, keyCode, accountID)
}

func (l *Local) Verify(ctx context.Context, req licensing.VerifyRequest) (*licensing.VerifyResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Verify(ctx, req)
}

func (l *Local) Info(ctx context.Context, keyCode string) (*models.License, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Info(ctx, keyCode)
}

func (l *Local) List(ctx context.Context) ([]*models.License, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.List(ctx)
}

func (l *Local) Search(ctx context.Context, query string, limit int) (*licensing.SearchResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Search(ctx, query, limit)
}

func (l *Local) ListByAccount(ctx context.Context, accountID string) ([]*models.License, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.ListByAccount(ctx, accountID)
}

func (l *Local) Reset(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Reset(ctx, keyCodes)
}

func (l *Local) Recover(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Recover(ctx, keyCodes)
}

func (l *Local) Delete(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Delete(ctx, keyCodes)
}

func (l *Local) Ban(ctx context.Context, keyCodes []string, reason string) (*licensing.BatchResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Ban(ctx, keyCodes, reason)
}

func (l *Local) BanAccount(ctx context.Context, accountID, reason string) (*licensing.BanAccountResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.BanAccount(ctx, accountID, reason)
}

func (l *Local) BlacklistAdd(ctx context.Context, hwid, reason string) (*licensing.BlacklistResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.BlacklistAdd(ctx, hwid, reason)
}

func (l *Local) BlacklistRemove(ctx context.Context, hwid string) (*licensing.BlacklistResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.BlacklistRemove(ctx, hwid)
}

func (l *Local) Blacklist(ctx context.Context) ([]*models.BlacklistEntry, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Blacklist(ctx)
}

func (l *Local) Balance(ctx context.Context, accountID string) (*licensing.CreditResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Balance(ctx, accountID)
}

func (l *Local) Adjust(ctx context.Context, accountID string, action licensing.CreditAction, amount int) (*licensing.CreditResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Adjust(ctx, accountID, action, amount)
}

func (l *Local) Redeem(ctx context.Context, accountID string, cost int) (*licensing.RedeemResult, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Redeem(ctx, accountID, cost)
}

func (l *Local) Stats(ctx context.Context) (*licensing.Stats, error) {
	if err := l.authorize(); err != nil {
		return nil, err
	}
	return l.ops.Stats(ctx)
}
