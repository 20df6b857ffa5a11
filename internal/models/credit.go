// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/pillowplayer/pillowauth/internal/database"
)

// CreditBalance is the PCredit balance of one account.
type CreditBalance struct {
	DiscordID   string    `json:"discord_id"`
	Balance     int       `json:"balance"`
	LastUpdated time.Time `json:"last_updated"`
}

type CreditStore struct {
	q database.Querier
}

func NewCreditStore(q database.Querier) *CreditStore {
	return &CreditStore{q: q}
}

// Balance returns 0 for accounts that have never been seen.
func (s *CreditStore) Balance(ctx context.Context, discordID string) (int, error) {
	var balance int
	err := s.q.QueryRowContext(ctx, "SELECT balance FROM user_credits WHERE discord_id = ?", discordID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to get credit balance")
	}
	return balance, nil
}

// Ensure creates the account row with a zero balance if it does not exist.
func (s *CreditStore) Ensure(ctx context.Context, discordID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO user_credits (discord_id, balance, last_updated) VALUES (?, 0, ?)",
		discordID, at)
	return errors.Wrap(err, "failed to create credit account")
}

func (s *CreditStore) Add(ctx context.Context, discordID string, amount int, at time.Time) (int, error) {
	return s.update(ctx, "balance + ?", discordID, amount, at)
}

// Subtract removes amount, clamping the balance at zero.
func (s *CreditStore) Subtract(ctx context.Context, discordID string, amount int, at time.Time) (int, error) {
	return s.update(ctx, "MAX(0, balance - ?)", discordID, amount, at)
}

func (s *CreditStore) Set(ctx context.Context, discordID string, amount int, at time.Time) (int, error) {
	return s.update(ctx, "?", discordID, amount, at)
}

func (s *CreditStore) update(ctx context.Context, expr, discordID string, amount int, at time.Time) (int, error) {
	query := `UPDATE user_credits SET balance = ` + expr + `, last_updated = ? WHERE discord_id = ? RETURNING balance`

	var balance int
	err := s.q.QueryRowContext(ctx, query, amount, at, discordID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Errorf("credit account %s does not exist", discordID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to update credit balance")
	}
	return balance, nil
}
