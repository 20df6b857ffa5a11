// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pillowplayer/pillowauth/internal/database"
)

// BlacklistEntry is one banned hardware fingerprint.
type BlacklistEntry struct {
	HWID      string    `json:"hwid" yaml:"hwid"`
	Reason    string    `json:"reason" yaml:"reason"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type BlacklistStore struct {
	q database.Querier
}

func NewBlacklistStore(q database.Querier) *BlacklistStore {
	return &BlacklistStore{q: q}
}

// Add inserts hwid and reports whether it was not already present.
func (s *BlacklistStore) Add(ctx context.Context, hwid, reason string, at time.Time) (bool, error) {
	result, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO blacklist (hwid, reason, created_at) VALUES (?, ?, ?)",
		hwid, reason, at)
	if err != nil {
		return false, errors.Wrap(err, "failed to add blacklist entry")
	}
	return affected(result)
}

// Remove deletes hwid and reports whether it was present.
func (s *BlacklistStore) Remove(ctx context.Context, hwid string) (bool, error) {
	result, err := s.q.ExecContext(ctx, "DELETE FROM blacklist WHERE hwid = ?", hwid)
	if err != nil {
		return false, errors.Wrap(err, "failed to remove blacklist entry")
	}
	return affected(result)
}

func (s *BlacklistStore) Contains(ctx context.Context, hwid string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM blacklist WHERE hwid = ?)", hwid).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check blacklist")
	}
	return exists, nil
}

func (s *BlacklistStore) List(ctx context.Context) ([]*BlacklistEntry, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT hwid, COALESCE(reason, ''), created_at FROM blacklist ORDER BY created_at DESC, hwid")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query blacklist")
	}
	defer rows.Close()

	entries := make([]*BlacklistEntry, 0)
	for rows.Next() {
		entry := &BlacklistEntry{}
		var createdAt *time.Time
		if err := rows.Scan(&entry.HWID, &entry.Reason, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan blacklist entry")
		}
		if createdAt != nil {
			entry.CreatedAt = *createdAt
		}
		entries = append(entries, entry)
	}

	return entries, errors.Wrap(rows.Err(), "failed to iterate blacklist")
}
