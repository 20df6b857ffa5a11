// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"time"

	"github.com/pillowplayer/pillowauth/internal/models"
)

const (
	recentKeysLimit     = 10
	recentRedeemedLimit = 5
)

// Stats summarises the store. Active and expired are evaluated at call time.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	store := models.NewLicenseStore(s.db.Conn())

	licenses, err := store.List(ctx)
	if err != nil {
		return nil, internal(err)
	}
	redeemed, err := store.RecentlyRedeemed(ctx, recentRedeemedLimit)
	if err != nil {
		return nil, internal(err)
	}

	now := s.clock()
	dayAgo := now.Add(-24 * time.Hour)

	stats := &Stats{
		Total:            len(licenses),
		RecentKeys:       make([]KeySummary, 0, recentKeysLimit),
		RecentlyRedeemed: make([]KeySummary, 0, len(redeemed)),
	}

	for i, l := range licenses {
		switch l.Status {
		case models.LicenseStatusUsed:
			stats.Used++
		case models.LicenseStatusUnused:
			stats.Unused++
		case models.LicenseStatusBanned:
			stats.Banned++
		}

		if l.IsActive(now) {
			stats.Active++
		}
		if l.IsExpired(now) {
			stats.Expired++
		}
		if l.IsLifetime() {
			stats.Lifetime++
		} else {
			stats.Limited++
		}
		if l.CreatedAt.After(dayAgo) {
			stats.Created24h++
		}

		// List is newest first.
		if i < recentKeysLimit {
			stats.RecentKeys = append(stats.RecentKeys, summarize(l))
		}
	}

	for _, l := range redeemed {
		stats.RecentlyRedeemed = append(stats.RecentlyRedeemed, summarize(l))
	}

	return stats, nil
}

func summarize(l *models.License) KeySummary {
	return KeySummary{
		KeyCode:       l.KeyCode,
		Status:        l.Status,
		DurationHours: l.DurationHours,
		DeviceName:    l.DeviceName,
		ExpiresAt:     l.ExpiresAt,
		CreatedAt:     l.CreatedAt,
		RedeemedAt:    l.RedeemedAt,
	}
}
