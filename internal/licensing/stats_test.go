// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	ctx := t.Context()
	svc, clock := newTestService(t, WithKeyGenerator(sequentialKeys("OLD", "SHORT", "LIFE", "BANNED", "FRESH")))

	_, err := svc.Generate(ctx, GenerateRequest{Count: 1, DurationHours: 1})
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	_, err = svc.Generate(ctx, GenerateRequest{Count: 1, DurationHours: 1, OwnerAccount: "a"})
	require.NoError(t, err)
	_, err = svc.Generate(ctx, GenerateRequest{Count: 1, OwnerAccount: "b"})
	require.NoError(t, err)
	_, err = svc.Generate(ctx, GenerateRequest{Count: 2})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, VerifyRequest{KeyCode: "SHORT", HWID: "hw-a"})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, VerifyRequest{KeyCode: "LIFE", HWID: "hw-b"})
	require.NoError(t, err)
	_, err = svc.Ban(ctx, []string{"BANNED"}, "")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Used)
	assert.Equal(t, 2, stats.Unused)
	assert.Equal(t, 1, stats.Banned)
	assert.Equal(t, 1, stats.Active, "LIFE is active")
	assert.Equal(t, 1, stats.Expired, "SHORT expired after one hour")
	assert.Equal(t, 3, stats.Lifetime)
	assert.Equal(t, 2, stats.Limited)
	assert.Equal(t, 4, stats.Created24h)

	require.Len(t, stats.RecentKeys, 5)
	assert.Equal(t, "OLD", stats.RecentKeys[4].KeyCode)

	require.Len(t, stats.RecentlyRedeemed, 2)
	redeemed := []string{stats.RecentlyRedeemed[0].KeyCode, stats.RecentlyRedeemed[1].KeyCode}
	assert.ElementsMatch(t, []string{"SHORT", "LIFE"}, redeemed)
}

func TestStats_Empty(t *testing.T) {
	svc, _ := newTestService(t)

	stats, err := svc.Stats(t.Context())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.NotNil(t, stats.RecentKeys)
	assert.NotNil(t, stats.RecentlyRedeemed)
}
