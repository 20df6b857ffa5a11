// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlacklist_Idempotent(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)

	added, err := svc.BlacklistAdd(ctx, "hw-1", "first")
	require.NoError(t, err)
	assert.True(t, added.Changed)

	again, err := svc.BlacklistAdd(ctx, " hw-1 ", "second")
	require.NoError(t, err)
	assert.False(t, again.Changed)

	entries, err := svc.Blacklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Reason)

	removed, err := svc.BlacklistRemove(ctx, "hw-1")
	require.NoError(t, err)
	assert.True(t, removed.Changed)

	missing, err := svc.BlacklistRemove(ctx, "hw-1")
	require.NoError(t, err)
	assert.False(t, missing.Changed)

	entries, err = svc.Blacklist(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBlacklist_DefaultReasonAndValidation(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)

	_, err := svc.BlacklistAdd(ctx, "hw-2", "  ")
	require.NoError(t, err)

	entries, err := svc.Blacklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, defaultBanReason, entries[0].Reason)

	_, err = svc.BlacklistAdd(ctx, "", "x")
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	_, err = svc.BlacklistRemove(ctx, " ")
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}

func TestBlacklist_UnbanRestoresVerification(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)
	key := issueClaimed(t, svc, 0, "alice")

	_, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1"})
	require.NoError(t, err)

	_, err = svc.BlacklistAdd(ctx, "hw-1", "")
	require.NoError(t, err)

	result, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1"})
	require.NoError(t, err)
	assert.Equal(t, CodeHWIDBanned, result.Reason)

	license, err := svc.Info(ctx, key)
	require.NoError(t, err)
	assert.True(t, license.IsBanned)

	_, err = svc.BlacklistRemove(ctx, "hw-1")
	require.NoError(t, err)

	result, err = svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReaccepted, result.Result)
}
