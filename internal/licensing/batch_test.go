// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillowplayer/pillowauth/internal/models"
)

func TestBatch_EmptyInputRejected(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)

	_, err := svc.Reset(ctx, nil)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	_, err = svc.Recover(ctx, []string{" "})
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	_, err = svc.Delete(ctx, []string{})
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	_, err = svc.Ban(ctx, []string{""}, "x")
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}

func TestBan_AppendsReasonToNote(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, WithKeyGenerator(sequentialKeys("K1", "K2")))

	_, err := svc.Generate(ctx, GenerateRequest{Count: 2, Note: "promo"})
	require.NoError(t, err)

	result, err := svc.Ban(ctx, []string{"K1", "K2", "K1", "MISSING"}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)

	license, err := svc.Info(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusBanned, license.Status)
	assert.Equal(t, "promo [BANNED: Banned by Admin]", license.Note)

	_, err = svc.Ban(ctx, []string{"K2"}, "chargeback")
	require.NoError(t, err)
	license, err = svc.Info(ctx, "K2")
	require.NoError(t, err)
	assert.Equal(t, "promo [BANNED: Banned by Admin] [BANNED: chargeback]", license.Note)
}

func TestRecover(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, WithKeyGenerator(sequentialKeys("BOUND", "LOOSE", "FINE")))

	_, err := svc.Generate(ctx, GenerateRequest{Count: 3})
	require.NoError(t, err)
	_, err = svc.Claim(ctx, "BOUND", "alice")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, VerifyRequest{KeyCode: "BOUND", HWID: "hw-1"})
	require.NoError(t, err)

	_, err = svc.Ban(ctx, []string{"BOUND", "LOOSE"}, "test")
	require.NoError(t, err)

	result, err := svc.Recover(ctx, []string{"BOUND", "LOOSE", "FINE"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count, "only banned keys are recovered")

	tests := []struct {
		key    string
		status string
		note   string
	}{
		{key: "BOUND", status: models.LicenseStatusUsed, note: " [BANNED: test] [RECOVERED]"},
		{key: "LOOSE", status: models.LicenseStatusUnused, note: " [BANNED: test] [RECOVERED]"},
		{key: "FINE", status: models.LicenseStatusUnused, note: ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			license, err := svc.Info(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.status, license.Status)
			assert.Equal(t, tt.note, license.Note)
		})
	}

	verified, err := svc.Verify(ctx, VerifyRequest{KeyCode: "BOUND", HWID: "hw-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReaccepted, verified.Result)
}

func TestReset_ClearsBindingRegardlessOfStatus(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)
	key := issueClaimed(t, svc, 0, "alice")

	_, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1", DeviceName: "Desk"})
	require.NoError(t, err)
	_, err = svc.Ban(ctx, []string{key}, "")
	require.NoError(t, err)

	result, err := svc.Reset(ctx, []string{key, "UNKNOWN"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	license, err := svc.Info(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusUnused, license.Status)
	assert.Nil(t, license.HWID)
	assert.Nil(t, license.DeviceName)
	assert.Equal(t, "alice", license.Owner(), "reset keeps the account binding")
}

func TestDelete(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, WithKeyGenerator(sequentialKeys("D1", "D2", "D3")))

	_, err := svc.Generate(ctx, GenerateRequest{Count: 3})
	require.NoError(t, err)

	result, err := svc.Delete(ctx, []string{"D1", " D3 ", "D9"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)

	remaining, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "D2", remaining[0].KeyCode)

	_, err = svc.Info(ctx, "D1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBanAccount(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, WithKeyGenerator(sequentialKeys("A1", "A2", "A3", "OTHER")))

	_, err := svc.Generate(ctx, GenerateRequest{Count: 3, OwnerAccount: "mallory"})
	require.NoError(t, err)
	_, err = svc.Generate(ctx, GenerateRequest{Count: 1, OwnerAccount: "trent"})
	require.NoError(t, err)

	// Two keys share a device; the third is never activated.
	_, err = svc.Verify(ctx, VerifyRequest{KeyCode: "A1", HWID: "hw-shared"})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, VerifyRequest{KeyCode: "A2", HWID: "hw-shared"})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, VerifyRequest{KeyCode: "OTHER", HWID: "hw-trent"})
	require.NoError(t, err)

	result, err := svc.BanAccount(ctx, "mallory", "cheating")
	require.NoError(t, err)
	assert.Equal(t, "mallory", result.AccountID)
	assert.Equal(t, 3, result.KeysRevoked)
	assert.Equal(t, 1, result.HWIDsBanned)

	entries, err := svc.Blacklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hw-shared", entries[0].HWID)
	assert.Equal(t, "Banned account mallory - cheating", entries[0].Reason)

	for _, key := range []string{"A1", "A2", "A3"} {
		license, err := svc.Info(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, models.LicenseStatusBanned, license.Status)
		assert.Contains(t, license.Note, "[BANNED: cheating]")
	}

	a1, err := svc.Info(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, a1.IsBanned)

	other, err := svc.Info(ctx, "OTHER")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusUsed, other.Status)
	assert.False(t, other.IsBanned)

	verified, err := svc.Verify(ctx, VerifyRequest{KeyCode: "OTHER", HWID: "hw-shared"})
	require.NoError(t, err)
	assert.Equal(t, CodeHWIDBanned, verified.Reason)
}

func TestBanAccount_DefaultsAndEmptyAccount(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)

	result, err := svc.BanAccount(ctx, "ghost", "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.KeysRevoked)
	assert.Equal(t, 0, result.HWIDsBanned)

	key := issueClaimed(t, svc, 0, "eve")
	_, err = svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-eve"})
	require.NoError(t, err)

	_, err = svc.BanAccount(ctx, "eve", "")
	require.NoError(t, err)

	entries, err := svc.Blacklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Banned account eve - No reason", entries[0].Reason)

	license, err := svc.Info(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, " [BANNED: Banned via account ban]", license.Note)

	_, err = svc.BanAccount(ctx, " ", "x")
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}
