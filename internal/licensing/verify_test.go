// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillowplayer/pillowauth/internal/models"
)

func TestVerify_ActivationSetsExpiry(t *testing.T) {
	ctx := t.Context()
	svc, clock := newTestService(t)
	key := issueClaimed(t, svc, 24, "alice")
	activatedAt := clock.Now()

	result, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1", DeviceName: "Desk", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, result.Result)
	assert.True(t, result.Valid)
	assert.Equal(t, "alice", result.AccountID)
	require.NotNil(t, result.ExpiresAt)
	assert.True(t, activatedAt.Add(24*time.Hour).Equal(*result.ExpiresAt))

	license, err := svc.Info(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusUsed, license.Status)
	assert.Equal(t, "hw-1", license.BoundHWID())
	require.NotNil(t, license.DeviceName)
	assert.Equal(t, "Desk", *license.DeviceName)
	require.NotNil(t, license.ExpiresAt)
	assert.True(t, activatedAt.Add(24*time.Hour).Equal(*license.ExpiresAt))
	require.NotNil(t, license.RedeemedAt)
	assert.True(t, activatedAt.Equal(*license.RedeemedAt))
	require.NotNil(t, license.IPAddress)
	assert.Equal(t, "10.0.0.1", *license.IPAddress)

	// Still valid at the exact expiry instant.
	clock.Advance(24 * time.Hour)
	result, err = svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReaccepted, result.Result)

	clock.Advance(time.Second)
	result, err = svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Result)
	assert.False(t, result.Valid)
	assert.Equal(t, CodeExpired, result.Reason)
}

func TestVerify_LifetimeNeverExpires(t *testing.T) {
	ctx := t.Context()
	svc, clock := newTestService(t)
	key := issueClaimed(t, svc, 0, "alice")

	result, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, result.Result)
	assert.Nil(t, result.ExpiresAt)

	clock.Advance(10 * 365 * 24 * time.Hour)
	result, err = svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReaccepted, result.Result)

	license, err := svc.Info(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, license.ExpiresAt)
	assert.True(t, license.IsActive(clock.Now()))
}

func TestVerify_ReacceptCountsRuns(t *testing.T) {
	ctx := t.Context()
	svc, clock := newTestService(t)
	key := issueClaimed(t, svc, 0, "alice")

	_, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Minute)
		result, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1", IPAddress: fmt.Sprintf("10.0.0.%d", i)})
		require.NoError(t, err)
		assert.Equal(t, OutcomeReaccepted, result.Result)
	}

	license, err := svc.Info(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, license.RunCount)
	require.NotNil(t, license.LastSeen)
	assert.True(t, clock.Now().Equal(*license.LastSeen))
	assert.Equal(t, "10.0.0.2", *license.IPAddress)
}

func TestVerify_Rejections(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, WithKeyGenerator(sequentialKeys("BOUND", "UNCLAIMED", "BANNED")))

	_, err := svc.Generate(ctx, GenerateRequest{Count: 3})
	require.NoError(t, err)
	_, err = svc.Claim(ctx, "BOUND", "alice")
	require.NoError(t, err)
	_, err = svc.Generate(ctx, GenerateRequest{Count: 1, OwnerAccount: "bob"})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, VerifyRequest{KeyCode: "BOUND", HWID: "hw-alice"})
	require.NoError(t, err)
	_, err = svc.Ban(ctx, []string{"BANNED"}, "")
	require.NoError(t, err)
	_, err = svc.BlacklistAdd(ctx, "hw-evil", "cheater")
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     VerifyRequest
		reason  Code
		account string
	}{
		{name: "blacklisted hwid wins over everything", req: VerifyRequest{KeyCode: "NOPE", HWID: "hw-evil"}, reason: CodeHWIDBanned},
		{name: "unknown key", req: VerifyRequest{KeyCode: "NOPE", HWID: "hw-1"}, reason: CodeInvalidKey},
		{name: "unclaimed key", req: VerifyRequest{KeyCode: "UNCLAIMED", HWID: "hw-1"}, reason: CodeNotClaimed},
		{name: "other device", req: VerifyRequest{KeyCode: "BOUND", HWID: "hw-other"}, reason: CodeHWIDMismatch, account: "alice"},
		{name: "banned but unclaimed key", req: VerifyRequest{KeyCode: "BANNED", HWID: "hw-1"}, reason: CodeNotClaimed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Verify(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, OutcomeRejected, result.Result)
			assert.False(t, result.Valid)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Equal(t, tt.account, result.AccountID)
			assert.NotEmpty(t, result.Message)
		})
	}

	t.Run("banned claimed key", func(t *testing.T) {
		_, err := svc.Claim(ctx, "BANNED", "carol")
		require.NoError(t, err)

		result, err := svc.Verify(ctx, VerifyRequest{KeyCode: "BANNED", HWID: "hw-1"})
		require.NoError(t, err)
		assert.Equal(t, CodeKeyBanned, result.Reason)
		assert.Equal(t, "carol", result.AccountID)
	})

	t.Run("rejections leave the binding unchanged", func(t *testing.T) {
		license, err := svc.Info(ctx, "BOUND")
		require.NoError(t, err)
		assert.Equal(t, "hw-alice", license.BoundHWID())
		assert.Equal(t, 0, license.RunCount)
	})
}

func TestVerify_InvalidRequest(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Verify(t.Context(), VerifyRequest{KeyCode: "", HWID: "hw"})
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))

	_, err = svc.Verify(t.Context(), VerifyRequest{KeyCode: "KEY", HWID: " "})
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}

func TestVerify_ConcurrentActivationBindsOneDevice(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)
	key := issueClaimed(t, svc, 0, "alice")

	const devices = 8
	outcomes := make([]*VerifyResult, devices)

	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: fmt.Sprintf("hw-%d", i)})
			assert.NoError(t, err)
			outcomes[i] = result
		}(i)
	}
	wg.Wait()

	activated := 0
	for _, result := range outcomes {
		require.NotNil(t, result)
		switch result.Result {
		case OutcomeActivated:
			activated++
		case OutcomeRejected:
			assert.Equal(t, CodeHWIDMismatch, result.Reason)
		default:
			t.Fatalf("unexpected outcome %s", result.Result)
		}
	}
	assert.Equal(t, 1, activated)
}

func TestVerify_ObserversReceiveEvents(t *testing.T) {
	ctx := t.Context()
	observer := &recordingObserver{}
	svc, clock := newTestService(t, WithObservers(panickingObserver{}, observer))

	key := issueClaimed(t, svc, 0, "alice")

	result, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-1", DeviceName: "Laptop", IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, result.Result)

	result, err = svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-2"})
	require.NoError(t, err)
	assert.Equal(t, CodeHWIDMismatch, result.Reason)

	events := observer.Events()
	require.Len(t, events, 2)

	first := events[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, key, first.KeyCode)
	assert.Equal(t, "alice", first.AccountID)
	assert.Equal(t, 1, first.AccountKeyCount)
	assert.Equal(t, "Laptop", first.DeviceName)
	assert.Equal(t, "1.2.3.4", first.IPAddress)
	assert.Equal(t, OutcomeActivated, first.Outcome)
	assert.Empty(t, first.Reason)
	assert.True(t, clock.Now().Equal(first.At))

	second := events[1]
	assert.Equal(t, OutcomeRejected, second.Outcome)
	assert.Equal(t, CodeHWIDMismatch, second.Reason)
	assert.Equal(t, "hw-2", second.HWID)
	assert.Equal(t, "hw-1", second.ExpectedHWID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestVerify_ResetAllowsRebinding(t *testing.T) {
	ctx := t.Context()
	svc, clock := newTestService(t)
	key := issueClaimed(t, svc, 48, "alice")

	_, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-old"})
	require.NoError(t, err)

	_, err = svc.Reset(ctx, []string{key})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	result, err := svc.Verify(ctx, VerifyRequest{KeyCode: key, HWID: "hw-new"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, result.Result)
	require.NotNil(t, result.ExpiresAt)
	assert.True(t, clock.Now().Add(48*time.Hour).Equal(*result.ExpiresAt))
}
