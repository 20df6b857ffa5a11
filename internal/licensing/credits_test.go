// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillowplayer/pillowauth/internal/models"
)

func TestBalance_UnknownAccountIsZero(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Balance(t.Context(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Balance)
	assert.Equal(t, "nobody", result.AccountID)
}

func TestAdjust(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)

	steps := []struct {
		name     string
		action   CreditAction
		amount   int
		expected int
		wantCode Code
	}{
		{name: "add to fresh account", action: CreditAdd, amount: 50, expected: 50},
		{name: "remove some", action: CreditRemove, amount: 20, expected: 30},
		{name: "remove floors at zero", action: CreditRemove, amount: 100, expected: 0},
		{name: "set", action: CreditSet, amount: 75, expected: 75},
		{name: "add zero", action: CreditAdd, amount: 0, expected: 75},
		{name: "negative amount", action: CreditAdd, amount: -1, wantCode: CodeInvalidRequest},
		{name: "unknown action", action: CreditAction("steal"), amount: 1, wantCode: CodeInvalidRequest},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			result, err := svc.Adjust(ctx, "frank", step.action, step.amount)
			if step.wantCode != "" {
				assert.Equal(t, step.wantCode, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, step.expected, result.Balance)
			assert.NotEmpty(t, result.Message)

			balance, err := svc.Balance(ctx, "frank")
			require.NoError(t, err)
			assert.Equal(t, step.expected, balance.Balance)
		})
	}
}

func TestAdjust_ConcurrentNoLostUpdates(t *testing.T) {
	svc, _ := newTestService(t)
	const workers = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Adjust(t.Context(), "shared", CreditAdd, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	result, err := svc.Balance(t.Context(), "shared")
	require.NoError(t, err)
	assert.Equal(t, workers, result.Balance)
}

func TestAdjust_NeverNegative(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)

	amounts := []int{5, 0, 3, 1000, 7}
	for _, amount := range amounts {
		_, err := svc.Adjust(ctx, "gina", CreditAdd, amount%4)
		require.NoError(t, err)
		result, err := svc.Adjust(ctx, "gina", CreditRemove, amount)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.Balance, 0)
	}
}

func TestRedeem(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t)

	_, err := svc.Adjust(ctx, "henry", CreditSet, 25)
	require.NoError(t, err)

	result, err := svc.Redeem(ctx, "henry", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRedeemCost, result.Cost)
	assert.Equal(t, 5, result.Balance)
	assert.NotEmpty(t, result.ReceiptID)
	assert.Regexp(t, `^PILLOW-PLAYER-[0-9A-F]{12}$`, result.KeyCode)

	license, err := svc.Info(ctx, result.KeyCode)
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusUnused, license.Status)
	assert.True(t, license.IsLifetime())
	assert.Nil(t, license.DiscordID, "redeemed keys are issued unbound")
	assert.Contains(t, license.Note, "Redeemed by henry for 20 PCredit")
	assert.Contains(t, license.Note, result.ReceiptID)

	_, err = svc.Redeem(ctx, "henry", 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	balance, err := svc.Balance(ctx, "henry")
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Balance)
}

func TestRedeem_CustomCostAndValidation(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, WithRedeemCost(50))

	_, err := svc.Redeem(ctx, "ivy", 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = svc.Adjust(ctx, "ivy", CreditAdd, 10)
	require.NoError(t, err)

	result, err := svc.Redeem(ctx, "ivy", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Cost)
	assert.Equal(t, 0, result.Balance)

	_, err = svc.Redeem(ctx, "ivy", -1)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	_, err = svc.Redeem(ctx, "", 1)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}

func TestRedeem_GenerationFailureRollsBackDebit(t *testing.T) {
	ctx := t.Context()

	t.Run("generator error", func(t *testing.T) {
		svc, _ := newTestService(t, WithKeyGenerator(func() (string, error) {
			return "", errors.New("entropy exhausted")
		}))

		_, err := svc.Adjust(ctx, "jack", CreditSet, 40)
		require.NoError(t, err)

		_, err = svc.Redeem(ctx, "jack", 20)
		assert.ErrorIs(t, err, ErrGenerationFailed)

		balance, err := svc.Balance(ctx, "jack")
		require.NoError(t, err)
		assert.Equal(t, 40, balance.Balance)
	})

	t.Run("persistent collision", func(t *testing.T) {
		svc, _ := newTestService(t, WithKeyGenerator(func() (string, error) {
			return "ALWAYS-THE-SAME", nil
		}))

		_, err := svc.Generate(ctx, GenerateRequest{Count: 1})
		require.NoError(t, err)
		_, err = svc.Adjust(ctx, "kate", CreditSet, 40)
		require.NoError(t, err)

		_, err = svc.Redeem(ctx, "kate", 20)
		assert.ErrorIs(t, err, ErrGenerationFailed)

		balance, err := svc.Balance(ctx, "kate")
		require.NoError(t, err)
		assert.Equal(t, 40, balance.Balance)

		all, err := svc.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}
