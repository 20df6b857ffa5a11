// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/models"
)

func (s *Service) Balance(ctx context.Context, accountID string) (*CreditResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, invalidRequest("Missing discord_id")
	}

	balance, err := models.NewCreditStore(s.db.Conn()).Balance(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Str("account", accountID).Msg("Failed to read credit balance")
		return nil, internal(err)
	}
	return &CreditResult{AccountID: accountID, Balance: balance}, nil
}

// Adjust changes a balance. Removing more than the balance leaves zero.
func (s *Service) Adjust(ctx context.Context, accountID string, action CreditAction, amount int) (*CreditResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, invalidRequest("Missing discord_id")
	}
	if amount < 0 {
		return nil, invalidRequest("Amount must not be negative")
	}

	now := s.clock()
	result := &CreditResult{AccountID: accountID}

	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		credits := models.NewCreditStore(tx)
		if err := credits.Ensure(ctx, accountID, now); err != nil {
			return err
		}

		var err error
		switch action {
		case CreditAdd:
			result.Balance, err = credits.Add(ctx, accountID, amount, now)
			result.Message = fmt.Sprintf("Added %d PCredit", amount)
		case CreditRemove:
			result.Balance, err = credits.Subtract(ctx, accountID, amount, now)
			result.Message = fmt.Sprintf("Removed %d PCredit", amount)
		case CreditSet:
			result.Balance, err = credits.Set(ctx, accountID, amount, now)
			result.Message = fmt.Sprintf("Balance set to %d PCredit", amount)
		default:
			return invalidRequest("Unknown action %q", action)
		}
		return err
	})
	if err != nil {
		if CodeOf(err) != CodeInternal {
			return nil, err
		}
		log.Error().Err(err).Str("account", accountID).Msg("Failed to adjust credits")
		return nil, internal(err)
	}

	log.Info().
		Str("account", accountID).
		Str("action", string(action)).
		Int("amount", amount).
		Int("balance", result.Balance).
		Msg("Credits adjusted")

	return result, nil
}

// Redeem exchanges credits for a new unbound lifetime key. The debit and the
// key insert commit together or not at all. A cost of 0 uses the configured
// default price.
func (s *Service) Redeem(ctx context.Context, accountID string, cost int) (*RedeemResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, invalidRequest("Missing discord_id")
	}
	if cost < 0 {
		return nil, invalidRequest("Cost must not be negative")
	}
	if cost == 0 {
		cost = s.redeemCost
	}

	now := s.clock()
	receipt := uuid.NewString()
	result := &RedeemResult{AccountID: accountID, Cost: cost, ReceiptID: receipt}

	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		credits := models.NewCreditStore(tx)

		balance, err := credits.Balance(ctx, accountID)
		if err != nil {
			return err
		}
		if balance < cost {
			return NewError(CodeInsufficientBalance, "Insufficient balance: %d PCredit required, %d available", cost, balance)
		}

		if result.Balance, err = credits.Subtract(ctx, accountID, cost, now); err != nil {
			return err
		}

		note := fmt.Sprintf("Redeemed by %s for %d PCredit (receipt %s)", accountID, cost, receipt)
		key, err := s.insertKey(ctx, models.NewLicenseStore(tx), 0, note, nil, now)
		if err != nil {
			return &Error{Code: CodeGenerationFailed, Message: ErrGenerationFailed.Message, cause: err}
		}
		if key == "" {
			return ErrGenerationFailed
		}
		result.KeyCode = key
		return nil
	})
	if err != nil {
		var domainErr *Error
		if errors.As(err, &domainErr) {
			if domainErr.Code == CodeGenerationFailed {
				log.Error().Err(err).Str("account", accountID).Msg("Redeem rolled back")
			}
			return nil, domainErr
		}
		log.Error().Err(err).Str("account", accountID).Msg("Failed to redeem credits")
		return nil, internal(err)
	}

	log.Info().
		Str("account", accountID).
		Int("cost", cost).
		Int("balance", result.Balance).
		Str("key", maskKey(result.KeyCode)).
		Str("receipt", receipt).
		Msg("Credits redeemed")

	return result, nil
}
