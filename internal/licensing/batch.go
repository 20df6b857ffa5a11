// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/models"
)

const (
	defaultBanReason        = "Banned by Admin"
	defaultAccountBanReason = "Banned via account ban"
)

type keyAction func(ctx context.Context, licenses *models.LicenseStore, keyCode string) (bool, error)

// applyBatch runs action for every key in one transaction and counts the keys
// it changed. Unknown keys are skipped.
func (s *Service) applyBatch(ctx context.Context, name string, keyCodes []string, action keyAction) (int, error) {
	keys := normalizeKeys(keyCodes)
	if len(keys) == 0 {
		return 0, invalidRequest("No keys provided")
	}

	count := 0
	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		licenses := models.NewLicenseStore(tx)
		for _, key := range keys {
			changed, err := action(ctx, licenses, key)
			if err != nil {
				return err
			}
			if changed {
				count++
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("operation", name).Int("keys", len(keys)).Msg("Batch operation failed")
		return 0, internal(err)
	}

	log.Info().Str("operation", name).Int("requested", len(keys)).Int("changed", count).Msg("Batch operation applied")
	return count, nil
}

// Reset returns keys to unused and clears their hardware binding, whatever
// their current status. The expiry is recomputed on the next activation.
func (s *Service) Reset(ctx context.Context, keyCodes []string) (*BatchResult, error) {
	count, err := s.applyBatch(ctx, "reset", keyCodes, func(ctx context.Context, licenses *models.LicenseStore, key string) (bool, error) {
		return licenses.Reset(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return &BatchResult{Count: count, Message: fmt.Sprintf("Reset %d key(s)", count)}, nil
}

// Recover lifts key-level bans. Keys that are not banned are left alone.
func (s *Service) Recover(ctx context.Context, keyCodes []string) (*BatchResult, error) {
	count, err := s.applyBatch(ctx, "recover", keyCodes, func(ctx context.Context, licenses *models.LicenseStore, key string) (bool, error) {
		return licenses.Recover(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return &BatchResult{Count: count, Message: fmt.Sprintf("Recovered %d key(s)", count)}, nil
}

func (s *Service) Delete(ctx context.Context, keyCodes []string) (*BatchResult, error) {
	count, err := s.applyBatch(ctx, "delete", keyCodes, func(ctx context.Context, licenses *models.LicenseStore, key string) (bool, error) {
		return licenses.Delete(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return &BatchResult{Count: count, Message: fmt.Sprintf("Deleted %d key(s)", count)}, nil
}

// Ban marks keys banned and records reason in their note.
func (s *Service) Ban(ctx context.Context, keyCodes []string, reason string) (*BatchResult, error) {
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = defaultBanReason
	}

	count, err := s.applyBatch(ctx, "ban", keyCodes, func(ctx context.Context, licenses *models.LicenseStore, key string) (bool, error) {
		return licenses.Ban(ctx, key, reason)
	})
	if err != nil {
		return nil, err
	}
	return &BatchResult{Count: count, Message: fmt.Sprintf("Banned %d key(s)", count)}, nil
}

// BanAccount blacklists every hwid bound to the account's keys and bans the
// keys themselves. An account without keys is not an error.
func (s *Service) BanAccount(ctx context.Context, accountID, reason string) (*BanAccountResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, invalidRequest("Missing discord_id")
	}
	reason = strings.TrimSpace(reason)

	blacklistReason := fmt.Sprintf("Banned account %s - %s", accountID, orDefault(reason, "No reason"))
	keyReason := orDefault(reason, defaultAccountBanReason)

	result := &BanAccountResult{AccountID: accountID}
	now := s.clock()

	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		licenses := models.NewLicenseStore(tx)
		blacklist := models.NewBlacklistStore(tx)

		owned, err := licenses.ListByAccount(ctx, accountID)
		if err != nil {
			return err
		}

		seen := make(map[string]struct{})
		for _, l := range owned {
			if hwid := l.BoundHWID(); hwid != "" {
				if _, dup := seen[hwid]; !dup {
					seen[hwid] = struct{}{}
					if _, err := blacklist.Add(ctx, hwid, blacklistReason, now); err != nil {
						return err
					}
					result.HWIDsBanned++
				}
			}

			banned, err := licenses.Ban(ctx, l.KeyCode, keyReason)
			if err != nil {
				return err
			}
			if banned {
				result.KeysRevoked++
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("account", accountID).Msg("Failed to ban account")
		return nil, internal(err)
	}

	log.Info().
		Str("account", accountID).
		Int("keysRevoked", result.KeysRevoked).
		Int("hwidsBanned", result.HWIDsBanned).
		Msg("Account banned")

	return result, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
