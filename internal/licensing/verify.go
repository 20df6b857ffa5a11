// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/models"
)

// Verify checks a key presented from a device and performs the first
// activation when the key is unused. Rejections are reported through the
// result; the returned error is reserved for malformed requests and store
// failures.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	req.KeyCode = strings.TrimSpace(req.KeyCode)
	req.HWID = strings.TrimSpace(req.HWID)
	req.DeviceName = strings.TrimSpace(req.DeviceName)
	if req.KeyCode == "" || req.HWID == "" {
		return nil, invalidRequest("Missing key or hwid")
	}

	now := s.clock()
	event := newVerifyEvent(req, now)

	var result *VerifyResult
	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.verifyInTx(ctx, tx, req, now, &event)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("key", maskKey(req.KeyCode)).Msg("Verification failed")
		return nil, internal(err)
	}

	event.Outcome = result.Result
	event.Reason = result.Reason
	s.notify(ctx, event)

	logEvent := log.Info()
	if !result.Valid {
		logEvent = log.Warn().Str("reason", string(result.Reason))
	}
	logEvent.
		Str("key", maskKey(req.KeyCode)).
		Str("account", result.AccountID).
		Str("device", req.DeviceName).
		Str("outcome", string(result.Result)).
		Msg("Key verification")

	return result, nil
}

func (s *Service) verifyInTx(ctx context.Context, tx *sql.Tx, req VerifyRequest, now time.Time, event *VerifyEvent) (*VerifyResult, error) {
	licenses := models.NewLicenseStore(tx)

	banned, err := models.NewBlacklistStore(tx).Contains(ctx, req.HWID)
	if err != nil {
		return nil, err
	}
	if banned {
		return rejected(ErrHWIDBanned, ""), nil
	}

	// An unused row can be activated by a concurrent writer between the read
	// and the conditional update, so the decision is re-made on a fresh read.
	for attempt := 0; attempt < 2; attempt++ {
		license, err := licenses.Get(ctx, req.KeyCode)
		if errors.Is(err, models.ErrLicenseNotFound) {
			return rejected(ErrInvalidKey, ""), nil
		}
		if err != nil {
			return nil, err
		}

		owner := license.Owner()
		if owner == "" {
			return rejected(ErrNotClaimed, ""), nil
		}

		event.AccountID = owner
		if event.AccountKeyCount, err = licenses.CountByAccount(ctx, owner); err != nil {
			return nil, err
		}

		if license.IsExpired(now) {
			return rejected(ErrExpired, owner), nil
		}

		switch license.Status {
		case models.LicenseStatusUnused:
			activation := models.Activation{
				HWID:      req.HWID,
				At:        now,
				IPAddress: req.IPAddress,
			}
			if req.DeviceName != "" {
				activation.DeviceName = &req.DeviceName
			}
			if !license.IsLifetime() {
				expires := now.Add(time.Duration(license.DurationHours) * time.Hour)
				activation.ExpiresAt = &expires
			}

			ok, err := licenses.Activate(ctx, req.KeyCode, activation)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			return &VerifyResult{
				Result:    OutcomeActivated,
				Valid:     true,
				Message:   "Key activated",
				AccountID: owner,
				ExpiresAt: activation.ExpiresAt,
			}, nil

		case models.LicenseStatusUsed:
			if license.BoundHWID() != req.HWID {
				event.ExpectedHWID = license.BoundHWID()
				return rejected(ErrHWIDMismatch, owner), nil
			}

			if _, err := licenses.RecordRun(ctx, req.KeyCode, req.HWID, now, req.IPAddress); err != nil {
				return nil, err
			}

			return &VerifyResult{
				Result:    OutcomeReaccepted,
				Valid:     true,
				Message:   "Welcome back",
				AccountID: owner,
				ExpiresAt: license.ExpiresAt,
			}, nil

		default:
			return rejected(ErrKeyBanned, owner), nil
		}
	}

	return nil, errors.New("license changed concurrently during activation")
}

func rejected(reason *Error, accountID string) *VerifyResult {
	return &VerifyResult{
		Result:    OutcomeRejected,
		Reason:    reason.Code,
		Message:   reason.Message,
		AccountID: accountID,
	}
}
