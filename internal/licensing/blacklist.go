// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/models"
)

// BlacklistAdd bans a hardware fingerprint. Adding an existing entry keeps
// the original reason and reports Changed=false.
func (s *Service) BlacklistAdd(ctx context.Context, hwid, reason string) (*BlacklistResult, error) {
	hwid = strings.TrimSpace(hwid)
	if hwid == "" {
		return nil, invalidRequest("Missing hwid")
	}
	reason = orDefault(strings.TrimSpace(reason), defaultBanReason)

	added, err := models.NewBlacklistStore(s.db.Conn()).Add(ctx, hwid, reason, s.clock())
	if err != nil {
		log.Error().Err(err).Msg("Failed to add blacklist entry")
		return nil, internal(err)
	}

	result := &BlacklistResult{HWID: hwid, Changed: added, Message: "HWID already blacklisted"}
	if added {
		result.Message = "HWID blacklisted"
		log.Info().Str("hwid", hwid).Str("reason", reason).Msg("HWID blacklisted")
	}
	return result, nil
}

// BlacklistRemove lifts a hardware ban; removing an absent entry is a no-op.
func (s *Service) BlacklistRemove(ctx context.Context, hwid string) (*BlacklistResult, error) {
	hwid = strings.TrimSpace(hwid)
	if hwid == "" {
		return nil, invalidRequest("Missing hwid")
	}

	removed, err := models.NewBlacklistStore(s.db.Conn()).Remove(ctx, hwid)
	if err != nil {
		log.Error().Err(err).Msg("Failed to remove blacklist entry")
		return nil, internal(err)
	}

	result := &BlacklistResult{HWID: hwid, Changed: removed, Message: "HWID was not blacklisted"}
	if removed {
		result.Message = "HWID removed from blacklist"
		log.Info().Str("hwid", hwid).Msg("HWID unbanned")
	}
	return result, nil
}

func (s *Service) Blacklist(ctx context.Context) ([]*models.BlacklistEntry, error) {
	entries, err := models.NewBlacklistStore(s.db.Conn()).List(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return entries, nil
}
