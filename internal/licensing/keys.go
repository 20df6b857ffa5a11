// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/models"
)

const defaultSearchLimit = 10

// Generate inserts up to req.Count new unused keys. A colliding key code is
// retried once and then skipped, so the result may hold fewer keys than asked.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.Count < 1 {
		req.Count = 1
	}
	if req.Count > maxGenerateCount {
		return nil, invalidRequest("Cannot generate more than %d keys at once", maxGenerateCount)
	}
	if req.DurationHours < 0 {
		return nil, invalidRequest("Duration must not be negative")
	}

	var owner *string
	if account := strings.TrimSpace(req.OwnerAccount); account != "" {
		owner = &account
	}

	now := s.clock()
	keys := make([]string, 0, req.Count)

	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		licenses := models.NewLicenseStore(tx)
		for i := 0; i < req.Count; i++ {
			key, err := s.insertKey(ctx, licenses, req.DurationHours, req.Note, owner, now)
			if err != nil {
				return err
			}
			if key != "" {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("count", req.Count).Msg("Failed to generate keys")
		return nil, internal(err)
	}

	log.Info().
		Int("requested", req.Count).
		Int("generated", len(keys)).
		Int("durationHours", req.DurationHours).
		Bool("preBound", owner != nil).
		Msg("Generated license keys")

	return &GenerateResult{Keys: keys, Count: len(keys)}, nil
}

// insertKey tries two candidate codes and returns "" when both collide.
func (s *Service) insertKey(ctx context.Context, licenses *models.LicenseStore, durationHours int, note string, owner *string, now time.Time) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		key, err := s.generate()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to generate key code")
			continue
		}

		inserted, err := licenses.Insert(ctx, &models.License{
			KeyCode:       key,
			Status:        models.LicenseStatusUnused,
			DurationHours: durationHours,
			Note:          note,
			DiscordID:     owner,
			CreatedAt:     now,
		})
		if err != nil {
			return "", err
		}
		if inserted {
			return key, nil
		}

		log.Debug().Str("key", maskKey(key)).Int("attempt", attempt+1).Msg("Key code collision")
	}

	return "", nil
}

// Claim binds a key to an account, enforcing one key per account.
func (s *Service) Claim(ctx context.Context, keyCode, accountID string) (*ClaimResult, error) {
	keyCode = strings.TrimSpace(keyCode)
	accountID = strings.TrimSpace(accountID)
	if keyCode == "" || accountID == "" {
		return nil, invalidRequest("Missing key or discord_id")
	}

	result := &ClaimResult{KeyCode: keyCode, AccountID: accountID}

	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		licenses := models.NewLicenseStore(tx)

		license, err := licenses.Get(ctx, keyCode)
		if errors.Is(err, models.ErrLicenseNotFound) {
			return ErrInvalidKey
		}
		if err != nil {
			return err
		}

		owned, err := licenses.KeyCodesByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		for _, k := range owned {
			if k != keyCode {
				return ErrAccountHasOtherKey
			}
		}

		owner := license.Owner()
		if owner != "" && owner != accountID {
			return ErrAlreadyClaimedByOther
		}
		if owner == accountID {
			result.AlreadyLinked = true
			result.Message = "Key is already linked to your account."
			return nil
		}

		bound, err := licenses.SetOwner(ctx, keyCode, accountID)
		if err != nil {
			return err
		}
		if !bound {
			return ErrAlreadyClaimedByOther
		}
		result.Message = "Discord Account Linked"
		return nil
	})
	if err != nil {
		if CodeOf(err) == CodeInternal {
			log.Error().Err(err).Str("key", maskKey(keyCode)).Msg("Failed to claim key")
			return nil, internal(err)
		}
		log.Debug().Err(err).Str("key", maskKey(keyCode)).Str("account", accountID).Msg("Claim rejected")
		return nil, err
	}

	if !result.AlreadyLinked {
		log.Info().Str("key", maskKey(keyCode)).Str("account", accountID).Msg("Key claimed")
	}

	return result, nil
}

func (s *Service) Info(ctx context.Context, keyCode string) (*models.License, error) {
	keyCode = strings.TrimSpace(keyCode)
	if keyCode == "" {
		return nil, invalidRequest("Missing key")
	}

	license, err := models.NewLicenseStore(s.db.Conn()).Get(ctx, keyCode)
	if errors.Is(err, models.ErrLicenseNotFound) {
		return nil, NewError(CodeNotFound, "Key not found")
	}
	if err != nil {
		return nil, internal(err)
	}
	return license, nil
}

// List returns every key, newest first, annotated with blacklist status.
func (s *Service) List(ctx context.Context) ([]*models.License, error) {
	licenses, err := models.NewLicenseStore(s.db.Conn()).List(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return licenses, nil
}

func (s *Service) ListByAccount(ctx context.Context, accountID string) ([]*models.License, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, invalidRequest("Missing discord_id")
	}

	licenses, err := models.NewLicenseStore(s.db.Conn()).ListByAccount(ctx, accountID)
	if err != nil {
		return nil, internal(err)
	}
	return licenses, nil
}

type searchMatch struct {
	license *models.License
	score   int
}

// Search finds keys whose code, device name or note match query. Substring
// matches rank ahead of fuzzy matches on the key code and device name.
func (s *Service) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidRequest("Missing search query")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	licenses, err := models.NewLicenseStore(s.db.Conn()).List(ctx)
	if err != nil {
		return nil, internal(err)
	}

	needle := strings.ToLower(query)
	var matches []searchMatch
	for _, l := range licenses {
		if score, ok := matchLicense(l, needle); ok {
			matches = append(matches, searchMatch{license: l, score: score})
		}
	}

	// Stable keeps newest-first order within equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score < matches[j].score
	})

	result := &SearchResult{Query: query, Total: len(matches), Matches: make([]*models.License, 0, limit)}
	for i, m := range matches {
		if i >= limit {
			break
		}
		result.Matches = append(result.Matches, m.license)
	}
	return result, nil
}

func matchLicense(l *models.License, needle string) (int, bool) {
	code := strings.ToLower(l.KeyCode)
	device := ""
	if l.DeviceName != nil {
		device = strings.ToLower(*l.DeviceName)
	}
	note := strings.ToLower(l.Note)

	switch {
	case code == needle:
		return 0, true
	case strings.Contains(code, needle):
		return 1, true
	case device != "" && strings.Contains(device, needle):
		return 2, true
	case note != "" && strings.Contains(note, needle):
		return 2, true
	}

	best := -1
	for _, candidate := range []string{code, device} {
		if candidate == "" || !fuzzy.MatchNormalizedFold(needle, candidate) {
			continue
		}
		rank := fuzzy.RankMatchNormalizedFold(needle, candidate)
		if rank >= 0 && rank < 10 && (best < 0 || rank < best) {
			best = rank
		}
	}
	if best >= 0 {
		return 3 + best, true
	}
	return 0, false
}
