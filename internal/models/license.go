// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/pillowplayer/pillowauth/internal/database"
)

var ErrLicenseNotFound = errors.New("license not found")

// LicenseStatus constants. Active and expired are derived from used + expires_at.
const (
	LicenseStatusUnused = "unused"
	LicenseStatusUsed   = "used"
	LicenseStatusBanned = "banned"
)

// License is one issued key.
type License struct {
	KeyCode       string     `json:"key_code" yaml:"key_code"`
	Status        string     `json:"status" yaml:"status"`
	HWID          *string    `json:"hwid" yaml:"hwid"`
	DeviceName    *string    `json:"device_name" yaml:"device_name"`
	DurationHours int        `json:"duration_hours" yaml:"duration_hours"`
	ExpiresAt     *time.Time `json:"expires_at" yaml:"expires_at"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	RedeemedAt    *time.Time `json:"redeemed_at" yaml:"redeemed_at"`
	LastSeen      *time.Time `json:"last_seen" yaml:"last_seen"`
	RunCount      int        `json:"run_count" yaml:"run_count"`
	IPAddress     *string    `json:"ip_address" yaml:"ip_address"`
	Note          string     `json:"note" yaml:"note"`
	DiscordID     *string    `json:"discord_id" yaml:"discord_id"`

	// IsBanned reports whether the bound hwid is on the blacklist.
	IsBanned bool `json:"is_banned" yaml:"is_banned"`
}

// Owner returns the bound account id, or "" when the key is unclaimed.
func (l *License) Owner() string {
	if l.DiscordID == nil {
		return ""
	}
	return *l.DiscordID
}

// BoundHWID returns the bound hardware id, or "" when none is bound.
func (l *License) BoundHWID() string {
	if l.HWID == nil {
		return ""
	}
	return *l.HWID
}

// IsLifetime reports whether the key never expires.
func (l *License) IsLifetime() bool {
	return l.DurationHours <= 0
}

// IsExpired reports whether the expiry instant has passed.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// IsActive reports whether the key is used and not yet expired.
func (l *License) IsActive(now time.Time) bool {
	return l.Status == LicenseStatusUsed && !l.IsExpired(now)
}

type LicenseStore struct {
	q database.Querier
}

func NewLicenseStore(q database.Querier) *LicenseStore {
	return &LicenseStore{q: q}
}

const licenseColumns = `
	l.key_code, COALESCE(l.status, 'unused'), l.hwid, l.device_name,
	COALESCE(l.duration_hours, 0), l.expires_at, l.created_at, l.redeemed_at,
	l.last_seen, COALESCE(l.run_count, 0), l.ip_address, COALESCE(l.note, ''),
	l.discord_id,
	EXISTS (SELECT 1 FROM blacklist b WHERE b.hwid = l.hwid) AS is_banned`

func scanLicense(row interface{ Scan(dest ...any) error }) (*License, error) {
	license := &License{}
	var createdAt *time.Time
	err := row.Scan(
		&license.KeyCode,
		&license.Status,
		&license.HWID,
		&license.DeviceName,
		&license.DurationHours,
		&license.ExpiresAt,
		&createdAt,
		&license.RedeemedAt,
		&license.LastSeen,
		&license.RunCount,
		&license.IPAddress,
		&license.Note,
		&license.DiscordID,
		&license.IsBanned,
	)
	if err != nil {
		return nil, err
	}
	if createdAt != nil {
		license.CreatedAt = *createdAt
	}
	return license, nil
}

func (s *LicenseStore) queryLicenses(ctx context.Context, query string, args ...any) ([]*License, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query licenses")
	}
	defer rows.Close()

	licenses := make([]*License, 0)
	for rows.Next() {
		license, err := scanLicense(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan license")
		}
		licenses = append(licenses, license)
	}

	return licenses, errors.Wrap(rows.Err(), "failed to iterate licenses")
}

// Insert stores a new unused key. It reports false without error when the
// key code already exists.
func (s *LicenseStore) Insert(ctx context.Context, license *License) (bool, error) {
	query := `
		INSERT OR IGNORE INTO licenses (key_code, status, hwid, device_name, duration_hours, note, discord_id, created_at, run_count)
		VALUES (?, ?, NULL, NULL, ?, ?, ?, ?, 0)
	`

	result, err := s.q.ExecContext(ctx, query,
		license.KeyCode,
		license.Status,
		license.DurationHours,
		license.Note,
		nullable(license.DiscordID),
		license.CreatedAt,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to insert license %s", license.KeyCode)
	}

	return affected(result)
}

func (s *LicenseStore) Get(ctx context.Context, keyCode string) (*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses l WHERE l.key_code = ?`

	license, err := scanLicense(s.q.QueryRowContext(ctx, query, keyCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLicenseNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get license %s", keyCode)
	}

	return license, nil
}

// List returns every key, newest first.
func (s *LicenseStore) List(ctx context.Context) ([]*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses l ORDER BY l.created_at DESC, l.key_code`
	return s.queryLicenses(ctx, query)
}

func (s *LicenseStore) ListByAccount(ctx context.Context, discordID string) ([]*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses l WHERE l.discord_id = ? ORDER BY l.created_at DESC, l.key_code`
	return s.queryLicenses(ctx, query, discordID)
}

// RecentlyRedeemed returns the most recently activated keys that are still in use.
func (s *LicenseStore) RecentlyRedeemed(ctx context.Context, limit int) ([]*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses l
		WHERE l.status = 'used' AND l.redeemed_at IS NOT NULL
		ORDER BY l.redeemed_at DESC LIMIT ?`
	return s.queryLicenses(ctx, query, limit)
}

func (s *LicenseStore) CountByAccount(ctx context.Context, discordID string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM licenses WHERE discord_id = ?", discordID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count account licenses")
	}
	return count, nil
}

// KeyCodesByAccount returns the key codes bound to an account.
func (s *LicenseStore) KeyCodesByAccount(ctx context.Context, discordID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT key_code FROM licenses WHERE discord_id = ? ORDER BY key_code", discordID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query account keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "failed to scan key code")
		}
		keys = append(keys, key)
	}

	return keys, errors.Wrap(rows.Err(), "failed to iterate account keys")
}

// SetOwner binds an account to a key that is unowned or already owned by the
// same account.
func (s *LicenseStore) SetOwner(ctx context.Context, keyCode, discordID string) (bool, error) {
	query := `
		UPDATE licenses SET discord_id = ?
		WHERE key_code = ? AND (discord_id IS NULL OR discord_id = '' OR discord_id = ?)
	`
	result, err := s.q.ExecContext(ctx, query, discordID, keyCode, discordID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to set owner of %s", keyCode)
	}
	return affected(result)
}

// Activation carries the values written on the unused -> used transition.
type Activation struct {
	HWID       string
	DeviceName *string
	ExpiresAt  *time.Time
	At         time.Time
	IPAddress  string
}

// Activate performs the one-time unused -> used transition. It reports false
// when the row was no longer unused.
func (s *LicenseStore) Activate(ctx context.Context, keyCode string, a Activation) (bool, error) {
	query := `
		UPDATE licenses
		SET status = 'used', hwid = ?, device_name = ?, expires_at = ?, redeemed_at = ?, last_seen = ?, ip_address = ?
		WHERE key_code = ? AND status = 'unused'
	`
	result, err := s.q.ExecContext(ctx, query, a.HWID, nullable(a.DeviceName), nullable(a.ExpiresAt), a.At, a.At, a.IPAddress, keyCode)
	if err != nil {
		return false, errors.Wrapf(err, "failed to activate %s", keyCode)
	}
	return affected(result)
}

// RecordRun bumps the run counter of a used key bound to hwid.
func (s *LicenseStore) RecordRun(ctx context.Context, keyCode, hwid string, at time.Time, ipAddress string) (bool, error) {
	query := `
		UPDATE licenses
		SET run_count = COALESCE(run_count, 0) + 1, last_seen = ?, ip_address = ?
		WHERE key_code = ? AND status = 'used' AND hwid = ?
	`
	result, err := s.q.ExecContext(ctx, query, at, ipAddress, keyCode, hwid)
	if err != nil {
		return false, errors.Wrapf(err, "failed to record run for %s", keyCode)
	}
	return affected(result)
}

// Reset returns a key to unused and clears its hardware binding.
func (s *LicenseStore) Reset(ctx context.Context, keyCode string) (bool, error) {
	result, err := s.q.ExecContext(ctx,
		"UPDATE licenses SET status = 'unused', hwid = NULL, device_name = NULL WHERE key_code = ?", keyCode)
	if err != nil {
		return false, errors.Wrapf(err, "failed to reset %s", keyCode)
	}
	return affected(result)
}

// Ban marks a key banned and appends the reason to its note.
func (s *LicenseStore) Ban(ctx context.Context, keyCode, reason string) (bool, error) {
	result, err := s.q.ExecContext(ctx,
		"UPDATE licenses SET status = 'banned', note = COALESCE(note, '') || ' [BANNED: ' || ? || ']' WHERE key_code = ?",
		reason, keyCode)
	if err != nil {
		return false, errors.Wrapf(err, "failed to ban %s", keyCode)
	}
	return affected(result)
}

// Recover lifts a key-level ban, restoring used or unused depending on
// whether a hwid is still bound.
func (s *LicenseStore) Recover(ctx context.Context, keyCode string) (bool, error) {
	query := `
		UPDATE licenses
		SET status = CASE WHEN hwid IS NOT NULL THEN 'used' ELSE 'unused' END,
		    note = COALESCE(note, '') || ' [RECOVERED]'
		WHERE key_code = ? AND status = 'banned'
	`
	result, err := s.q.ExecContext(ctx, query, keyCode)
	if err != nil {
		return false, errors.Wrapf(err, "failed to recover %s", keyCode)
	}
	return affected(result)
}

func (s *LicenseStore) Delete(ctx context.Context, keyCode string) (bool, error) {
	result, err := s.q.ExecContext(ctx, "DELETE FROM licenses WHERE key_code = ?", keyCode)
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete %s", keyCode)
	}
	return affected(result)
}

// nullable turns a nil pointer into SQL NULL and dereferences anything else.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return rows > 0, nil
}
