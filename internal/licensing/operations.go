// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"time"

	"github.com/pillowplayer/pillowauth/internal/models"
)

// Operations is the full request/reply surface. The Service implements it
// against the database; the HTTP gateway client and the degraded-mode
// executor implement it for remote callers.
type Operations interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	Claim(ctx context.Context, keyCode, accountID string) (*ClaimResult, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)

	Info(ctx context.Context, keyCode string) (*models.License, error)
	List(ctx context.Context) ([]*models.License, error)
	Search(ctx context.Context, query string, limit int) (*SearchResult, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.License, error)

	Reset(ctx context.Context, keyCodes []string) (*BatchResult, error)
	Recover(ctx context.Context, keyCodes []string) (*BatchResult, error)
	Delete(ctx context.Context, keyCodes []string) (*BatchResult, error)
	Ban(ctx context.Context, keyCodes []string, reason string) (*BatchResult, error)
	BanAccount(ctx context.Context, accountID, reason string) (*BanAccountResult, error)

	BlacklistAdd(ctx context.Context, hwid, reason string) (*BlacklistResult, error)
	BlacklistRemove(ctx context.Context, hwid string) (*BlacklistResult, error)
	Blacklist(ctx context.Context) ([]*models.BlacklistEntry, error)

	Balance(ctx context.Context, accountID string) (*CreditResult, error)
	Adjust(ctx context.Context, accountID string, action CreditAction, amount int) (*CreditResult, error)
	Redeem(ctx context.Context, accountID string, cost int) (*RedeemResult, error)

	Stats(ctx context.Context) (*Stats, error)
}

type GenerateRequest struct {
	Count         int    `json:"count"`
	DurationHours int    `json:"duration_hours"`
	Note          string `json:"note,omitempty"`
	OwnerAccount  string `json:"owner_account,omitempty"`
}

type GenerateResult struct {
	Keys  []string `json:"keys" yaml:"keys"`
	Count int      `json:"count" yaml:"count"`
}

type ClaimResult struct {
	KeyCode       string `json:"key_code" yaml:"key_code"`
	AccountID     string `json:"account_id" yaml:"account_id"`
	AlreadyLinked bool   `json:"already_linked" yaml:"already_linked"`
	Message       string `json:"message" yaml:"message"`
}

type VerifyOutcome string

const (
	OutcomeActivated  VerifyOutcome = "activated"
	OutcomeReaccepted VerifyOutcome = "reaccepted"
	OutcomeRejected   VerifyOutcome = "rejected"
)

type VerifyRequest struct {
	KeyCode    string `json:"key"`
	HWID       string `json:"hwid"`
	DeviceName string `json:"device_name,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

// VerifyResult is returned for every verification, accepted or not. Domain
// rejections are reported here rather than as errors.
type VerifyResult struct {
	Result    VerifyOutcome `json:"result" yaml:"result"`
	Valid     bool          `json:"valid" yaml:"valid"`
	Reason    Code          `json:"reason,omitempty" yaml:"reason,omitempty"`
	Message   string        `json:"message" yaml:"message"`
	AccountID string        `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

type SearchResult struct {
	Query   string            `json:"query" yaml:"query"`
	Total   int               `json:"total" yaml:"total"`
	Matches []*models.License `json:"matches" yaml:"matches"`
}

type BatchResult struct {
	Count   int    `json:"count" yaml:"count"`
	Message string `json:"message" yaml:"message"`
}

type BanAccountResult struct {
	AccountID   string `json:"account_id" yaml:"account_id"`
	KeysRevoked int    `json:"keys_revoked" yaml:"keys_revoked"`
	HWIDsBanned int    `json:"hwids_banned" yaml:"hwids_banned"`
}

type BlacklistResult struct {
	HWID    string `json:"hwid" yaml:"hwid"`
	Changed bool   `json:"changed" yaml:"changed"`
	Message string `json:"message" yaml:"message"`
}

type CreditAction string

const (
	CreditAdd    CreditAction = "add"
	CreditRemove CreditAction = "remove"
	CreditSet    CreditAction = "set"
)

type CreditResult struct {
	AccountID string `json:"discord_id" yaml:"discord_id"`
	Balance   int    `json:"balance" yaml:"balance"`
	Message   string `json:"message,omitempty" yaml:"message,omitempty"`
}

type RedeemResult struct {
	KeyCode   string `json:"key_code" yaml:"key_code"`
	AccountID string `json:"discord_id" yaml:"discord_id"`
	Cost      int    `json:"cost" yaml:"cost"`
	Balance   int    `json:"balance" yaml:"balance"`
	ReceiptID string `json:"receipt_id" yaml:"receipt_id"`
}

// KeySummary is the short form of a key used by Stats.
type KeySummary struct {
	KeyCode       string     `json:"key_code" yaml:"key_code"`
	Status        string     `json:"status" yaml:"status"`
	DurationHours int        `json:"duration_hours" yaml:"duration_hours"`
	DeviceName    *string    `json:"device_name" yaml:"device_name"`
	ExpiresAt     *time.Time `json:"expires_at" yaml:"expires_at"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	RedeemedAt    *time.Time `json:"redeemed_at" yaml:"redeemed_at"`
}

type Stats struct {
	Total            int          `json:"total" yaml:"total"`
	Used             int          `json:"used" yaml:"used"`
	Unused           int          `json:"unused" yaml:"unused"`
	Banned           int          `json:"banned" yaml:"banned"`
	Active           int          `json:"active" yaml:"active"`
	Expired          int          `json:"expired" yaml:"expired"`
	Lifetime         int          `json:"lifetime" yaml:"lifetime"`
	Limited          int          `json:"limited" yaml:"limited"`
	Created24h       int          `json:"created_24h" yaml:"created_24h"`
	RecentKeys       []KeySummary `json:"recent_keys" yaml:"recent_keys"`
	RecentlyRedeemed []KeySummary `json:"recently_redeemed" yaml:"recently_redeemed"`
}
