// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package client executes licensing operations for remote callers, either
// through the HTTP gateway or directly against the database file.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pillowplayer/pillowauth/internal/api/handlers"
	"github.com/pillowplayer/pillowauth/internal/api/middleware"
	"github.com/pillowplayer/pillowauth/internal/licensing"
	"github.com/pillowplayer/pillowauth/internal/models"
)

// ErrUnreachable marks failures where no response came back from the
// gateway: refused connections, DNS failures and timeouts.
var ErrUnreachable = errors.New("gateway unreachable")

// HTTP implements licensing.Operations against the REST gateway.
type HTTP struct {
	baseURL string
	secret  string
	client  *http.Client
}

var _ licensing.Operations = (*HTTP)(nil)

func NewHTTP(baseURL, secret string, timeout time.Duration) *HTTP {
	return &HTTP{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}
}

// do sends one request. Responses with a status in accept are decoded into
// out; any other status is decoded as an error body.
func (c *HTTP) do(ctx context.Context, method, path string, body, out any, accept ...int) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set(middleware.SecretHeader, c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if len(accept) == 0 {
		accept = []int{http.StatusOK, http.StatusCreated}
	}
	for _, status := range accept {
		if resp.StatusCode != status {
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "failed to decode %s %s response", method, path)
		}
		return nil
	}

	var apiErr handlers.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
		return errors.Errorf("gateway returned status %d for %s %s", resp.StatusCode, method, path)
	}
	return licensing.NewError(apiErr.Code, "%s", apiErr.Error)
}

func (c *HTTP) Generate(ctx context.Context, req licensing.GenerateRequest) (*licensing.GenerateResult, error) {
	var out licensing.GenerateResult
	if err := c.do(ctx, http.MethodPost, "/api/keys/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) Claim(ctx context.Context, keyCode, accountID string) (*licensing.ClaimResult, error) {
	var out licensing.ClaimResult
	body := handlers.ClaimRequest{Key: keyCode, AccountID: accountID}
	if err := c.do(ctx, http.MethodPost, "/api/keys/claim", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) Verify(ctx context.Context, req licensing.VerifyRequest) (*licensing.VerifyResult, error) {
	var out licensing.VerifyResult
	if err := c.do(ctx, http.MethodPost, "/api/keys/verify", req, &out, http.StatusOK, http.StatusForbidden); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) Info(ctx context.Context, keyCode string) (*models.License, error) {
	if strings.TrimSpace(keyCode) == "" {
		return nil, missing("Missing key")
	}
	var out models.License
	if err := c.do(ctx, http.MethodGet, "/api/keys/"+url.PathEscape(keyCode), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) List(ctx context.Context) ([]*models.License, error) {
	var out []*models.License
	if err := c.do(ctx, http.MethodGet, "/api/keys", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) Search(ctx context.Context, query string, limit int) (*licensing.SearchResult, error) {
	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var out licensing.SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/keys/search?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) ListByAccount(ctx context.Context, accountID string) ([]*models.License, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, missing("Missing discord_id")
	}
	var out []*models.License
	if err := c.do(ctx, http.MethodGet, accountPath(accountID)+"/keys", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) batch(ctx context.Context, action string, req handlers.BatchRequest) (*licensing.BatchResult, error) {
	var out licensing.BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/keys/"+action, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) Reset(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	return c.batch(ctx, "reset", handlers.BatchRequest{Keys: keyCodes})
}

func (c *HTTP) Recover(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	return c.batch(ctx, "recover", handlers.BatchRequest{Keys: keyCodes})
}

func (c *HTTP) Delete(ctx context.Context, keyCodes []string) (*licensing.BatchResult, error) {
	return c.batch(ctx, "delete", handlers.BatchRequest{Keys: keyCodes})
}

func (c *HTTP) Ban(ctx context.Context, keyCodes []string, reason string) (*licensing.BatchResult, error) {
	return c.batch(ctx, "ban", handlers.BatchRequest{Keys: keyCodes, Reason: reason})
}

func (c *HTTP) BanAccount(ctx context.Context, accountID, reason string) (*licensing.BanAccountResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, missing("Missing discord_id")
	}
	var out licensing.BanAccountResult
	body := handlers.BanAccountRequest{Reason: reason}
	if err := c.do(ctx, http.MethodPost, accountPath(accountID)+"/ban", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) BlacklistAdd(ctx context.Context, hwid, reason string) (*licensing.BlacklistResult, error) {
	var out licensing.BlacklistResult
	body := handlers.BlacklistRequest{HWID: hwid, Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/api/blacklist", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) BlacklistRemove(ctx context.Context, hwid string) (*licensing.BlacklistResult, error) {
	if strings.TrimSpace(hwid) == "" {
		return nil, missing("Missing hwid")
	}
	var out licensing.BlacklistResult
	if err := c.do(ctx, http.MethodDelete, "/api/blacklist/"+url.PathEscape(hwid), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) Blacklist(ctx context.Context) ([]*models.BlacklistEntry, error) {
	var out []*models.BlacklistEntry
	if err := c.do(ctx, http.MethodGet, "/api/blacklist", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) Balance(ctx context.Context, accountID string) (*licensing.CreditResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, missing("Missing discord_id")
	}
	var out licensing.CreditResult
	if err := c.do(ctx, http.MethodGet, creditPath(accountID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) Adjust(ctx context.Context, accountID string, action licensing.CreditAction, amount int) (*licensing.CreditResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, missing("Missing discord_id")
	}
	var out licensing.CreditResult
	body := handlers.AdjustRequest{Action: action, Amount: amount}
	if err := c.do(ctx, http.MethodPost, creditPath(accountID)+"/adjust", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) Redeem(ctx context.Context, accountID string, cost int) (*licensing.RedeemResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, missing("Missing discord_id")
	}
	var out licensing.RedeemResult
	body := handlers.RedeemRequest{Cost: cost}
	if err := c.do(ctx, http.MethodPost, creditPath(accountID)+"/redeem", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) Stats(ctx context.Context) (*licensing.Stats, error) {
	var out licensing.Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// missing reports an empty path parameter the same way the service does;
// the request would otherwise never reach a route.
func missing(message string) error {
	return licensing.NewError(licensing.CodeInvalidRequest, "%s", message)
}

func accountPath(accountID string) string {
	return "/api/accounts/" + url.PathEscape(accountID)
}

func creditPath(accountID string) string {
	return "/api/credits/" + url.PathEscape(accountID)
}
