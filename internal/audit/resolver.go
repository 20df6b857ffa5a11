// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	discordAPIBase = "https://discord.com/api/v10"
	nameCacheTTL   = time.Hour
)

// DiscordResolver looks up Discord display names with a bot token and caches
// them in memory.
type DiscordResolver struct {
	token   string
	baseURL string
	client  *http.Client
	cache   *ristretto.Cache
}

func NewDiscordResolver(token string) (*DiscordResolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create name cache: %w", err)
	}

	return &DiscordResolver{
		token:   token,
		baseURL: discordAPIBase,
		client:  &http.Client{Timeout: defaultTimeout},
		cache:   cache,
	}, nil
}

type discordUser struct {
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

func (r *DiscordResolver) ResolveName(ctx context.Context, accountID string) (string, error) {
	if cached, ok := r.cache.Get(accountID); ok {
		if name, ok := cached.(string); ok {
			return name, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/users/"+url.PathEscape(accountID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bot "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discord returned status %d for user %s", resp.StatusCode, accountID)
	}

	var user discordUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("failed to decode discord user: %w", err)
	}

	name := strings.TrimSpace(user.GlobalName)
	if name == "" {
		name = user.Username
	}

	r.cache.SetWithTTL(accountID, name, int64(len(name)+1), nameCacheTTL)
	return name, nil
}

// Close releases the cache.
func (r *DiscordResolver) Close() {
	r.cache.Close()
}
