// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package audit

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) *DiscordResolver {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	resolver, err := NewDiscordResolver("bot-token")
	require.NoError(t, err)
	t.Cleanup(resolver.Close)

	resolver.baseURL = server.URL
	resolver.client = server.Client()
	return resolver
}

func TestDiscordResolver_ResolveName(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "global name preferred", body: `{"username":"alice","global_name":"Alice A"}`, expected: "Alice A"},
		{name: "falls back to username", body: `{"username":"bob","global_name":null}`, expected: "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/users/1234", r.URL.Path)
				assert.Equal(t, "Bot bot-token", r.Header.Get("Authorization"))
				_, _ = w.Write([]byte(tt.body))
			})

			name, err := resolver.ResolveName(t.Context(), "1234")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestDiscordResolver_EscapesAccountID(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/..%2Fguilds%2F1", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"username":"dave"}`))
	})

	name, err := resolver.ResolveName(t.Context(), "../guilds/1")
	require.NoError(t, err)
	assert.Equal(t, "dave", name)
}

func TestDiscordResolver_CachesNames(t *testing.T) {
	var calls atomic.Int32
	resolver := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"username":"carol"}`))
	})

	name, err := resolver.ResolveName(t.Context(), "55")
	require.NoError(t, err)
	assert.Equal(t, "carol", name)

	resolver.cache.Wait()

	name, err = resolver.ResolveName(t.Context(), "55")
	require.NoError(t, err)
	assert.Equal(t, "carol", name)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDiscordResolver_ErrorStatus(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := resolver.ResolveName(t.Context(), "404")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
