// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

type capturedPayloads struct {
	mu       sync.Mutex
	payloads []webhookPayload
}

func (c *capturedPayloads) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload webhookPayload
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload)) {
			c.mu.Lock()
			c.payloads = append(c.payloads, payload)
			c.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (c *capturedPayloads) all() []webhookPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webhookPayload(nil), c.payloads...)
}

type staticResolver struct {
	names map[string]string
}

func (s staticResolver) ResolveName(_ context.Context, accountID string) (string, error) {
	name, ok := s.names[accountID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return name, nil
}

var eventTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestWebhookNotifier_Embeds(t *testing.T) {
	tests := []struct {
		name        string
		event       licensing.VerifyEvent
		title       string
		color       int
		fieldValues []string
	}{
		{
			name: "activation",
			event: licensing.VerifyEvent{
				ID: "evt-1", At: eventTime, KeyCode: "PILLOW-ABC", AccountID: "42",
				DeviceName: "desk", AccountKeyCount: 1, Outcome: licensing.OutcomeActivated,
			},
			title:       "🟢 New Activation",
			color:       colorGreen,
			fieldValues: []string{"Alice (<@42>)", "`PILLOW-ABC`", "desk", "1"},
		},
		{
			name: "returning session without device name",
			event: licensing.VerifyEvent{
				ID: "evt-2", At: eventTime, KeyCode: "PILLOW-ABC", AccountID: "42",
				AccountKeyCount: 2, Outcome: licensing.OutcomeReaccepted,
			},
			title:       "🔵 Session Started",
			color:       colorBlue,
			fieldValues: []string{"Alice (<@42>)", "`PILLOW-ABC`", "Unknown", "2"},
		},
		{
			name: "hwid mismatch with unresolved account",
			event: licensing.VerifyEvent{
				ID: "evt-3", At: eventTime, KeyCode: "PILLOW-ABC", AccountID: "99",
				HWID: "hw-new", ExpectedHWID: "hw-old",
				Outcome: licensing.OutcomeRejected, Reason: licensing.CodeHWIDMismatch,
			},
			title:       "⚠️ Suspicious Login Attempt",
			color:       colorRed,
			fieldValues: []string{"<@99>", "`PILLOW-ABC`", "`hw-old`", "`hw-new`"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured := &capturedPayloads{}
			server := httptest.NewServer(captured.handler(t))
			defer server.Close()

			notifier := NewWebhookNotifier(server.URL,
				WithHTTPClient(server.Client()),
				WithResolver(staticResolver{names: map[string]string{"42": "Alice"}}),
			)
			notifier.ObserveVerify(t.Context(), tt.event)
			notifier.Close()

			payloads := captured.all()
			require.Len(t, payloads, 1)
			require.Len(t, payloads[0].Embeds, 1)

			e := payloads[0].Embeds[0]
			assert.Equal(t, tt.title, e.Title)
			assert.Equal(t, tt.color, e.Color)
			assert.Equal(t, footerText, e.Footer.Text)
			assert.Equal(t, "2025-03-01T12:00:00Z", e.Timestamp)

			var values []string
			for _, f := range e.Fields {
				values = append(values, f.Value)
			}
			assert.Equal(t, tt.fieldValues, values)
		})
	}
}

func TestWebhookNotifier_SkipsUnauditedRejections(t *testing.T) {
	captured := &capturedPayloads{}
	server := httptest.NewServer(captured.handler(t))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, WithHTTPClient(server.Client()))
	for _, reason := range []licensing.Code{
		licensing.CodeInvalidKey,
		licensing.CodeNotClaimed,
		licensing.CodeHWIDBanned,
		licensing.CodeExpired,
		licensing.CodeKeyBanned,
	} {
		notifier.ObserveVerify(t.Context(), licensing.VerifyEvent{
			At: eventTime, Outcome: licensing.OutcomeRejected, Reason: reason,
		})
	}
	notifier.Close()

	assert.Empty(t, captured.all())
}

func TestWebhookNotifier_DeliveryFailureIsIgnored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, WithHTTPClient(server.Client()))
	assert.NotPanics(t, func() {
		notifier.ObserveVerify(t.Context(), licensing.VerifyEvent{At: eventTime, Outcome: licensing.OutcomeActivated})
		notifier.Close()
	})
}

func TestWebhookNotifier_CloseIsIdempotent(t *testing.T) {
	notifier := NewWebhookNotifier("http://127.0.0.1:0")
	notifier.Close()
	assert.NotPanics(t, notifier.Close)
}

func TestUserLabel(t *testing.T) {
	notifier := &WebhookNotifier{}
	assert.Equal(t, "Unknown User", notifier.userLabel(t.Context(), ""))
	assert.Equal(t, "<@7>", notifier.userLabel(t.Context(), "7"))

	notifier.resolver = staticResolver{names: map[string]string{"7": ""}}
	assert.Equal(t, "<@7>", notifier.userLabel(t.Context(), "7"))
}
