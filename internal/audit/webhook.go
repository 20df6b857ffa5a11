// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package audit posts verification events to a Discord webhook.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

const (
	defaultTimeout = 2 * time.Second
	queueSize      = 256

	colorGreen = 65280
	colorBlue  = 3447003
	colorRed   = 16711680

	footerText = "Pillow Player Runtime Logs"
)

// NameResolver turns an account id into a human readable name.
type NameResolver interface {
	ResolveName(ctx context.Context, accountID string) (string, error)
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Footer      embedFooter  `json:"footer"`
	Fields      []embedField `json:"fields,omitempty"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// WebhookNotifier delivers activation, session and mismatch events in the
// background. Delivery is best effort: a full queue or a failed POST is
// logged and dropped.
type WebhookNotifier struct {
	url      string
	client   *http.Client
	resolver NameResolver

	queue     chan licensing.VerifyEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*WebhookNotifier)

func WithHTTPClient(client *http.Client) Option {
	return func(n *WebhookNotifier) {
		n.client = client
	}
}

func WithResolver(resolver NameResolver) Option {
	return func(n *WebhookNotifier) {
		n.resolver = resolver
	}
}

func NewWebhookNotifier(url string, opts ...Option) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		queue:  make(chan licensing.VerifyEvent, queueSize),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.wg.Add(1)
	go n.run()

	return n
}

var _ licensing.Observer = (*WebhookNotifier)(nil)

func (n *WebhookNotifier) ObserveVerify(_ context.Context, event licensing.VerifyEvent) {
	if _, ok := n.build(event, ""); !ok {
		return
	}

	select {
	case n.queue <- event:
	default:
		log.Warn().Str("event", event.ID).Msg("Audit webhook queue full, dropping event")
	}
}

// Close stops accepting events and waits for queued deliveries.
func (n *WebhookNotifier) Close() {
	n.closeOnce.Do(func() {
		close(n.queue)
	})
	n.wg.Wait()
}

func (n *WebhookNotifier) run() {
	defer n.wg.Done()
	for event := range n.queue {
		n.deliver(event)
	}
}

func (n *WebhookNotifier) deliver(event licensing.VerifyEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	payload, ok := n.build(event, n.userLabel(ctx, event.AccountID))
	if !ok {
		return
	}

	body, err := json.Marshal(webhookPayload{Embeds: []embed{payload}})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode audit webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build audit webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("event", event.ID).Msg("Audit webhook delivery failed")
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("event", event.ID).Msg("Audit webhook rejected event")
		return
	}

	log.Trace().Str("event", event.ID).Msg("Audit webhook delivered")
}

func (n *WebhookNotifier) userLabel(ctx context.Context, accountID string) string {
	if accountID == "" {
		return "Unknown User"
	}

	mention := fmt.Sprintf("<@%s>", accountID)
	if n.resolver == nil {
		return mention
	}

	name, err := n.resolver.ResolveName(ctx, accountID)
	if err != nil || name == "" {
		if err != nil {
			log.Debug().Err(err).Str("account", accountID).Msg("Failed to resolve account name")
		}
		return mention
	}
	return fmt.Sprintf("%s (%s)", name, mention)
}

// build renders the embed for event. Events other than activations, returning
// sessions and device mismatches are not audited.
func (n *WebhookNotifier) build(event licensing.VerifyEvent, user string) (embed, bool) {
	e := embed{
		Timestamp: event.At.UTC().Format(time.RFC3339),
		Footer:    embedFooter{Text: footerText},
	}

	key := embedField{Name: "🔑 Key", Value: fmt.Sprintf("`%s`", event.KeyCode), Inline: true}
	userField := embedField{Name: "👤 User", Value: user, Inline: true}

	switch {
	case event.Outcome == licensing.OutcomeActivated:
		e.Title = "🟢 New Activation"
		e.Description = fmt.Sprintf("Key activated by %s", user)
		e.Color = colorGreen
	case event.Outcome == licensing.OutcomeReaccepted:
		e.Title = "🔵 Session Started"
		e.Description = fmt.Sprintf("User %s launched the software.", user)
		e.Color = colorBlue
	case event.Reason == licensing.CodeHWIDMismatch:
		e.Title = "⚠️ Suspicious Login Attempt"
		e.Description = fmt.Sprintf("HWID Mismatch for %s", user)
		e.Color = colorRed
		e.Fields = []embedField{
			userField,
			key,
			{Name: "💻 Expected HWID", Value: fmt.Sprintf("`%s`", event.ExpectedHWID), Inline: true},
			{Name: "⚠️ Attempted HWID", Value: fmt.Sprintf("`%s`", event.HWID), Inline: true},
		}
		return e, true
	default:
		return e, false
	}

	device := event.DeviceName
	if device == "" {
		device = "Unknown"
	}
	e.Fields = []embedField{
		userField,
		key,
		{Name: "💻 Device", Value: device, Inline: true},
		{Name: "🔢 Total Accounts", Value: fmt.Sprintf("%d", event.AccountKeyCount), Inline: true},
	}
	return e, true
}
