// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"time"

	"github.com/google/uuid"
)

// VerifyEvent describes one verification attempt for audit collaborators.
type VerifyEvent struct {
	ID              string
	At              time.Time
	KeyCode         string
	AccountID       string
	AccountKeyCount int
	DeviceName      string
	HWID            string
	ExpectedHWID    string
	IPAddress       string
	Outcome         VerifyOutcome
	Reason          Code
}

func newVerifyEvent(req VerifyRequest, at time.Time) VerifyEvent {
	return VerifyEvent{
		ID:         uuid.NewString(),
		At:         at,
		KeyCode:    req.KeyCode,
		DeviceName: req.DeviceName,
		HWID:       req.HWID,
		IPAddress:  req.IPAddress,
	}
}
