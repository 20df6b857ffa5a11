// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry         *prometheus.Registry
	licenseCollector *LicenseCollector
	verifyCounter    *VerifyCounter
}

func NewManager(source StatsSource) *Manager {
	registry := prometheus.NewRegistry()

	licenseCollector := NewLicenseCollector(source)
	verifyCounter := NewVerifyCounter()
	registry.MustRegister(licenseCollector, verifyCounter)

	log.Info().Msg("Metrics manager initialized with license collector")

	return &Manager{
		registry:         registry,
		licenseCollector: licenseCollector,
		verifyCounter:    verifyCounter,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// VerifyObserver returns the counter to pass to licensing.WithObservers.
func (m *Manager) VerifyObserver() *VerifyCounter {
	return m.verifyCounter
}

// SetSource attaches the stats source once it exists. Call it before the
// registry is served.
func (m *Manager) SetSource(source StatsSource) {
	m.licenseCollector.source = source
}
