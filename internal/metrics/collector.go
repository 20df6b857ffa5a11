// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

// StatsSource is satisfied by licensing.Service.
type StatsSource interface {
	Stats(ctx context.Context) (*licensing.Stats, error)
}

// LicenseCollector reports store-wide key counts on every scrape.
type LicenseCollector struct {
	source StatsSource

	licensesDesc     *prometheus.Desc
	durationDesc     *prometheus.Desc
	created24hDesc   *prometheus.Desc
	scrapeErrorsDesc *prometheus.Desc
}

func NewLicenseCollector(source StatsSource) *LicenseCollector {
	return &LicenseCollector{
		source: source,

		licensesDesc: prometheus.NewDesc(
			"pillowauth_licenses",
			"Number of license keys by state",
			[]string{"state"},
			nil,
		),
		durationDesc: prometheus.NewDesc(
			"pillowauth_licenses_by_duration",
			"Number of license keys by duration kind",
			[]string{"kind"},
			nil,
		),
		created24hDesc: prometheus.NewDesc(
			"pillowauth_licenses_created_24h",
			"Number of license keys created in the last 24 hours",
			nil,
			nil,
		),
		scrapeErrorsDesc: prometheus.NewDesc(
			"pillowauth_scrape_errors_total",
			"Number of failed license stat scrapes",
			nil,
			nil,
		),
	}
}

func (c *LicenseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.licensesDesc
	ch <- c.durationDesc
	ch <- c.created24hDesc
	ch <- c.scrapeErrorsDesc
}

func (c *LicenseCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		log.Debug().Msg("No stats source, skipping license metrics")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to collect license stats for metrics")
		ch <- prometheus.MustNewConstMetric(c.scrapeErrorsDesc, prometheus.CounterValue, 1)
		return
	}

	states := []struct {
		label string
		value int
	}{
		{"total", stats.Total},
		{"unused", stats.Unused},
		{"used", stats.Used},
		{"banned", stats.Banned},
		{"active", stats.Active},
		{"expired", stats.Expired},
	}
	for _, s := range states {
		ch <- prometheus.MustNewConstMetric(c.licensesDesc, prometheus.GaugeValue, float64(s.value), s.label)
	}

	ch <- prometheus.MustNewConstMetric(c.durationDesc, prometheus.GaugeValue, float64(stats.Lifetime), "lifetime")
	ch <- prometheus.MustNewConstMetric(c.durationDesc, prometheus.GaugeValue, float64(stats.Limited), "limited")
	ch <- prometheus.MustNewConstMetric(c.created24hDesc, prometheus.GaugeValue, float64(stats.Created24h))
}

// VerifyCounter counts verification outcomes. It is registered with the
// licensing service as an observer.
type VerifyCounter struct {
	verifications *prometheus.CounterVec
}

func NewVerifyCounter() *VerifyCounter {
	return &VerifyCounter{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pillowauth_verifications_total",
			Help: "Number of key verifications by outcome and rejection reason",
		}, []string{"outcome", "reason"}),
	}
}

func (v *VerifyCounter) ObserveVerify(_ context.Context, event licensing.VerifyEvent) {
	reason := string(event.Reason)
	if reason == "" {
		reason = "none"
	}
	v.verifications.WithLabelValues(string(event.Outcome), reason).Inc()
}

func (v *VerifyCounter) Describe(ch chan<- *prometheus.Desc) {
	v.verifications.Describe(ch)
}

func (v *VerifyCounter) Collect(ch chan<- prometheus.Metric) {
	v.verifications.Collect(ch)
}
