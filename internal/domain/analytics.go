package domain

import "time"

// AnalyticsType selects how firings are aggregated: plain counts per
// window, or counts normalized into a rate.
type AnalyticsType string

const (
	AnalyticsTypeCount AnalyticsType = "count"
	AnalyticsTypeRate  AnalyticsType = "rate"
)

// AnalyticsConfig is the per-schedule opt-in for firing analytics. A zero
// value means disabled.
type AnalyticsConfig struct {
	Enabled   bool
	Type      AnalyticsType
	Window    time.Duration // bucket size, e.g. 1m
	Retention time.Duration // counter TTL, at least one window
}
