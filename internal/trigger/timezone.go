package trigger

import (
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// TimezonePolicy names what happens when a timezone id does not resolve.
//
// The engine is deliberately asymmetric: calculation uses FallbackUTC so a
// zone database gap cannot stop a running scheduler, while validation uses
// FailOnUnknown so a bad configuration is rejected before it is admitted.
type TimezonePolicy int

const (
	// FailOnUnknown returns an unknown_timezone validation error.
	FailOnUnknown TimezonePolicy = iota

	// FallbackUTC resolves unknown zones to UTC.
	FallbackUTC
)

// resolveLocation resolves an IANA timezone id. An empty id always means UTC.
func resolveLocation(id string, policy TimezonePolicy) (*time.Location, error) {
	if id == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(id)
	if err == nil {
		return loc, nil
	}
	if policy == FallbackUTC {
		return time.UTC, nil
	}
	return nil, &domain.ValidationError{
		Field:   "TimeZoneId",
		Reason:  domain.ReasonUnknownTimezone,
		Message: "unknown timezone " + id,
	}
}
