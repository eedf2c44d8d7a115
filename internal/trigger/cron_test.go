package trigger

import (
	"testing"
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

func fixedClock(t time.Time) clockFunc {
	return func() time.Time { return t }
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed.UTC()
}

func TestCronType_NextExecution(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.CronConfig
		last string // RFC3339, empty = nil
		now  string
		want string
	}{
		{
			name: "daily 9am, before occurrence",
			cfg:  domain.CronConfig{CronExpression: "0 9 * * *", TimeZoneID: "UTC"},
			now:  "2024-06-01T08:00:00Z",
			want: "2024-06-01T09:00:00Z",
		},
		{
			name: "daily 9am, after occurrence rolls to next day",
			cfg:  domain.CronConfig{CronExpression: "0 9 * * *", TimeZoneID: "UTC"},
			now:  "2024-06-01T09:30:00Z",
			want: "2024-06-02T09:00:00Z",
		},
		{
			name: "last execution ahead of now anchors the search",
			cfg:  domain.CronConfig{CronExpression: "0 * * * *"},
			last: "2024-06-01T12:00:00Z",
			now:  "2024-06-01T08:00:00Z",
			want: "2024-06-01T13:00:00Z",
		},
		{
			name: "now ahead of last execution anchors the search",
			cfg:  domain.CronConfig{CronExpression: "0 * * * *"},
			last: "2024-06-01T08:00:00Z",
			now:  "2024-06-01T12:15:00Z",
			want: "2024-06-01T13:00:00Z",
		},
		{
			name: "descriptor",
			cfg:  domain.CronConfig{CronExpression: "@hourly"},
			now:  "2024-06-01T10:20:00Z",
			want: "2024-06-01T11:00:00Z",
		},
		{
			name: "six fields with seconds",
			cfg:  domain.CronConfig{CronExpression: "30 0 9 * * *"},
			now:  "2024-06-01T08:00:00Z",
			want: "2024-06-01T09:00:30Z",
		},
		{
			name: "empty timezone defaults to UTC",
			cfg:  domain.CronConfig{CronExpression: "0 9 * * *"},
			now:  "2024-06-01T08:00:00Z",
			want: "2024-06-01T09:00:00Z",
		},
		{
			name: "unknown timezone falls back to UTC during calculation",
			cfg:  domain.CronConfig{CronExpression: "0 9 * * *", TimeZoneID: "Invalid/Zone"},
			now:  "2024-06-01T08:00:00Z",
			want: "2024-06-01T09:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCronType(fixedClock(mustTime(t, tt.now)))

			var last *time.Time
			if tt.last != "" {
				l := mustTime(t, tt.last)
				last = &l
			}

			got := c.NextExecution(tt.cfg, last)
			if got == nil {
				t.Fatalf("NextExecution returned nil, want %s", tt.want)
			}
			if want := mustTime(t, tt.want); !got.Equal(want) {
				t.Errorf("NextExecution = %s, want %s", got.Format(time.RFC3339), want.Format(time.RFC3339))
			}
			if got.Location() != time.UTC {
				t.Errorf("NextExecution location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestCronType_NextExecutionStrictlyAfterReference(t *testing.T) {
	// The next occurrence must be strictly greater than max(last, now), even
	// when the reference sits exactly on an occurrence.
	now := mustTime(t, "2024-06-01T09:00:00Z")
	c := newCronType(fixedClock(now))

	got := c.NextExecution(domain.CronConfig{CronExpression: "0 9 * * *"}, &now)
	if got == nil {
		t.Fatal("NextExecution returned nil")
	}
	if !got.After(now) {
		t.Errorf("NextExecution = %s, want strictly after %s", got, now)
	}
	if want := mustTime(t, "2024-06-02T09:00:00Z"); !got.Equal(want) {
		t.Errorf("NextExecution = %s, want %s", got, want)
	}
}

func TestCronType_DSTLocalWallClock(t *testing.T) {
	// A 9:00 AM rule fires at 9:00 AM local time on both sides of the US
	// spring-forward transition (2024-03-10 in America/New_York).
	c := newCronType(fixedClock(mustTime(t, "2024-03-08T20:00:00Z")))
	cfg := domain.CronConfig{CronExpression: "0 9 * * *", TimeZoneID: "America/New_York"}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}

	// Before the transition: EST, UTC-5.
	first := c.NextExecution(cfg, nil)
	if first == nil {
		t.Fatal("NextExecution returned nil")
	}
	if want := time.Date(2024, 3, 9, 9, 0, 0, 0, loc); !first.Equal(want) {
		t.Fatalf("first = %s, want %s", first, want)
	}

	// Feed the fire back in: the following day is EDT, UTC-4, still 9am local.
	second := c.NextExecution(cfg, first)
	if second == nil {
		t.Fatal("NextExecution returned nil")
	}
	want := time.Date(2024, 3, 10, 9, 0, 0, 0, loc)
	if !second.Equal(want) {
		t.Errorf("second = %s, want %s", second, want)
	}
	if got := second.Sub(*first); got != 23*time.Hour {
		t.Errorf("elapsed real time = %s, want 23h across spring-forward", got)
	}
}

func TestCronType_NextExecutionNeverPanics(t *testing.T) {
	c := newCronType(fixedClock(mustTime(t, "2024-06-01T08:00:00Z")))

	tests := []struct {
		name string
		cfg  domain.TriggerConfig
	}{
		{"malformed expression", domain.CronConfig{CronExpression: "not-a-cron"}},
		{"empty expression", domain.CronConfig{}},
		{"wrong payload kind", domain.ManualConfig{}},
		{"nil payload", nil},
		{"impossible date", domain.CronConfig{CronExpression: "0 0 30 2 *"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.NextExecution(tt.cfg, nil); got != nil {
				t.Errorf("NextExecution = %v, want nil", got)
			}
		})
	}
}

func TestCronType_Validate(t *testing.T) {
	c := newCronType(fixedClock(mustTime(t, "2024-06-01T08:00:00Z")))

	tests := []struct {
		name   string
		cfg    domain.TriggerConfig
		reason domain.ValidationReason // "" = expect success
	}{
		{"valid", domain.CronConfig{CronExpression: "0 9 * * *"}, ""},
		{"valid with timezone", domain.CronConfig{CronExpression: "*/5 * * * *", TimeZoneID: "Europe/Paris"}, ""},
		{"valid descriptor", domain.CronConfig{CronExpression: "@daily"}, ""},
		{"malformed", domain.CronConfig{CronExpression: "not-a-cron"}, domain.ReasonMalformedExpression},
		{"too many fields", domain.CronConfig{CronExpression: "* * * * * * *"}, domain.ReasonMalformedExpression},
		{"missing expression", domain.CronConfig{}, domain.ReasonConfigurationMissing},
		{"nil config", nil, domain.ReasonConfigurationMissing},
		{"unknown timezone is a hard failure here", domain.CronConfig{CronExpression: "0 9 * * *", TimeZoneID: "Invalid/Zone"}, domain.ReasonUnknownTimezone},
		{"never fires", domain.CronConfig{CronExpression: "0 0 30 2 *"}, domain.ReasonNeverFires},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.cfg)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("Validate returned error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate succeeded, want reason %s", tt.reason)
			}
			if got := domain.ReasonOf(err); got != tt.reason {
				t.Errorf("reason = %s, want %s (err: %v)", got, tt.reason, err)
			}
		})
	}
}

func TestCronType_ValidateIdempotent(t *testing.T) {
	c := newCronType(fixedClock(mustTime(t, "2024-06-01T08:00:00Z")))
	cfg := domain.CronConfig{CronExpression: "not-a-cron"}

	first := c.Validate(cfg)
	second := c.Validate(cfg)

	if first == nil || second == nil {
		t.Fatal("Validate should fail for a malformed expression")
	}
	if first.Error() != second.Error() {
		t.Errorf("repeated Validate differs: %q vs %q", first, second)
	}
}
