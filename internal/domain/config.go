package domain

import (
	"time"
)

// TriggerKind tags the algorithm family that computes a trigger's next
// execution. New kinds are added by registering a trigger type; callers
// never switch on the tag directly.
type TriggerKind string

const (
	KindCron     TriggerKind = "cron"
	KindInterval TriggerKind = "interval"
	KindOnce     TriggerKind = "once"
	KindManual   TriggerKind = "manual"
)

// TriggerConfig is the typed configuration payload for one trigger kind.
// Each kind has exactly one config struct; the trigger engine type-asserts
// to its own payload.
type TriggerConfig interface {
	Kind() TriggerKind
}

// CronConfig configures a cron trigger.
type CronConfig struct {
	CronExpression string
	TimeZoneID     string // IANA zone id, empty = UTC
}

func (CronConfig) Kind() TriggerKind { return KindCron }

// IntervalConfig configures a fixed-interval trigger. Spacing is measured in
// local wall-clock minutes in the configured zone.
type IntervalConfig struct {
	IntervalMinutes int
	StartTime       *time.Time // optional anchor for the first run, UTC
	TimeZoneID      string
}

func (IntervalConfig) Kind() TriggerKind { return KindInterval }

// OnceConfig configures a run-exactly-once trigger.
type OnceConfig struct {
	StartTime  time.Time // required, UTC
	TimeZoneID string
}

func (OnceConfig) Kind() TriggerKind { return KindOnce }

// ManualConfig configures a trigger that only fires on explicit request.
type ManualConfig struct {
	Description     string
	RequiredRole    string
	AllowConcurrent bool
}

func (ManualConfig) Kind() TriggerKind { return KindManual }

// NewManualConfig returns a ManualConfig with defaults applied
// (AllowConcurrent is true unless explicitly disabled).
func NewManualConfig() ManualConfig {
	return ManualConfig{AllowConcurrent: true}
}

// Configuration key names read from untyped key/value payloads.
const (
	keyCronExpression  = "CronExpression"
	keyTimeZoneID      = "TimeZoneId"
	keyIntervalMinutes = "IntervalMinutes"
	keyStartTime       = "StartTime"
	keyDescription     = "Description"
	keyRequiredRole    = "RequiredRole"
	keyAllowConcurrent = "AllowConcurrent"
)

// ConfigFromMap decodes an untyped key/value payload (as stored or received
// over the API) into the typed config for the given kind.
//
// Datetime values accept time.Time or RFC3339 strings; integer values accept
// int, int64 and float64 (JSON numbers). Decode failures map onto the
// validation taxonomy: absent required key = configuration_missing, bad type
// or value = out_of_range, leaving semantic checks to the trigger type's
// Validate.
func ConfigFromMap(kind TriggerKind, raw map[string]any) (TriggerConfig, error) {
	switch kind {
	case KindCron:
		return cronConfigFromMap(raw)
	case KindInterval:
		return intervalConfigFromMap(raw)
	case KindOnce:
		return onceConfigFromMap(raw)
	case KindManual:
		return manualConfigFromMap(raw)
	default:
		return nil, newValidationError("kind", ReasonUnknownTriggerType, "unknown trigger kind %q", kind)
	}
}

// ConfigToMap encodes a typed config back into the untyped key/value form
// used for persistence and API responses. Round-trips with ConfigFromMap.
func ConfigToMap(cfg TriggerConfig) map[string]any {
	switch c := cfg.(type) {
	case CronConfig:
		raw := map[string]any{keyCronExpression: c.CronExpression}
		if c.TimeZoneID != "" {
			raw[keyTimeZoneID] = c.TimeZoneID
		}
		return raw
	case IntervalConfig:
		raw := map[string]any{keyIntervalMinutes: c.IntervalMinutes}
		if c.StartTime != nil {
			raw[keyStartTime] = c.StartTime.UTC().Format(time.RFC3339)
		}
		if c.TimeZoneID != "" {
			raw[keyTimeZoneID] = c.TimeZoneID
		}
		return raw
	case OnceConfig:
		raw := map[string]any{keyStartTime: c.StartTime.UTC().Format(time.RFC3339)}
		if c.TimeZoneID != "" {
			raw[keyTimeZoneID] = c.TimeZoneID
		}
		return raw
	case ManualConfig:
		raw := map[string]any{keyAllowConcurrent: c.AllowConcurrent}
		if c.Description != "" {
			raw[keyDescription] = c.Description
		}
		if c.RequiredRole != "" {
			raw[keyRequiredRole] = c.RequiredRole
		}
		return raw
	default:
		return nil
	}
}

func cronConfigFromMap(raw map[string]any) (TriggerConfig, error) {
	if raw == nil {
		return nil, newValidationError(keyCronExpression, ReasonConfigurationMissing, "configuration is required")
	}
	expr, ok, err := stringValue(raw, keyCronExpression)
	if err != nil {
		return nil, err
	}
	if !ok || expr == "" {
		return nil, newValidationError(keyCronExpression, ReasonConfigurationMissing, "required key is absent")
	}
	tz, _, err := stringValue(raw, keyTimeZoneID)
	if err != nil {
		return nil, err
	}
	return CronConfig{CronExpression: expr, TimeZoneID: tz}, nil
}

func intervalConfigFromMap(raw map[string]any) (TriggerConfig, error) {
	if raw == nil {
		return nil, newValidationError(keyIntervalMinutes, ReasonConfigurationMissing, "configuration is required")
	}
	minutes, ok, err := intValue(raw, keyIntervalMinutes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newValidationError(keyIntervalMinutes, ReasonConfigurationMissing, "required key is absent")
	}
	cfg := IntervalConfig{IntervalMinutes: minutes}
	start, ok, err := timeValue(raw, keyStartTime)
	if err != nil {
		return nil, err
	}
	if ok {
		cfg.StartTime = &start
	}
	cfg.TimeZoneID, _, err = stringValue(raw, keyTimeZoneID)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func onceConfigFromMap(raw map[string]any) (TriggerConfig, error) {
	if raw == nil {
		return nil, newValidationError(keyStartTime, ReasonConfigurationMissing, "configuration is required")
	}
	start, ok, err := timeValue(raw, keyStartTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newValidationError(keyStartTime, ReasonConfigurationMissing, "required key is absent")
	}
	tz, _, err := stringValue(raw, keyTimeZoneID)
	if err != nil {
		return nil, err
	}
	return OnceConfig{StartTime: start, TimeZoneID: tz}, nil
}

func manualConfigFromMap(raw map[string]any) (TriggerConfig, error) {
	cfg := NewManualConfig()
	if raw == nil {
		return cfg, nil
	}
	var err error
	if cfg.Description, _, err = stringValue(raw, keyDescription); err != nil {
		return nil, err
	}
	if cfg.RequiredRole, _, err = stringValue(raw, keyRequiredRole); err != nil {
		return nil, err
	}
	if v, ok := raw[keyAllowConcurrent]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return nil, newValidationError(keyAllowConcurrent, ReasonOutOfRange, "expected bool, got %T", v)
		}
		cfg.AllowConcurrent = b
	}
	return cfg, nil
}

func stringValue(raw map[string]any, key string) (string, bool, error) {
	v, ok := raw[key]
	if !ok {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", false, newValidationError(key, ReasonOutOfRange, "expected string, got %T", v)
	}
	return s, true, nil
}

func intValue(raw map[string]any, key string) (int, bool, error) {
	v, ok := raw[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		// JSON numbers decode as float64; reject fractional values.
		if n != float64(int(n)) {
			return 0, false, newValidationError(key, ReasonOutOfRange, "expected integer, got %v", n)
		}
		return int(n), true, nil
	default:
		return 0, false, newValidationError(key, ReasonOutOfRange, "expected integer, got %T", v)
	}
}

func timeValue(raw map[string]any, key string) (time.Time, bool, error) {
	v, ok := raw[key]
	if !ok {
		return time.Time{}, false, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false, newValidationError(key, ReasonOutOfRange, "expected RFC3339 datetime: %v", err)
		}
		return parsed.UTC(), true, nil
	default:
		return time.Time{}, false, newValidationError(key, ReasonOutOfRange, "expected datetime, got %T", v)
	}
}
