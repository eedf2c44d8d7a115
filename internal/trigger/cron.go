package trigger

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// CronType computes occurrences from a cron expression, evaluated in the
// configured zone so a wall-clock rule keeps its local firing time across
// DST transitions.
type CronType struct {
	parser cron.Parser
	clock  clockFunc
}

func newCronType(clock clockFunc) *CronType {
	return &CronType{
		// 5-field crontab by default, optional leading seconds field, plus
		// @hourly/@daily/@every descriptors.
		parser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom |
				cron.Month | cron.Dow | cron.Descriptor,
		),
		clock: clock,
	}
}

func (c *CronType) Kind() domain.TriggerKind { return domain.KindCron }
func (c *CronType) RequiresSchedule() bool   { return true }
func (c *CronType) IsImmediate() bool        { return false }

// NextExecution returns the first occurrence strictly after
// max(lastExecutionUTC, now). Anchoring on that maximum keeps the result
// monotonic and prevents a second fire at or before an instant already
// recorded as executed. An unresolvable zone falls back to UTC here; see
// TimezonePolicy.
func (c *CronType) NextExecution(cfg domain.TriggerConfig, lastExecutionUTC *time.Time) *time.Time {
	cc, ok := cfg.(domain.CronConfig)
	if !ok {
		return nil
	}

	sched, err := c.parser.Parse(cc.CronExpression)
	if err != nil {
		return nil
	}

	loc, _ := resolveLocation(cc.TimeZoneID, FallbackUTC)

	ref := c.clock().UTC()
	if lastExecutionUTC != nil && lastExecutionUTC.After(ref) {
		ref = lastExecutionUTC.UTC()
	}

	// The occurrence search runs in local wall-clock time.
	next := sched.Next(ref.In(loc))
	if next.IsZero() {
		return nil
	}

	utc := next.UTC()
	return &utc
}

// Validate parses the expression and timezone and additionally confirms at
// least one future occurrence exists from now: an expression that can never
// fire again is a validation failure, not a silent nil.
func (c *CronType) Validate(cfg domain.TriggerConfig) error {
	if cfg == nil {
		return &domain.ValidationError{
			Field:   "CronExpression",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "configuration is required",
		}
	}
	cc, ok := cfg.(domain.CronConfig)
	if !ok {
		return &domain.ValidationError{
			Field:   "config",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "expected cron configuration",
		}
	}
	if cc.CronExpression == "" {
		return &domain.ValidationError{
			Field:   "CronExpression",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "required key is absent",
		}
	}

	sched, err := c.parser.Parse(cc.CronExpression)
	if err != nil {
		return &domain.ValidationError{
			Field:   "CronExpression",
			Reason:  domain.ReasonMalformedExpression,
			Message: err.Error(),
		}
	}

	loc, err := resolveLocation(cc.TimeZoneID, FailOnUnknown)
	if err != nil {
		return err
	}

	if sched.Next(c.clock().In(loc)).IsZero() {
		return &domain.ValidationError{
			Field:   "CronExpression",
			Reason:  domain.ReasonNeverFires,
			Message: "expression has no future occurrence",
		}
	}
	return nil
}
