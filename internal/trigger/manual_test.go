package trigger

import (
	"testing"
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

func TestManualType_NeverAutoSchedules(t *testing.T) {
	m := newManualType()

	last := mustTime(t, "2024-06-01T10:00:00Z")
	inputs := []struct {
		name string
		cfg  domain.TriggerConfig
		last *time.Time
	}{
		{"nil config, nil last", nil, nil},
		{"empty config", domain.ManualConfig{}, nil},
		{"full config", domain.ManualConfig{Description: "deploy", RequiredRole: "operator", AllowConcurrent: false}, nil},
		{"with last execution", domain.NewManualConfig(), &last},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.NextExecution(tt.cfg, tt.last); got != nil {
				t.Errorf("NextExecution = %v, want nil", got)
			}
		})
	}
}

func TestManualType_Validate(t *testing.T) {
	m := newManualType()

	if err := m.Validate(nil); err != nil {
		t.Errorf("Validate(nil) = %v, want nil (absence of all fields is valid)", err)
	}
	if err := m.Validate(domain.ManualConfig{}); err != nil {
		t.Errorf("Validate(empty) = %v, want nil", err)
	}
	if err := m.Validate(domain.NewManualConfig()); err != nil {
		t.Errorf("Validate(defaults) = %v, want nil", err)
	}

	err := m.Validate(domain.CronConfig{CronExpression: "* * * * *"})
	if err == nil {
		t.Fatal("Validate accepted a cron payload")
	}
	if got := domain.ReasonOf(err); got != domain.ReasonConfigurationMissing {
		t.Errorf("reason = %s, want %s", got, domain.ReasonConfigurationMissing)
	}
}

func TestManualType_Capabilities(t *testing.T) {
	m := newManualType()
	if m.RequiresSchedule() {
		t.Error("manual trigger should not require schedule tracking")
	}
	if m.IsImmediate() {
		t.Error("manual trigger should not be immediate")
	}
}
