package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trigger is a scheduling rule: an identity plus a kind tag and the typed
// configuration its trigger type reads. Identity equality is by ID.
//
// A Trigger is not safe for concurrent mutation; the owning scheduler loop
// must serialize calls to SetEnabled/SetMetadata/RemoveMetadata.
type Trigger struct {
	ID   uuid.UUID
	Name string
	Kind TriggerKind

	Config   TriggerConfig
	Enabled  bool
	Metadata map[string]string

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// NewTrigger builds an enabled trigger from a typed config, failing fast on
// structural violations. Kind-specific configuration checks are deferred to
// the trigger engine's ValidateTrigger.
func NewTrigger(name string, cfg TriggerConfig) (*Trigger, error) {
	if name == "" {
		return nil, newValidationError("name", ReasonStaleIdentity, "name is required")
	}
	if cfg == nil {
		return nil, newValidationError("config", ReasonConfigurationMissing, "configuration is required")
	}
	if cfg.Kind() == "" {
		return nil, newValidationError("kind", ReasonStaleIdentity, "kind is required")
	}

	now := time.Now().UTC()
	return &Trigger{
		ID:         uuid.New(),
		Name:       name,
		Kind:       cfg.Kind(),
		Config:     cfg,
		Enabled:    true,
		CreatedAt:  now,
		ModifiedAt: now,
	}, nil
}

// CheckIdentity verifies the structural invariants: non-empty id/name/kind,
// a present config whose kind matches the tag, and modified >= created.
func (t *Trigger) CheckIdentity() error {
	if t == nil {
		return newValidationError("trigger", ReasonStaleIdentity, "trigger is nil")
	}
	if t.ID == uuid.Nil {
		return newValidationError("id", ReasonStaleIdentity, "id is required")
	}
	if t.Name == "" {
		return newValidationError("name", ReasonStaleIdentity, "name is required")
	}
	if t.Kind == "" {
		return newValidationError("kind", ReasonStaleIdentity, "kind is required")
	}
	if t.Config == nil {
		return newValidationError("config", ReasonConfigurationMissing, "configuration is required")
	}
	if t.Config.Kind() != t.Kind {
		return newValidationError("config", ReasonStaleIdentity,
			"config kind %q does not match trigger kind %q", t.Config.Kind(), t.Kind)
	}
	if t.ModifiedAt.Before(t.CreatedAt) {
		return newValidationError("modified_at", ReasonStaleIdentity, "modified before created")
	}
	return nil
}

// SetEnabled toggles the trigger and bumps the modified timestamp.
func (t *Trigger) SetEnabled(enabled bool) {
	t.Enabled = enabled
	t.touch()
}

// SetMetadata stores a metadata entry and bumps the modified timestamp.
func (t *Trigger) SetMetadata(key, value string) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[key] = value
	t.touch()
}

// RemoveMetadata deletes a metadata entry and bumps the modified timestamp.
func (t *Trigger) RemoveMetadata(key string) {
	delete(t.Metadata, key)
	t.touch()
}

// Equal reports identity equality (by ID).
func (t *Trigger) Equal(other *Trigger) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.ID == other.ID
}

func (t *Trigger) touch() {
	t.ModifiedAt = time.Now().UTC()
}
