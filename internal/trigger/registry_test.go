package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

func TestRegistry_ResolvesBuiltins(t *testing.T) {
	r := NewRegistry()

	for _, kind := range []domain.TriggerKind{
		domain.KindCron, domain.KindInterval, domain.KindOnce, domain.KindManual,
	} {
		t.Run(string(kind), func(t *testing.T) {
			typ, err := r.Resolve(kind)
			if err != nil {
				t.Fatalf("Resolve(%s) error: %v", kind, err)
			}
			if typ.Kind() != kind {
				t.Errorf("Kind() = %s, want %s", typ.Kind(), kind)
			}
		})
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("carrier-pigeon")
	if err == nil {
		t.Fatal("Resolve should fail for an unregistered kind")
	}
	if !errors.Is(err, ErrUnknownTriggerType) {
		t.Errorf("error = %v, want ErrUnknownTriggerType", err)
	}
}

// fakeType exercises extension registration without touching built-in code.
type fakeType struct {
	kind domain.TriggerKind
}

func (f *fakeType) Kind() domain.TriggerKind { return f.kind }
func (f *fakeType) RequiresSchedule() bool   { return true }
func (f *fakeType) IsImmediate() bool        { return true }
func (f *fakeType) NextExecution(domain.TriggerConfig, *time.Time) *time.Time {
	return nil
}
func (f *fakeType) Validate(domain.TriggerConfig) error { return nil }

func TestRegistry_RegisterExtension(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&fakeType{kind: "burst"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	typ, err := r.Resolve("burst")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !typ.IsImmediate() {
		t.Error("resolved type lost its capabilities")
	}

	if err := r.Register(&fakeType{kind: "burst"}); err == nil {
		t.Error("Register should reject a duplicate kind")
	}
	if err := r.Register(&fakeType{kind: ""}); err == nil {
		t.Error("Register should reject an empty kind")
	}
}

func TestRegistry_Kinds(t *testing.T) {
	r := NewRegistry()

	kinds := r.Kinds()
	want := []domain.TriggerKind{
		domain.KindCron, domain.KindInterval, domain.KindManual, domain.KindOnce,
	}
	if len(kinds) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Kinds()[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestRegistry_WithClock(t *testing.T) {
	now := mustTime(t, "2024-06-01T08:00:00Z")
	r := NewRegistry(WithClock(func() time.Time { return now }))

	typ, err := r.Resolve(domain.KindCron)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	got := typ.NextExecution(domain.CronConfig{CronExpression: "0 9 * * *"}, nil)
	if got == nil {
		t.Fatal("NextExecution returned nil")
	}
	if want := mustTime(t, "2024-06-01T09:00:00Z"); !got.Equal(want) {
		t.Errorf("NextExecution = %s, want %s", got, want)
	}
}
