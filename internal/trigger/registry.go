package trigger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// ErrUnknownTriggerType is returned when a kind tag has no registered type.
// This is a deployment-level fault, not bad user input.
var ErrUnknownTriggerType = errors.New("unknown trigger type")

// Registry maps kind tags to trigger types. Build one at process start and
// pass it by reference; there is no package-level registry. After
// construction a Registry is immutable and safe for concurrent use.
type Registry struct {
	types map[domain.TriggerKind]Type
	clock clockFunc
}

// Option configures a Registry under construction.
type Option func(*Registry)

// WithClock overrides the time source used by the built-in types. Tests use
// this for deterministic calculations.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry builds a registry with the built-in kinds (cron, interval,
// once, manual) registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		types: make(map[domain.TriggerKind]Type),
		clock: defaultClock,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.types[domain.KindCron] = newCronType(r.clock)
	r.types[domain.KindInterval] = newIntervalType(r.clock)
	r.types[domain.KindOnce] = newOnceType(r.clock)
	r.types[domain.KindManual] = newManualType()
	return r
}

// Register adds an extension type. Must be called before the registry is
// shared; duplicate kinds are rejected.
func (r *Registry) Register(t Type) error {
	kind := t.Kind()
	if kind == "" {
		return fmt.Errorf("register trigger type: empty kind")
	}
	if _, exists := r.types[kind]; exists {
		return fmt.Errorf("register trigger type: kind %q already registered", kind)
	}
	r.types[kind] = t
	return nil
}

// Resolve returns the behavior object for a kind tag.
func (r *Registry) Resolve(kind domain.TriggerKind) (Type, error) {
	t, ok := r.types[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTriggerType, kind)
	}
	return t, nil
}

// Kinds lists the registered kind tags, sorted.
func (r *Registry) Kinds() []domain.TriggerKind {
	kinds := make([]domain.TriggerKind, 0, len(r.types))
	for k := range r.types {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
