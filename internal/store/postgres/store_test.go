package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestIsDuplicateKeyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pq unique violation", &pq.Error{Code: "23505"}, true},
		{"pq other code", &pq.Error{Code: "23503"}, false},
		{"wrapped pq error", errorsWrap(&pq.Error{Code: "23505"}), true},
		{"string with code", errors.New("pq: duplicate key value violates unique constraint (SQLSTATE 23505)"), true},
		{"string with phrase", errors.New("duplicate key value"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateKeyError(tt.err); got != tt.want {
				t.Errorf("isDuplicateKeyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func errorsWrap(err error) error {
	return &wrappedError{inner: err}
}

type wrappedError struct {
	inner error
}

func (e *wrappedError) Error() string { return "insert execution: " + e.inner.Error() }
func (e *wrappedError) Unwrap() error { return e.inner }

func TestNullableTime(t *testing.T) {
	if nt := nullableTime(nil); nt.Valid {
		t.Error("nullableTime(nil) should be invalid")
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	local := time.Date(2025, 6, 15, 10, 30, 0, 0, loc)
	nt := nullableTime(&local)
	if !nt.Valid {
		t.Fatal("nullableTime(non-nil) should be valid")
	}
	if nt.Time.Location() != time.UTC {
		t.Errorf("stored time should be UTC, got %v", nt.Time.Location())
	}
	if !nt.Time.Equal(local) {
		t.Errorf("UTC conversion changed the instant: %v != %v", nt.Time, local)
	}
}

func TestOpCtx(t *testing.T) {
	// Zero timeout passes the context through untouched.
	unbounded := &Store{opTimeout: 0}
	ctx, cancel := unbounded.opCtx(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero opTimeout should not set a deadline")
	}

	bounded := &Store{opTimeout: 5 * time.Second}
	ctx, cancel = bounded.opCtx(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if remaining := time.Until(deadline); remaining > 5*time.Second || remaining < 4*time.Second {
		t.Errorf("deadline %s out is not ~5s away", remaining)
	}
}
