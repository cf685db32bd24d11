package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	value, err := Do(context.Background(), Policy{MaxAttempts: 4, Delay: time.Millisecond}, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if value != "ok" || attempts != 3 {
		t.Fatalf("value=%q attempts=%d, want ok after 3 attempts", value, attempts)
	}
}

func TestExhaustionReturnsLastError(t *testing.T) {
	last := errors.New("still failing")
	attempts := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, Delay: time.Millisecond}, func() (int, error) {
		attempts++
		return 0, last
	})
	if attempts != 3 {
		t.Fatalf("attempts=%d, want 3", attempts)
	}
	if !errors.Is(err, last) {
		t.Fatalf("err=%v, want %v", err, last)
	}
}

func TestNonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("bad input")
	attempts := 0
	policy := Policy{
		MaxAttempts: 5,
		Delay:       time.Millisecond,
		IsRetryable: func(err error) bool { return !errors.Is(err, fatal) },
	}
	_, err := Do(context.Background(), policy, func() (int, error) {
		attempts++
		return 0, fatal
	})
	if attempts != 1 {
		t.Fatalf("attempts=%d, want 1", attempts)
	}
	if !errors.Is(err, fatal) {
		t.Fatalf("err=%v, want %v", err, fatal)
	}
}

func TestZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), Policy{}, func() (int, error) {
		attempts++
		return 42, nil
	})
	if err != nil || attempts != 1 {
		t.Fatalf("attempts=%d err=%v, want one clean attempt", attempts, err)
	}
}
