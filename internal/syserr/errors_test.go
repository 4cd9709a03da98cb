// internal/syserr/errors_test.go
package syserr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want uint16
	}{
		{nil, 0},
		{errors.New("plain"), 1},
		{New(KindConnection, "open failed"), 2000},
		{New(KindDevice, "bad frame"), 3000},
		{New(KindNetwork, "send failed"), 4000},
		{New(KindConfig, "value out of range"), 5000},
		{New(KindResource, "join timeout"), 6000},
		{fmt.Errorf("outer: %w", New(KindDevice, "inner")), 3000},
	}

	for _, c := range cases {
		if got := CodeOf(c.err); got != c.want {
			t.Fatalf("CodeOf(%v)=%d want %d", c.err, got, c.want)
		}
	}
}

func TestWrap_NilCause(t *testing.T) {
	if err := Wrap(KindDevice, nil, "whatever"); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(KindConnection, cause, "open %s", "/dev/ttyUSB0")

	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is lost the cause")
	}
	if !IsKind(err, KindConnection) {
		t.Fatalf("IsKind(KindConnection) = false")
	}
	if IsKind(err, KindDevice) {
		t.Fatalf("IsKind(KindDevice) = true for a connection error")
	}
}

func TestRetry_SucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	err := Retry(3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry err=%v", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d want 3", calls)
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(3, 0, func() error {
		calls++
		return fmt.Errorf("fail %d", calls)
	})

	if err == nil || err.Error() != "fail 3" {
		t.Fatalf("err=%v want fail 3", err)
	}
}

func TestRetry_StopsAfterFirstSuccess(t *testing.T) {
	calls := 0
	if err := Retry(5, 0, func() error { calls++; return nil }); err != nil {
		t.Fatalf("err=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}
