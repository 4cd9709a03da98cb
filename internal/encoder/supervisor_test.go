// internal/encoder/supervisor_test.go
package encoder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loveourearth/JHS-EncoderReader/internal/events"
)

func runSupervisor(t *testing.T, s *Supervisor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("supervisor did not stop")
		}
	})
	return cancel
}

func TestSupervisor_ReconnectsDownSession(t *testing.T) {
	bus := events.NewBus()
	ch := record(bus)
	fake := &fakeClient{}
	s := NewSupervisor(fake, bus, SupervisorConfig{CheckInterval: 2 * time.Millisecond})

	runSupervisor(t, s)

	waitFor(t, ch, events.ConnectionRestored)
	if !fake.Connected() {
		t.Fatalf("client still disconnected after restore event")
	}
}

func TestSupervisor_HealthFailuresMarkDisconnected(t *testing.T) {
	bus := events.NewBus()
	ch := record(bus)
	fake := &fakeClient{
		connected:  true,
		pingErr:    errors.New("no reply"),
		connectErr: errors.New("still dead"),
	}
	s := NewSupervisor(fake, bus, SupervisorConfig{
		CheckInterval:  2 * time.Millisecond,
		HealthInterval: time.Millisecond,
	})

	runSupervisor(t, s)

	waitFor(t, ch, events.ConnectionLost)

	fake.mu.Lock()
	marked := fake.marked
	fake.mu.Unlock()
	if marked != 1 {
		t.Fatalf("MarkDisconnected called %d times, want 1", marked)
	}
	if fake.Connected() {
		t.Fatalf("client still connected after connectionLost")
	}
}

func TestSupervisor_BacksOffAfterMaxRetries(t *testing.T) {
	bus := events.NewBus()
	fake := &fakeClient{connectErr: errors.New("no such device")}
	s := NewSupervisor(fake, bus, SupervisorConfig{
		CheckInterval:     2 * time.Millisecond,
		MaxRetries:        2,
		SlowRetryInterval: time.Minute,
	})

	cancel := runSupervisor(t, s)

	time.Sleep(60 * time.Millisecond)
	cancel()

	fake.mu.Lock()
	connects := fake.connects
	fake.mu.Unlock()
	if connects != 2 {
		t.Fatalf("connect attempts=%d, want exactly 2 before the slow-retry window", connects)
	}
}

func TestSupervisor_RecoveryBeforeLimitKeepsSession(t *testing.T) {
	bus := events.NewBus()
	ch := record(bus)
	fake := &fakeClient{connected: true, pingErr: errors.New("no reply")}
	s := NewSupervisor(fake, bus, SupervisorConfig{
		CheckInterval:   5 * time.Millisecond,
		HealthInterval:  time.Millisecond,
		HealthFailLimit: 10,
	})

	runSupervisor(t, s)

	// A few failures, then recovery well before the limit trips.
	time.Sleep(12 * time.Millisecond)
	fake.mu.Lock()
	fake.pingErr = nil
	fake.mu.Unlock()

	deadline := time.After(50 * time.Millisecond)
	for {
		select {
		case e := <-ch:
			if e.Kind == events.ConnectionLost {
				t.Fatalf("connectionLost fired despite recovery under the limit")
			}
		case <-deadline:
			if !fake.Connected() {
				t.Fatalf("client disconnected despite health recovery")
			}
			return
		}
	}
}
