// internal/encoder/supervisor.go
package encoder

import (
	"context"
	"log"
	"time"

	"github.com/loveourearth/JHS-EncoderReader/internal/events"
)

// SupervisorConfig tunes the connection supervisor. Zero values select
// the defaults.
type SupervisorConfig struct {
	CheckInterval     time.Duration // reconnect tick, default 5s
	MaxRetries        int           // fast reconnect attempts, default 3
	SlowRetryInterval time.Duration // retry pace after MaxRetries, default 60s
	HealthInterval    time.Duration // health-check pace while connected, default 30s
	HealthFailLimit   int           // failures before declaring the link dead, default 3
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.SlowRetryInterval <= 0 {
		c.SlowRetryInterval = 60 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.HealthFailLimit <= 0 {
		c.HealthFailLimit = 3
	}
	return c
}

// Supervisor watches the device session: reconnects while it is down and
// health-checks it while it is up. A silently-dead serial link is caught
// here instead of waiting for a user read to fail.
//
// Laps survive a supervised reconnect: the supervisor reopens the session
// directly and does not reset the monitor's lap state.
type Supervisor struct {
	client Client
	bus    *events.Bus
	cfg    SupervisorConfig
}

// NewSupervisor creates a supervisor for an existing device session.
func NewSupervisor(client Client, bus *events.Bus, cfg SupervisorConfig) *Supervisor {
	return &Supervisor{client: client, bus: bus, cfg: cfg.withDefaults()}
}

// Run drives the check loop until ctx is cancelled. One goroutine per
// session, owned by the process assembly.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	retries := 0
	var lastAttempt time.Time
	healthFails := 0
	lastHealth := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.client.Connected() {
			// After MaxRetries consecutive failures drop to the slow
			// retry pace so a missing device does not produce a hot loop.
			if retries >= s.cfg.MaxRetries && time.Since(lastAttempt) < s.cfg.SlowRetryInterval {
				continue
			}
			lastAttempt = time.Now()

			if err := s.client.Connect(); err != nil {
				retries++
				if retries == s.cfg.MaxRetries {
					log.Printf("encoder: reconnect failed %d times, retrying every %s: %v",
						retries, s.cfg.SlowRetryInterval, err)
				}
				continue
			}

			log.Printf("encoder: connection restored after %d failed attempts", retries)
			retries = 0
			healthFails = 0
			lastHealth = time.Now()
			s.bus.Publish(events.New(events.ConnectionRestored, map[string]interface{}{
				"connected": true,
			}))
			continue
		}

		retries = 0
		if time.Since(lastHealth) < s.cfg.HealthInterval {
			continue
		}
		lastHealth = time.Now()

		if err := s.client.Ping(); err != nil {
			healthFails++
			log.Printf("encoder: health check failed (%d/%d): %v", healthFails, s.cfg.HealthFailLimit, err)
			if healthFails >= s.cfg.HealthFailLimit {
				healthFails = 0
				s.client.MarkDisconnected()
				s.bus.Publish(events.New(events.ConnectionLost, map[string]interface{}{
					"connected": false,
				}))
			}
			continue
		}
		healthFails = 0
	}
}
