// internal/encoder/monitor.go
package encoder

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/loveourearth/JHS-EncoderReader/internal/events"
	"github.com/loveourearth/JHS-EncoderReader/internal/syserr"
)

// defaultThreshold is the wrap threshold used when the resolution is unknown.
const defaultThreshold = 2048

// stopTimeout bounds the join in StopMonitoring.
const stopTimeout = 3 * time.Second

// The poll loop aborts after this many consecutive failed reads, or after
// staleLimit without a single success, whichever trips first.
const maxConsecutiveFails = 5
const staleLimit = 10 * time.Second

// Monitor polls the encoder, tracks laps across zero crossings and
// publishes samples and state changes on the event bus.
//
// States: Disconnected -> Connected -> Monitoring -> Connected -> Disconnected.
type Monitor struct {
	mu     sync.Mutex
	client Client
	bus    *events.Bus

	threshold int
	lastPos   int // -1 until the first sample
	laps      int64

	monitoring bool
	interval   time.Duration
	stop       chan struct{}
	done       chan struct{}
}

// NewMonitor creates a monitor over an already-constructed device client.
func NewMonitor(client Client, bus *events.Bus) *Monitor {
	m := &Monitor{
		client:  client,
		bus:     bus,
		lastPos: -1,
	}
	m.threshold = wrapThreshold(client.Resolution())
	return m
}

func wrapThreshold(resolution int) int {
	if resolution <= 0 {
		return defaultThreshold
	}
	return resolution / 2
}

// Connect opens the device session and resets the lap state.
func (m *Monitor) Connect() error {
	if err := m.client.Connect(); err != nil {
		m.bus.Publish(events.New(events.ConnectionFailed, map[string]interface{}{
			"error": err.Error(),
		}))
		return err
	}

	m.mu.Lock()
	m.lastPos = -1
	m.laps = 0
	m.threshold = wrapThreshold(m.client.Resolution())
	m.mu.Unlock()

	m.bus.Publish(events.New(events.Connected, map[string]interface{}{
		"endpoint": m.client.Status().Endpoint,
	}))
	return nil
}

// Disconnect stops any running loop and closes the device session.
func (m *Monitor) Disconnect() error {
	if err := m.StopMonitoring(); err != nil {
		log.Printf("encoder: stop before disconnect: %v", err)
	}
	if err := m.client.Close(); err != nil {
		return err
	}
	m.bus.Publish(events.New(events.Disconnected, nil))
	return nil
}

// Connected reports whether the device session is open.
func (m *Monitor) Connected() bool {
	return m.client.Connected()
}

// SetZero zeroes the device position and resets the lap state.
func (m *Monitor) SetZero() error {
	if err := m.client.SetZero(); err != nil {
		return err
	}
	m.mu.Lock()
	m.lastPos = -1
	m.laps = 0
	m.mu.Unlock()

	m.bus.Publish(events.New(events.ZeroSet, nil))
	return nil
}

// updateLapLocked advances the lap counter for a new position sample.
// A jump larger than the threshold is a wrap across zero: rolling from
// near-max to near-zero counts one lap clockwise, the opposite roll
// counts one lap counter-clockwise. Caller holds mu.
func (m *Monitor) updateLapLocked(pos int) (laps int64, label string, changed bool) {
	if m.lastPos < 0 {
		m.lastPos = pos
		return m.laps, "", false
	}

	diff := pos - m.lastPos
	m.lastPos = pos

	if diff > m.threshold {
		m.laps--
		return m.laps, "counterclockwise", true
	}
	if -diff > m.threshold {
		m.laps++
		return m.laps, "clockwise", true
	}
	return m.laps, "", false
}

// Direction infers the rotation direction from the speed register.
// Any read failure is reported as stopped; direction is advisory only.
func (m *Monitor) Direction() Direction {
	_, rpm, err := m.client.ReadSpeed()
	if err != nil {
		return Stopped
	}
	return classifyDirection(rpm)
}

func classifyDirection(rpm float64) Direction {
	if math.Abs(rpm) < 1.0 {
		return Stopped
	}
	if rpm > 0 {
		return Forward
	}
	return Reverse
}

// StartMonitoring spawns the poll loop. Calling it while a loop is
// already running is a no-op success, not an error.
func (m *Monitor) StartMonitoring(interval time.Duration) error {
	m.mu.Lock()
	if m.monitoring {
		m.mu.Unlock()
		return nil
	}
	if !m.client.Connected() {
		m.mu.Unlock()
		return syserr.New(syserr.KindConnection, "encoder: not connected")
	}
	if interval <= 0 {
		interval = time.Second
	}
	m.monitoring = true
	m.interval = interval
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	m.bus.Publish(events.New(events.MonitoringStarted, map[string]interface{}{
		"interval": interval.Seconds(),
	}))
	go m.run(interval, stop, done)
	return nil
}

// StopMonitoring signals the loop and joins it with a bounded wait.
// A loop that does not come back within stopTimeout is reported as a
// resource error, never a crash.
func (m *Monitor) StopMonitoring() error {
	m.mu.Lock()
	if !m.monitoring || m.stop == nil {
		m.mu.Unlock()
		return nil
	}
	stop, done := m.stop, m.done
	m.stop = nil
	m.mu.Unlock()

	close(stop)
	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout):
		return syserr.New(syserr.KindResource, "encoder: monitor loop did not stop within %s", stopTimeout)
	}
}

// Monitoring reports whether the poll loop is alive.
func (m *Monitor) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

// Laps returns the current lap count.
func (m *Monitor) Laps() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.laps
}

// Status returns a snapshot of the monitor and the device session.
func (m *Monitor) Status() Status {
	dev := m.client.Status()

	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Device:       dev,
		Monitoring:   m.monitoring,
		Interval:     m.interval,
		Laps:         m.laps,
		LastPosition: m.lastPos,
	}
}

func (m *Monitor) run(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		m.monitoring = false
		m.stop = nil
		m.mu.Unlock()
		m.bus.Publish(events.New(events.MonitoringStopped, nil))
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fails := 0
	lastSuccess := time.Now()

	for {
		if err := m.pollOnce(); err != nil {
			fails++
			if fails > maxConsecutiveFails || time.Since(lastSuccess) > staleLimit {
				log.Printf("encoder: aborting monitor after %d consecutive failed reads: %v", fails, err)
				m.bus.Publish(events.New(events.MonitorError, map[string]interface{}{
					"error":            err.Error(),
					"consecutiveFails": fails,
				}))
				return
			}
		} else {
			fails = 0
			lastSuccess = time.Now()
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// pollOnce performs one cycle: position, lap update, speed, publish.
func (m *Monitor) pollOnce() error {
	pos, err := m.client.ReadPosition()
	if err != nil {
		return err
	}

	m.mu.Lock()
	laps, lapLabel, lapChanged := m.updateLapLocked(int(pos))
	m.mu.Unlock()

	raw, rpm := 0, 0.0
	dir := Stopped
	if r, v, serr := m.client.ReadSpeed(); serr == nil {
		raw, rpm = r, v
		dir = classifyDirection(v)
	}

	st := m.client.Status()
	resolution := st.Resolution
	if resolution <= 0 {
		resolution = 2 * defaultThreshold
	}
	angle := float64(pos) * 360.0 / float64(resolution)

	if lapChanged {
		m.bus.Publish(events.New(events.LapChanged, map[string]interface{}{
			"laps":      laps,
			"direction": lapLabel,
			"position":  pos,
		}))
	}

	sample := Sample{
		Address:   st.SlaveAddress,
		At:        time.Now(),
		Position:  pos,
		RawSpeed:  raw,
		Angle:     angle,
		RPM:       rpm,
		Direction: dir,
		Laps:      laps,
	}
	m.bus.Publish(events.New(events.DataUpdate, map[string]interface{}{
		"sample": sample,
	}))
	return nil
}
