// cmd/encodersim/transport.go
package main

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/loveourearth/JHS-EncoderReader/internal/device"
)

// simTransport answers the encoder register map in memory. Position is
// derived from the wall clock on demand, so there is no feeder goroutine
// and reads taken together are consistent with each other.
type simTransport struct {
	mu      sync.Mutex
	open    bool
	started time.Time

	resolution int
	mode       string        // "spin" or "sine"
	rpm        float64       // spin rate; peak rate for sine
	period     time.Duration // sine full cycle

	offset float64 // zero offset in counts
	regs   map[uint16]uint16
}

func newSimTransport(resolution int, mode string, rpm float64, period time.Duration) *simTransport {
	return &simTransport{
		started:    time.Now(),
		resolution: resolution,
		mode:       mode,
		rpm:        rpm,
		period:     period,
		regs: map[uint16]uint16{
			device.RegSlaveAddress: 1,
			device.RegBaudRate:     0,
			device.RegMode:         device.ModeQuery,
			device.RegAutoRespTime: 20,
			device.RegDirection:    0,
			device.RegSamplingTime: 100,
		},
	}
}

func (t *simTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = true
	return nil
}

func (t *simTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = false
	return nil
}

// Reconfigure is a no-op: there is no wire to re-clock.
func (t *simTransport) Reconfigure(baud int) error { return nil }

func (t *simTransport) Endpoint() string {
	return "sim://" + t.mode
}

func (t *simTransport) ReadHolding(slave uint8, addr, qty uint16) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLocked(slave); err != nil {
		return nil, err
	}
	elapsed := time.Since(t.started).Seconds()

	// Two registers starting at the position register are the multi-turn
	// read: turns in the high word, position in the low.
	if addr == device.RegSingleTurn && qty == 2 {
		pos, turns := t.positionLocked(elapsed)
		return []uint16{uint16(turns), pos}, nil
	}

	out := make([]uint16, qty)
	for i := range out {
		v, err := t.readOneLocked(addr+uint16(i), elapsed)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *simTransport) WriteSingle(slave uint8, addr, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLocked(slave); err != nil {
		return err
	}
	elapsed := time.Since(t.started).Seconds()

	switch addr {
	case device.RegZeroFlag:
		if value == 1 {
			t.offset = t.countsLocked(elapsed)
		}
	case device.RegSetValue:
		t.offset = t.countsLocked(elapsed) - float64(value)
	case device.RegSetMidpoint:
		if value == 1 {
			t.offset = t.countsLocked(elapsed) - float64(t.resolution)/2
		}
	case device.RegSlaveAddress, device.RegBaudRate, device.RegMode,
		device.RegAutoRespTime, device.RegDirection, device.RegSamplingTime:
		t.regs[addr] = value
	default:
		return fmt.Errorf("sim: illegal write address 0x%04X", addr)
	}
	return nil
}

func (t *simTransport) checkLocked(slave uint8) error {
	if !t.open {
		return fmt.Errorf("sim: port not open")
	}
	if slave != uint8(t.regs[device.RegSlaveAddress]) {
		// A wrong bus address gets silence on RS-485; here it gets an
		// explicit error instead of a timeout.
		return fmt.Errorf("sim: no response from slave %d", slave)
	}
	return nil
}

func (t *simTransport) readOneLocked(addr uint16, elapsed float64) (uint16, error) {
	switch addr {
	case device.RegSingleTurn:
		pos, _ := t.positionLocked(elapsed)
		return pos, nil
	case device.RegVirtualTurn, device.RegMultiTurn2:
		_, turns := t.positionLocked(elapsed)
		return uint16(turns), nil
	case device.RegSpeed, device.RegSpeed2:
		return t.speedRegLocked(elapsed), nil
	}
	if v, ok := t.regs[addr]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("sim: illegal read address 0x%04X", addr)
}

// countsLocked is the continuous rotation model in encoder counts.
func (t *simTransport) countsLocked(elapsed float64) float64 {
	var c float64
	switch t.mode {
	case "sine":
		omega := 2 * math.Pi / t.period.Seconds()
		amp := t.rpm * float64(t.resolution) / (60 * omega)
		c = amp * math.Sin(omega*elapsed)
	default:
		c = t.rpm / 60 * float64(t.resolution) * elapsed
	}
	if t.regs[device.RegDirection] == 1 {
		c = -c
	}
	return c
}

func (t *simTransport) rpmLocked(elapsed float64) float64 {
	var r float64
	switch t.mode {
	case "sine":
		omega := 2 * math.Pi / t.period.Seconds()
		r = t.rpm * math.Cos(omega*elapsed)
	default:
		r = t.rpm
	}
	if t.regs[device.RegDirection] == 1 {
		r = -r
	}
	return r
}

func (t *simTransport) positionLocked(elapsed float64) (uint16, int64) {
	c := t.countsLocked(elapsed) - t.offset
	res := float64(t.resolution)
	turns := int64(math.Floor(c / res))
	pos := int(c - float64(turns)*res)
	return uint16(pos), turns
}

func (t *simTransport) speedRegLocked(elapsed float64) uint16 {
	sampling := float64(t.regs[device.RegSamplingTime])
	raw := t.rpmLocked(elapsed) * float64(t.resolution) * sampling / 60000.0

	v := int(math.Round(raw))
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return uint16(int16(v))
}
