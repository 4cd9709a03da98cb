// internal/device/client.go
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/loveourearth/JHS-EncoderReader/internal/syserr"
)

// Client is the typed encoder client. It owns the transport, serializes
// wire access, validates every register access against the register map
// and applies the documented write side effects.
type Client struct {
	mu sync.Mutex

	tr        Transport
	cfg       Config
	slave     uint8
	baud      int
	connected bool
	counters  Counters
}

// New creates a client with immutable retry policy.
func New(tr Transport, baud int, cfg Config) (*Client, error) {
	if tr == nil {
		return nil, syserr.New(syserr.KindConfig, "device: transport required")
	}
	if cfg.SlaveAddress < 1 {
		return nil, syserr.New(syserr.KindConfig, "device: slave address must be 1-255")
	}
	if cfg.Resolution <= 0 {
		return nil, syserr.New(syserr.KindConfig, "device: resolution must be > 0")
	}
	if cfg.SamplingMs <= 0 {
		return nil, syserr.New(syserr.KindConfig, "device: sampling time must be > 0")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	return &Client{
		tr:    tr,
		cfg:   cfg,
		slave: cfg.SlaveAddress,
		baud:  baud,
	}, nil
}

// Connect opens the transport and resets the counters.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.connected {
		return nil
	}
	if err := c.tr.Open(); err != nil {
		return syserr.Wrap(syserr.KindConnection, err, "open %s", c.tr.Endpoint())
	}
	c.connected = true
	c.counters = Counters{}
	return nil
}

// Close closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.tr.Close()
}

// Connected reports whether the transport is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// MarkDisconnected flags the session dead without touching the transport.
// Used by the supervisor when health checks trip.
func (c *Client) MarkDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.connected = false
		c.tr.Close()
	}
}

// ReadRegister reads count holding registers starting at addr.
// Transient failures are retried with linear backoff before giving up.
func (c *Client) ReadRegister(addr, count uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, ok := Lookup(addr)
	if !ok {
		return nil, syserr.Wrap(syserr.KindConfig, ErrUnknownRegister, "read 0x%04X", addr)
	}
	if desc.Access != AccessRead {
		return nil, syserr.New(syserr.KindConfig, "register 0x%04X does not support read", addr)
	}
	if count < 1 {
		count = 1
	}

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	var regs []uint16
	err := syserr.Retry(c.cfg.MaxRetries, c.cfg.RetryBackoff, func() error {
		c.counters.Tx++
		var rerr error
		regs, rerr = c.tr.ReadHolding(c.slave, addr, count)
		if rerr != nil {
			return rerr
		}
		c.counters.Rx++
		return nil
	})
	if err != nil {
		c.counters.Errors++
		return nil, syserr.Wrap(syserr.KindDevice, err, "read 0x%04X x%d", addr, count)
	}
	return regs, nil
}

// WriteRegister writes value to addr after range validation.
// A successful write to the slave-address register re-targets the cached
// address; a successful write to the baud-rate register reconfigures the
// transport for the new speed.
func (c *Client) WriteRegister(addr, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, ok := Lookup(addr)
	if !ok {
		return syserr.Wrap(syserr.KindConfig, ErrUnknownRegister, "write 0x%04X", addr)
	}
	if desc.Access != AccessWrite {
		return syserr.New(syserr.KindConfig, "register 0x%04X does not support write", addr)
	}
	if desc.Ranged && (value < desc.Min || value > desc.Max) {
		return syserr.New(syserr.KindConfig, "value %d out of range %d-%d for %s", value, desc.Min, desc.Max, desc.Name)
	}

	if err := c.connectLocked(); err != nil {
		return err
	}

	err := syserr.Retry(c.cfg.MaxRetries, c.cfg.RetryBackoff, func() error {
		c.counters.Tx++
		if werr := c.tr.WriteSingle(c.slave, addr, value); werr != nil {
			return werr
		}
		c.counters.Rx++
		return nil
	})
	if err != nil {
		c.counters.Errors++
		return syserr.Wrap(syserr.KindDevice, err, "write 0x%04X=%d", addr, value)
	}

	switch addr {
	case RegSlaveAddress:
		c.slave = uint8(value)
	case RegBaudRate:
		if baud, ok := BaudFromCode(value); ok {
			c.baud = baud
			if rerr := c.tr.Reconfigure(baud); rerr != nil {
				c.connected = false
				return syserr.Wrap(syserr.KindConnection, rerr, "reopen %s at %d baud", c.tr.Endpoint(), baud)
			}
		}
	case RegSamplingTime:
		c.cfg.SamplingMs = int(value)
	}
	return nil
}

// ---- typed accessors ----

// ReadPosition returns the single-turn position.
func (c *Client) ReadPosition() (uint16, error) {
	regs, err := c.ReadRegister(RegSingleTurn, 1)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

// ReadMultiPosition returns the multi-turn position, two registers wide.
func (c *Client) ReadMultiPosition() (uint32, error) {
	regs, err := c.ReadRegister(RegSingleTurn, 2)
	if err != nil {
		return 0, err
	}
	if len(regs) < 2 {
		return 0, syserr.New(syserr.KindDevice, "multi-turn read returned %d registers", len(regs))
	}
	return uint32(regs[0])<<16 | uint32(regs[1]), nil
}

// ReadVirtualTurns returns the virtual turns value.
func (c *Client) ReadVirtualTurns() (uint16, error) {
	regs, err := c.ReadRegister(RegVirtualTurn, 1)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

// ReadSpeed returns the raw signed speed register and the derived RPM.
//
// RPM = raw / resolution / (samplingMs / 60000): the register counts
// ticks per sampling window, so dividing by counts-per-turn and the
// window length in minutes yields turns per minute.
func (c *Client) ReadSpeed() (int, float64, error) {
	regs, err := c.ReadRegister(RegSpeed, 1)
	if err != nil {
		return 0, 0, err
	}

	c.mu.Lock()
	resolution := c.cfg.Resolution
	samplingMs := c.cfg.SamplingMs
	c.mu.Unlock()

	raw := SignedValue(regs[0])
	rpm := float64(raw) / float64(resolution) / (float64(samplingMs) / 60000.0)
	return raw, rpm, nil
}

// SetZero makes the current position the zero point.
func (c *Client) SetZero() error {
	return c.WriteRegister(RegZeroFlag, 1)
}

// SetAddress changes the device bus address.
func (c *Client) SetAddress(addr uint8) error {
	if addr < 1 {
		return syserr.New(syserr.KindConfig, "slave address must be 1-255")
	}
	return c.WriteRegister(RegSlaveAddress, uint16(addr))
}

// SetBaudRate changes the wire speed. baud must be one of the supported
// rates; the transport is reopened at the new speed on success.
func (c *Client) SetBaudRate(baud int) error {
	code, ok := CodeFromBaud(baud)
	if !ok {
		return syserr.New(syserr.KindConfig, "unsupported baud rate %d", baud)
	}
	return c.WriteRegister(RegBaudRate, code)
}

// SetMode selects the device operating mode.
func (c *Client) SetMode(mode uint16) error {
	if !ValidMode(mode) {
		return syserr.New(syserr.KindConfig, "unsupported encoder mode %d", mode)
	}
	return c.WriteRegister(RegMode, mode)
}

// SetAutoResponseTime sets the push period for the auto-send modes.
func (c *Client) SetAutoResponseTime(ms uint16) error {
	return c.WriteRegister(RegAutoRespTime, ms)
}

// SetSamplingTime sets the speed sampling window. The cached value used
// by ReadSpeed follows the register.
func (c *Client) SetSamplingTime(ms uint16) error {
	return c.WriteRegister(RegSamplingTime, ms)
}

// SetIncreaseDirection selects which rotation direction increases the
// position value: counterClockwise false selects clockwise.
func (c *Client) SetIncreaseDirection(counterClockwise bool) error {
	v := uint16(0)
	if counterClockwise {
		v = 1
	}
	return c.WriteRegister(RegDirection, v)
}

// PresetPosition sets the current position register to v.
func (c *Client) PresetPosition(v uint16) error {
	return c.WriteRegister(RegSetValue, v)
}

// PresetMidpoint moves the current position to the midpoint.
func (c *Client) PresetMidpoint() error {
	return c.WriteRegister(RegSetMidpoint, 1)
}

// Ping performs one un-retried read of the position register.
// Used by the connection supervisor's health check.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return syserr.New(syserr.KindConnection, "not connected")
	}
	c.counters.Tx++
	if _, err := c.tr.ReadHolding(c.slave, RegSingleTurn, 1); err != nil {
		c.counters.Errors++
		return syserr.Wrap(syserr.KindConnection, err, "health check")
	}
	c.counters.Rx++
	return nil
}

// Resolution returns the configured counts per revolution.
func (c *Client) Resolution() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Resolution
}

// SamplingMs returns the active speed sampling window.
func (c *Client) SamplingMs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.SamplingMs
}

// ResetCounters zeroes the communication counters.
func (c *Client) ResetCounters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = Counters{}
}

// Status returns a snapshot of the client state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Endpoint:     c.tr.Endpoint(),
		Connected:    c.connected,
		SlaveAddress: c.slave,
		Baud:         c.baud,
		Resolution:   c.cfg.Resolution,
		SamplingMs:   c.cfg.SamplingMs,
		Counters:     c.counters,
	}
}

// String implements fmt.Stringer for log lines.
func (c *Client) String() string {
	s := c.Status()
	return fmt.Sprintf("encoder(%s slave=%d baud=%d)", s.Endpoint, s.SlaveAddress, s.Baud)
}
