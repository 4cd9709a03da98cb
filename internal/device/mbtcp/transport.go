// internal/device/mbtcp/transport.go
package mbtcp

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Transport implements device.Transport over Modbus TCP, for encoders
// behind serial device servers that do protocol conversion. It serializes
// requests because it mutates SlaveId per call.
type Transport struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
	opened  bool
}

// Config is the TCP link configuration.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// New creates an unopened transport.
func New(cfg Config) (*Transport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("mbtcp: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	return &Transport{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// Open connects to the endpoint.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opened {
		return nil
	}
	if err := t.handler.Connect(); err != nil {
		return err
	}
	t.opened = true
	return nil
}

// Close closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opened {
		return nil
	}
	t.opened = false
	return t.handler.Close()
}

// Reconfigure is a no-op: the serial side behind the device server keeps
// its own rate and the TCP endpoint does not change.
func (t *Transport) Reconfigure(baud int) error { return nil }

// Endpoint returns the TCP endpoint.
func (t *Transport) Endpoint() string { return t.handler.Address }

// ReadHolding performs one FC 0x03 request.
func (t *Transport) ReadHolding(slave uint8, addr, qty uint16) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler.SlaveId = slave

	payload, err := t.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	if len(payload) != int(qty)*2 {
		return nil, fmt.Errorf("mbtcp: payload length %d, want %d", len(payload), qty*2)
	}

	regs := make([]uint16, qty)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(payload[2*i:])
	}
	return regs, nil
}

// WriteSingle performs one FC 0x06 request.
func (t *Transport) WriteSingle(slave uint8, addr, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler.SlaveId = slave

	echo, err := t.client.WriteSingleRegister(addr, value)
	if err != nil {
		return err
	}
	if len(echo) == 2 && binary.BigEndian.Uint16(echo) != value {
		return fmt.Errorf("mbtcp: value echo mismatch: got=%d want=%d", binary.BigEndian.Uint16(echo), value)
	}
	return nil
}
