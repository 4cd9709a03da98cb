// internal/device/rtu/transport.go
package rtu

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// settleDelay is how long the device needs to apply a new baud rate
// before the port is reopened.
const settleDelay = 500 * time.Millisecond

// Config is the serial link configuration.
type Config struct {
	Port     string
	Baud     int
	DataBits int
	Parity   string // "N", "E", "O"
	StopBits int
	Timeout  time.Duration

	// Debug, when set, receives TX/RX hex dumps of every frame.
	Debug *log.Logger
}

// Transport implements device.Transport over a raw serial port.
// One request/response exchange at a time; the mutex keeps concurrent
// callers from interleaving frames on the wire.
type Transport struct {
	mu   sync.Mutex
	cfg  Config
	port io.ReadWriteCloser
}

// New creates an unopened transport.
func New(cfg Config) *Transport {
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	return &Transport{cfg: cfg}
}

// Open opens the serial port.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openLocked()
}

func (t *Transport) openLocked() error {
	if t.port != nil {
		return nil
	}
	port, err := serial.Open(&serial.Config{
		Address:  t.cfg.Port,
		BaudRate: t.cfg.Baud,
		DataBits: t.cfg.DataBits,
		Parity:   t.cfg.Parity,
		StopBits: t.cfg.StopBits,
		Timeout:  t.cfg.Timeout,
	})
	if err != nil {
		return err
	}
	t.port = port
	return nil
}

// Close closes the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *Transport) closeLocked() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// Reconfigure closes the port, waits for the device to apply the new
// rate, and reopens at baud.
func (t *Transport) Reconfigure(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.closeLocked(); err != nil {
		return err
	}
	time.Sleep(settleDelay)
	t.cfg.Baud = baud
	return t.openLocked()
}

// Endpoint returns the device path.
func (t *Transport) Endpoint() string { return t.cfg.Port }

// ReadHolding performs one FC 0x03 exchange.
func (t *Transport) ReadHolding(slave uint8, addr, qty uint16) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame, err := t.roundTrip(BuildRead(slave, addr, qty))
	if err != nil {
		return nil, err
	}
	if frame[1]&0x80 != 0 {
		return nil, parseException(frame, slave)
	}
	return parseReadPayload(frame, slave, qty)
}

// WriteSingle performs one FC 0x06 exchange.
func (t *Transport) WriteSingle(slave uint8, addr, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame, err := t.roundTrip(BuildWrite(slave, addr, value))
	if err != nil {
		return err
	}
	if frame[1]&0x80 != 0 {
		return parseException(frame, slave)
	}
	return parseWriteEcho(frame, slave, addr, value)
}

// roundTrip writes req and reads one complete response frame. The
// response length is derived from the function code in the header, so
// exception frames are picked up regardless of the request geometry.
func (t *Transport) roundTrip(req []byte) ([]byte, error) {
	if t.port == nil {
		return nil, fmt.Errorf("rtu: port not open")
	}

	t.logFrame("TX", req)

	if _, err := t.port.Write(req); err != nil {
		return nil, fmt.Errorf("rtu: write: %w", err)
	}

	// Header: slave, function, first payload byte.
	header := make([]byte, 3)
	if _, err := io.ReadFull(t.port, header); err != nil {
		return nil, fmt.Errorf("rtu: read header: %w", err)
	}

	var rest int
	switch {
	case header[1]&0x80 != 0:
		// [code] already read; CRC remains.
		rest = 2
	case header[1] == 0x03:
		// header[2] is the byte count; data + CRC remain.
		rest = int(header[2]) + 2
	case header[1] == 0x06:
		// header[2] is addrHi; addrLo, value, CRC remain.
		rest = 5
	default:
		return nil, fmt.Errorf("rtu: unexpected function 0x%02X", header[1])
	}

	body := make([]byte, rest)
	if _, err := io.ReadFull(t.port, body); err != nil {
		return nil, fmt.Errorf("rtu: read body: %w", err)
	}

	frame := append(header, body...)
	t.logFrame("RX", frame)
	return frame, nil
}

func (t *Transport) logFrame(dir string, frame []byte) {
	if t.cfg.Debug != nil {
		t.cfg.Debug.Printf("%s: % X", dir, frame)
	}
}
