// internal/device/types.go
package device

import "time"

// Transport is one Modbus round trip over some link.
// Implementations are geometry-only: no register semantics, no retries.
type Transport interface {
	Open() error
	Close() error

	// ReadHolding performs one FC 0x03 request.
	ReadHolding(slave uint8, addr, qty uint16) ([]uint16, error)

	// WriteSingle performs one FC 0x06 request and checks the echo.
	WriteSingle(slave uint8, addr, value uint16) error

	// Reconfigure applies a new wire speed to an open link.
	// Links without a configurable speed treat this as a no-op.
	Reconfigure(baud int) error

	// Endpoint describes the link for logs and status payloads.
	Endpoint() string
}

// Config is the client runtime configuration.
type Config struct {
	SlaveAddress uint8
	Resolution   int
	SamplingMs   int

	MaxRetries   int           // wire attempts per operation, default 3
	RetryBackoff time.Duration // linear backoff base, default 100ms
}

// Counters is a snapshot of the communication counters.
type Counters struct {
	Tx     uint64 // requests put on the wire
	Rx     uint64 // valid responses received
	Errors uint64 // operations that failed after retries
}

// Status is a read-only snapshot of the client state.
type Status struct {
	Endpoint     string
	Connected    bool
	SlaveAddress uint8
	Baud         int
	Resolution   int
	SamplingMs   int
	Counters     Counters
}
