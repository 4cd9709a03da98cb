// internal/encoder/types.go
package encoder

import (
	"time"

	"github.com/loveourearth/JHS-EncoderReader/internal/device"
)

// Client abstracts the device operations the monitor needs.
// The monitor depends on geometry only.
type Client interface {
	Connect() error
	Close() error
	Connected() bool
	MarkDisconnected()
	Ping() error
	ReadPosition() (uint16, error)
	ReadSpeed() (int, float64, error)
	SetZero() error
	Resolution() int
	Status() device.Status
}

// Direction is the rotation direction inferred from the speed register.
type Direction int

const (
	Stopped Direction = 0
	Forward Direction = 1
	Reverse Direction = -1
)

// String returns the wire label for the direction.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	}
	return "stopped"
}

// Sample is one poll-cycle reading. Immutable once emitted.
type Sample struct {
	Address   uint8
	At        time.Time
	Position  uint16
	RawSpeed  int
	Angle     float64
	RPM       float64
	Direction Direction
	Laps      int64
}

// Status is a snapshot of the monitor and its device session.
type Status struct {
	Device       device.Status
	Monitoring   bool
	Interval     time.Duration
	Laps         int64
	LastPosition int // -1 until the first sample lands
}
