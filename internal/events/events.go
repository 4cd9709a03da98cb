// internal/events/events.go
package events

import "time"

// Event kinds emitted by the encoder monitor, the connection supervisor
// and the GPIO controller. The kind string travels on the wire in event
// notifications and MUST NOT be changed.
type Kind string

const (
	Connected          Kind = "connected"
	ConnectionFailed   Kind = "connectionFailed"
	Disconnected       Kind = "disconnected"
	ZeroSet            Kind = "zeroSet"
	LapChanged         Kind = "lapChanged"
	DataUpdate         Kind = "dataUpdate"
	MonitorError       Kind = "monitorError"
	MonitoringStarted  Kind = "monitoringStarted"
	MonitoringStopped  Kind = "monitoringStopped"
	ConnectionLost     Kind = "connectionLost"
	ConnectionRestored Kind = "connectionRestored"
	GPIOInput          Kind = "gpioInput"
)

// Event is one published occurrence. Data carries kind-specific payload
// fields and may be nil.
type Event struct {
	Kind Kind
	At   time.Time
	Data map[string]interface{}
}

// New builds an event stamped with the current time.
func New(kind Kind, data map[string]interface{}) Event {
	return Event{Kind: kind, At: time.Now(), Data: data}
}
