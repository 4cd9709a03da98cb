// internal/gpio/gpio.go
package gpio

import (
	"log"
	"sync"
	"time"

	"github.com/warthog618/gpiod"

	"github.com/loveourearth/JHS-EncoderReader/internal/events"
	"github.com/loveourearth/JHS-EncoderReader/internal/syserr"
)

// Config selects the chip and the pin layout. Pins are BCM numbers.
type Config struct {
	Chip         string
	OutputPins   []int
	InputPin     int
	EnableEvents bool
}

// OutputState is one output pin's current level.
type OutputState struct {
	Index int  `json:"index"`
	Pin   int  `json:"pin"`
	High  bool `json:"high"`
}

// Snapshot is the full pin state for status payloads.
type Snapshot struct {
	Outputs   []OutputState `json:"outputs"`
	InputPin  int           `json:"input_pin"`
	Input     bool          `json:"input"`
	Simulated bool          `json:"simulated"`
}

const defaultPulse = 100 * time.Millisecond

// Controller drives the output pins and watches the input pin. When the
// gpio chip cannot be opened (development host, missing permissions) it
// falls back to an in-memory simulation with the same surface, tracking
// levels and logging transitions instead of touching hardware.
type Controller struct {
	cfg Config
	bus *events.Bus

	mu        sync.Mutex
	outputs   []bool
	input     bool
	simulated bool
	timers    map[int]*time.Timer

	chip   *gpiod.Chip
	lines  []*gpiod.Line
	inLine *gpiod.Line
}

// New opens the configured chip and requests the lines. Open failures
// are not fatal: the controller comes up simulated instead.
func New(cfg Config, bus *events.Bus) *Controller {
	c := &Controller{
		cfg:     cfg,
		bus:     bus,
		outputs: make([]bool, len(cfg.OutputPins)),
		timers:  make(map[int]*time.Timer),
	}

	if err := c.openChip(); err != nil {
		log.Printf("gpio: %v, running simulated", err)
		c.releaseLines()
		c.simulated = true
	}
	return c
}

func (c *Controller) openChip() error {
	if len(c.cfg.OutputPins) == 0 && c.cfg.InputPin <= 0 {
		return syserr.New(syserr.KindConfig, "no pins configured")
	}

	chip, err := gpiod.NewChip(c.cfg.Chip)
	if err != nil {
		return syserr.Wrap(syserr.KindResource, err, "open chip %s", c.cfg.Chip)
	}
	c.chip = chip

	for _, pin := range c.cfg.OutputPins {
		line, err := chip.RequestLine(pin, gpiod.AsOutput(0))
		if err != nil {
			return syserr.Wrap(syserr.KindResource, err, "request output pin %d", pin)
		}
		c.lines = append(c.lines, line)
	}

	if c.cfg.InputPin > 0 {
		opts := []gpiod.LineReqOption{gpiod.AsInput, gpiod.WithPullUp}
		if c.cfg.EnableEvents {
			opts = append(opts, gpiod.WithBothEdges, gpiod.WithEventHandler(c.onEdge))
		}
		line, err := chip.RequestLine(c.cfg.InputPin, opts...)
		if err != nil {
			return syserr.Wrap(syserr.KindResource, err, "request input pin %d", c.cfg.InputPin)
		}
		c.inLine = line
	}
	return nil
}

func (c *Controller) releaseLines() {
	for _, line := range c.lines {
		line.Close()
	}
	c.lines = nil
	if c.inLine != nil {
		c.inLine.Close()
		c.inLine = nil
	}
	if c.chip != nil {
		c.chip.Close()
		c.chip = nil
	}
}

// onEdge publishes input transitions through the event bus.
func (c *Controller) onEdge(evt gpiod.LineEvent) {
	high := evt.Type == gpiod.LineEventRisingEdge
	edge := "falling"
	if high {
		edge = "rising"
	}

	c.mu.Lock()
	c.input = high
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(events.New(events.GPIOInput, map[string]interface{}{
			"pin":   c.cfg.InputPin,
			"value": high,
			"edge":  edge,
		}))
	}
}

// Simulated reports whether the controller runs without hardware.
func (c *Controller) Simulated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simulated
}

// SetOutput drives one output by its configured index. A pending pulse
// on the same index is cancelled.
func (c *Controller) SetOutput(index int, high bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(index, high)
}

// SetOutputByPin drives one output by its BCM pin number.
func (c *Controller) SetOutputByPin(pin int, high bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, p := range c.cfg.OutputPins {
		if p == pin {
			return c.setLocked(i, high)
		}
	}
	return syserr.New(syserr.KindConfig, "gpio: pin %d is not a configured output", pin)
}

func (c *Controller) setLocked(index int, high bool) error {
	if index < 0 || index >= len(c.outputs) {
		return syserr.New(syserr.KindConfig, "gpio: output index %d out of range", index)
	}

	if t, ok := c.timers[index]; ok {
		t.Stop()
		delete(c.timers, index)
	}

	if !c.simulated {
		v := 0
		if high {
			v = 1
		}
		if err := c.lines[index].SetValue(v); err != nil {
			return syserr.Wrap(syserr.KindResource, err, "set pin %d", c.cfg.OutputPins[index])
		}
	} else if c.outputs[index] != high {
		log.Printf("gpio: [sim] pin %d -> %v", c.cfg.OutputPins[index], high)
	}

	c.outputs[index] = high
	return nil
}

// Toggle flips one output and returns the new level.
func (c *Controller) Toggle(index int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.outputs) {
		return false, syserr.New(syserr.KindConfig, "gpio: output index %d out of range", index)
	}
	next := !c.outputs[index]
	if err := c.setLocked(index, next); err != nil {
		return false, err
	}
	return next, nil
}

// Pulse drives one output high and schedules it low again after d.
func (c *Controller) Pulse(index int, d time.Duration) error {
	if d <= 0 {
		d = defaultPulse
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setLocked(index, true); err != nil {
		return err
	}
	c.timers[index] = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.timers, index)
		if err := c.setLocked(index, false); err != nil {
			log.Printf("gpio: pulse release: %v", err)
		}
	})
	return nil
}

// ReadInput returns the input pin level.
func (c *Controller) ReadInput() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.simulated {
		return c.input, nil
	}
	if c.inLine == nil {
		return false, syserr.New(syserr.KindConfig, "gpio: no input pin configured")
	}
	v, err := c.inLine.Value()
	if err != nil {
		return false, syserr.Wrap(syserr.KindResource, err, "read pin %d", c.cfg.InputPin)
	}
	c.input = v != 0
	return c.input, nil
}

// States returns a snapshot of every pin.
func (c *Controller) States() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		InputPin:  c.cfg.InputPin,
		Input:     c.input,
		Simulated: c.simulated,
		Outputs:   make([]OutputState, len(c.outputs)),
	}
	for i, high := range c.outputs {
		snap.Outputs[i] = OutputState{Index: i, Pin: c.cfg.OutputPins[i], High: high}
	}
	return snap
}

// Close stops pending pulses and releases the lines.
func (c *Controller) Close() {
	c.mu.Lock()
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = map[int]*time.Timer{}
	c.mu.Unlock()

	c.releaseLines()
}
