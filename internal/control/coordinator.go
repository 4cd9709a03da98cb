// internal/control/coordinator.go
package control

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loveourearth/JHS-EncoderReader/internal/device"
	"github.com/loveourearth/JHS-EncoderReader/internal/encoder"
	"github.com/loveourearth/JHS-EncoderReader/internal/events"
	"github.com/loveourearth/JHS-EncoderReader/internal/gateway"
	"github.com/loveourearth/JHS-EncoderReader/internal/gpio"
)

// Monitor is the slice of the encoder monitor the coordinator drives.
type Monitor interface {
	MonitorControl
	Connect() error
	Disconnect() error
	Connected() bool
	SetZero() error
	Status() encoder.Status
}

// Device is the register-level access used by the read/write commands.
type Device interface {
	ReadRegister(addr, count uint16) ([]uint16, error)
	WriteRegister(addr, value uint16) error
	ReadPosition() (uint16, error)
	ReadMultiPosition() (uint32, error)
	ReadSpeed() (int, float64, error)
	ResetCounters()
	Status() device.Status
}

// Pins is the GPIO surface routed by the gpio commands.
type Pins interface {
	SetOutput(index int, high bool) error
	SetOutputByPin(pin int, high bool) error
	Toggle(index int) (bool, error)
	Pulse(index int, d time.Duration) error
	ReadInput() (bool, error)
	States() gpio.Snapshot
}

// Sender is the outbound side of the gateway.
type Sender interface {
	SendTo(client gateway.ClientSession, address string, fields map[string]interface{}, order []string) error
	Broadcast(address string, fields map[string]interface{}, order []string, topic string) int
	Registry() *gateway.Registry
	Stats() gateway.Stats
	ReturnPort() int
}

// MonitorFieldOrder fixes the positional sequence of every monitor data
// message.
var MonitorFieldOrder = []string{"timestamp", "direction", "angle", "rpm", "laps", "rawAngle", "rawRpm"}

// validTopics are the broadcast streams clients can narrow to.
var validTopics = map[string]struct{}{
	"laps":   {},
	"system": {},
	"errors": {},
	"gpio":   {},
}

// Coordinator routes decoded commands to the encoder, device and gpio
// subsystems, bridges bus events onto the network, and owns the
// monitor-task table.
type Coordinator struct {
	server     Sender
	bus        *events.Bus
	monitor    Monitor
	device     Device
	pins       Pins
	tasks      *TaskManager
	deviceName string
	started    time.Time

	subs []uuid.UUID
}

func NewCoordinator(server Sender, bus *events.Bus, monitor Monitor, dev Device, pins Pins, deviceName string) *Coordinator {
	return &Coordinator{
		server:     server,
		bus:        bus,
		monitor:    monitor,
		device:     dev,
		pins:       pins,
		tasks:      NewTaskManager(monitor),
		deviceName: deviceName,
		started:    time.Now(),
	}
}

// Attach subscribes the coordinator to the event bus.
func (c *Coordinator) Attach() {
	c.subs = append(c.subs,
		c.bus.Subscribe(c.onSample, events.DataUpdate),
		c.bus.Subscribe(c.onLapChange, events.LapChanged),
		c.bus.Subscribe(c.onGPIOInput, events.GPIOInput),
		c.bus.Subscribe(c.onSystemEvent,
			events.Connected, events.ConnectionFailed, events.Disconnected,
			events.ZeroSet, events.MonitorError, events.MonitoringStarted,
			events.MonitoringStopped, events.ConnectionLost, events.ConnectionRestored),
	)
}

// Detach removes the bus subscriptions.
func (c *Coordinator) Detach() {
	for _, id := range c.subs {
		c.bus.Unsubscribe(id)
	}
	c.subs = nil
}

// StopTasks ends every monitor task and the shared poll loop.
func (c *Coordinator) StopTasks() {
	if _, err := c.tasks.Stop(""); err != nil {
		log.Printf("control: stop tasks: %v", err)
	}
}

// StatusFields feeds the heartbeat broadcast.
func (c *Coordinator) StatusFields() map[string]interface{} {
	return map[string]interface{}{
		"connected":  c.monitor.Connected(),
		"monitoring": c.monitor.Monitoring(),
	}
}

// Handle implements the gateway handler: decode, dispatch, reply on the
// inbound address.
func (c *Coordinator) Handle(client gateway.ClientSession, address string, args []string) {
	cmd, err := Decode(address, args)
	if err != nil {
		c.reply(client, address, FromErr(err))
		return
	}
	c.reply(client, address, c.Dispatch(client, cmd))
}

func (c *Coordinator) reply(client gateway.ClientSession, address string, res Result) {
	if cur, ok := c.server.Registry().Get(client.Key); ok {
		client = cur
	}
	if err := c.server.SendTo(client, address, res.Fields(), res.FieldOrder()); err != nil {
		log.Printf("control: reply %s to %s: %v", address, client.Key, err)
	}
}

// Dispatch routes one command. Also the entry point for the interactive
// shell, which passes a synthetic local session.
func (c *Coordinator) Dispatch(client gateway.ClientSession, cmd Command) Result {
	switch cmd.Name {
	case "status":
		return c.statusCmd()
	case "whoami":
		return c.whoamiCmd(client)
	case "device_info":
		return c.deviceInfoCmd()
	case "reset_counters":
		c.device.ResetCounters()
		return Ok(map[string]interface{}{"reset": true}, "reset")
	case "subscribe":
		return c.subscribeCmd(client, cmd)
	case "unsubscribe":
		return c.unsubscribeCmd(client, cmd)

	case "connect":
		return c.connectCmd()
	case "disconnect":
		return c.disconnectCmd()
	case "read_position":
		return c.readPositionCmd()
	case "read_multi_position":
		return c.readMultiPositionCmd()
	case "read_speed":
		return c.readSpeedCmd()
	case "set_zero":
		return c.setZeroCmd()
	case "read_register":
		return c.readRegisterCmd(cmd)
	case "write_register":
		return c.writeRegisterCmd(cmd)

	case "start_monitor":
		return c.startMonitorCmd(client, cmd)
	case "stop_monitor":
		return c.stopMonitorCmd(cmd)
	case "list_monitors":
		return c.listMonitorsCmd()

	case "gpio_high", "gpio_low", "gpio_toggle", "gpio_pulse", "read_input", "gpio_states":
		if c.pins == nil {
			return Failf("gpio is not available")
		}
		return c.gpioCmd(cmd)

	default:
		return Failf("unknown command %q", cmd.Name)
	}
}

// ---- system commands ----

func (c *Coordinator) statusCmd() Result {
	st := c.monitor.Status()
	stats := c.server.Stats()
	return Ok(map[string]interface{}{
		"device":     c.deviceName,
		"connected":  st.Device.Connected,
		"monitoring": st.Monitoring,
		"laps":       st.Laps,
		"uptime_s":   int64(time.Since(c.started).Seconds()),
		"clients":    stats.Clients,
		"tasks":      c.tasks.Count(),
		"tx":         st.Device.Counters.Tx,
		"rx":         st.Device.Counters.Rx,
		"errors":     st.Device.Counters.Errors,
	}, "device", "connected", "monitoring", "laps", "uptime_s", "clients", "tasks", "tx", "rx", "errors")
}

func (c *Coordinator) whoamiCmd(client gateway.ClientSession) Result {
	if cur, ok := c.server.Registry().Get(client.Key); ok {
		client = cur
	}
	return Ok(map[string]interface{}{
		"you":           client.Key,
		"device":        c.deviceName,
		"format":        string(client.Format),
		"return_port":   c.server.ReturnPort(),
		"subscriptions": topicList(client),
	}, "you", "device", "format", "return_port", "subscriptions")
}

func (c *Coordinator) deviceInfoCmd() Result {
	ds := c.device.Status()
	return Ok(map[string]interface{}{
		"endpoint":    ds.Endpoint,
		"connected":   ds.Connected,
		"slave":       int(ds.SlaveAddress),
		"baud":        ds.Baud,
		"resolution":  ds.Resolution,
		"sampling_ms": ds.SamplingMs,
	}, "endpoint", "connected", "slave", "baud", "resolution", "sampling_ms")
}

func (c *Coordinator) subscribeCmd(client gateway.ClientSession, cmd Command) Result {
	if fs, ok := cmd.StringArg("format", 1); ok {
		f, good := gateway.ParseFormat(fs)
		if !good {
			return Failf("unknown format %q", fs)
		}
		c.server.Registry().SetFormat(client.Key, f)
	}

	if topic, ok := cmd.StringArg("topic", 0); ok {
		if _, valid := validTopics[topic]; !valid {
			return Failf("unknown topic %q, valid: %s", topic, knownTopics())
		}
		if !c.server.Registry().Subscribe(client.Key, topic) {
			return Failf("no session for %s", client.Key)
		}
	}

	cur, _ := c.server.Registry().Get(client.Key)
	return Ok(map[string]interface{}{
		"format":        string(cur.Format),
		"subscriptions": topicList(cur),
	}, "format", "subscriptions")
}

func (c *Coordinator) unsubscribeCmd(client gateway.ClientSession, cmd Command) Result {
	topic, _ := cmd.StringArg("topic", 0)
	if !c.server.Registry().Unsubscribe(client.Key, topic) {
		return Failf("no session for %s", client.Key)
	}
	cur, _ := c.server.Registry().Get(client.Key)
	return Ok(map[string]interface{}{
		"subscriptions": topicList(cur),
	}, "subscriptions")
}

// ---- encoder commands ----

func (c *Coordinator) connectCmd() Result {
	if err := c.monitor.Connect(); err != nil {
		return FromErr(err)
	}
	st := c.monitor.Status()
	return Ok(map[string]interface{}{
		"connected": true,
		"endpoint":  st.Device.Endpoint,
		"slave":     int(st.Device.SlaveAddress),
	}, "connected", "endpoint", "slave")
}

func (c *Coordinator) disconnectCmd() Result {
	if err := c.monitor.Disconnect(); err != nil {
		return FromErr(err)
	}
	return Ok(map[string]interface{}{"connected": false}, "connected")
}

func (c *Coordinator) readPositionCmd() Result {
	pos, err := c.device.ReadPosition()
	if err != nil {
		return FromErr(err)
	}
	res := c.device.Status().Resolution
	return Ok(map[string]interface{}{
		"position": int(pos),
		"angle":    float64(pos) * 360.0 / float64(res),
	}, "position", "angle")
}

func (c *Coordinator) readMultiPositionCmd() Result {
	v, err := c.device.ReadMultiPosition()
	if err != nil {
		return FromErr(err)
	}
	return Ok(map[string]interface{}{
		"multi_position": int64(v),
		"turns":          int(v >> 16),
		"position":       int(v & 0xFFFF),
	}, "multi_position", "turns", "position")
}

func (c *Coordinator) readSpeedCmd() Result {
	raw, rpm, err := c.device.ReadSpeed()
	if err != nil {
		return FromErr(err)
	}
	return Ok(map[string]interface{}{"rpm": rpm, "raw": raw}, "rpm", "raw")
}

func (c *Coordinator) setZeroCmd() Result {
	if err := c.monitor.SetZero(); err != nil {
		return FromErr(err)
	}
	return Ok(map[string]interface{}{"zeroed": true, "laps": int64(0)}, "zeroed", "laps")
}

func (c *Coordinator) readRegisterCmd(cmd Command) Result {
	addr, ok := cmd.IntArg("address", 0)
	if !ok {
		return Failf("address required")
	}
	if addr < 0 || addr > 0xFFFF {
		return Failf("address 0x%X out of range", addr)
	}
	count, ok := cmd.IntArg("count", 1)
	if !ok {
		count = 1
	}
	if count < 1 || count > 8 {
		return Failf("count %d out of range 1-8", count)
	}

	vals, err := c.device.ReadRegister(uint16(addr), uint16(count))
	if err != nil {
		return FromErr(err)
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return Ok(map[string]interface{}{
		"address": fmt.Sprintf("0x%04X", addr),
		"values":  out,
	}, "address", "values")
}

func (c *Coordinator) writeRegisterCmd(cmd Command) Result {
	addr, ok := cmd.IntArg("address", 0)
	if !ok {
		return Failf("address required")
	}
	value, ok := cmd.IntArg("value", 1)
	if !ok {
		return Failf("value required")
	}
	if addr < 0 || addr > 0xFFFF || value < 0 || value > 0xFFFF {
		return Failf("address or value out of 16-bit range")
	}

	if err := c.device.WriteRegister(uint16(addr), uint16(value)); err != nil {
		return FromErr(err)
	}
	return Ok(map[string]interface{}{
		"address": fmt.Sprintf("0x%04X", addr),
		"value":   value,
	}, "address", "value")
}

// ---- monitor commands ----

func (c *Coordinator) startMonitorCmd(client gateway.ClientSession, cmd Command) Result {
	interval, ok := cmd.FloatArg("interval", 0)
	if !ok {
		interval = 1.0
	}

	format := client.Format
	if fs, ok := cmd.StringArg("format", 1); ok {
		f, good := gateway.ParseFormat(fs)
		if !good {
			return Failf("unknown format %q", fs)
		}
		format = f
		c.server.Registry().SetFormat(client.Key, f)
	}

	task, err := c.tasks.Start(client.Key, time.Duration(interval*float64(time.Second)), format)
	if err != nil {
		return FromErr(err)
	}
	c.server.Registry().SetTask(client.Key, task.ID)

	return Ok(map[string]interface{}{
		"task_id":  task.ID,
		"interval": interval,
		"format":   string(task.Format),
	}, "task_id", "interval", "format")
}

func (c *Coordinator) stopMonitorCmd(cmd Command) Result {
	id, _ := cmd.StringArg("task_id", 0)

	stopped, err := c.tasks.Stop(id)
	if err != nil {
		return FromErr(err)
	}
	ids := make([]string, len(stopped))
	for i, t := range stopped {
		ids[i] = t.ID
		c.server.Registry().SetTask(t.ClientKey, "")
	}
	return Ok(map[string]interface{}{
		"count":   len(ids),
		"stopped": ids,
	}, "count", "stopped")
}

func (c *Coordinator) listMonitorsCmd() Result {
	tasks := c.tasks.Active()
	rows := make([]map[string]interface{}, len(tasks))
	for i, t := range tasks {
		rows[i] = map[string]interface{}{
			"task_id":  t.ID,
			"client":   t.ClientKey,
			"interval": t.Interval.Seconds(),
			"format":   string(t.Format),
			"age_s":    int64(time.Since(t.StartedAt).Seconds()),
		}
	}
	return Ok(map[string]interface{}{
		"count": len(rows),
		"tasks": rows,
	}, "count", "tasks")
}

// ---- gpio commands ----

func (c *Coordinator) gpioCmd(cmd Command) Result {
	switch cmd.Name {
	case "gpio_high", "gpio_low":
		high := cmd.Name == "gpio_high"
		if pin, ok := cmd.IntArg("bcm", -1); ok {
			if err := c.pins.SetOutputByPin(int(pin), high); err != nil {
				return FromErr(err)
			}
			return Ok(map[string]interface{}{"bcm": pin, "high": high}, "bcm", "high")
		}
		idx, ok := cmd.IntArg("pin", 0)
		if !ok {
			return Failf("pin index required")
		}
		if err := c.pins.SetOutput(int(idx), high); err != nil {
			return FromErr(err)
		}
		return Ok(map[string]interface{}{"pin": idx, "high": high}, "pin", "high")

	case "gpio_toggle":
		idx, ok := cmd.IntArg("pin", 0)
		if !ok {
			return Failf("pin index required")
		}
		high, err := c.pins.Toggle(int(idx))
		if err != nil {
			return FromErr(err)
		}
		return Ok(map[string]interface{}{"pin": idx, "high": high}, "pin", "high")

	case "gpio_pulse":
		idx, ok := cmd.IntArg("pin", 0)
		if !ok {
			return Failf("pin index required")
		}
		seconds, ok := cmd.FloatArg("duration", 1)
		if !ok {
			seconds = 0.1
		}
		if err := c.pins.Pulse(int(idx), time.Duration(seconds*float64(time.Second))); err != nil {
			return FromErr(err)
		}
		return Ok(map[string]interface{}{"pin": idx, "duration": seconds}, "pin", "duration")

	case "read_input":
		v, err := c.pins.ReadInput()
		if err != nil {
			return FromErr(err)
		}
		return Ok(map[string]interface{}{"input": v}, "input")

	case "gpio_states":
		snap := c.pins.States()
		return Ok(map[string]interface{}{
			"outputs":   snap.Outputs,
			"input_pin": snap.InputPin,
			"input":     snap.Input,
			"simulated": snap.Simulated,
		}, "simulated", "input_pin", "input", "outputs")
	}
	return Failf("unknown gpio command %q", cmd.Name)
}

// ---- event bridging ----

// onSample fans one poll sample out to the active monitor tasks,
// applying per-task de-duplication and format.
func (c *Coordinator) onSample(evt events.Event) {
	sample, ok := evt.Data["sample"].(encoder.Sample)
	if !ok {
		return
	}

	fields := SampleFields(sample)
	now := time.Now()
	for _, task := range c.tasks.Tasks() {
		client, ok := c.server.Registry().Get(task.ClientKey)
		if !ok {
			// Session expired; the task goes with it.
			c.tasks.Drop(task.ID)
			continue
		}
		if !task.ShouldSend(sample.Angle, sample.RPM, sample.Laps, now) {
			continue
		}
		client.Format = task.Format
		if err := c.server.SendTo(client, "/data/update", fields, MonitorFieldOrder); err != nil {
			log.Printf("control: sample to %s: %v", client.Key, err)
		}
	}
}

func (c *Coordinator) onLapChange(evt events.Event) {
	fields := map[string]interface{}{"timestamp": evt.At.UnixMilli()}
	for k, v := range evt.Data {
		fields[k] = v
	}
	c.server.Broadcast("/data/laps", fields, []string{"timestamp", "laps", "direction", "position"}, "laps")
}

func (c *Coordinator) onGPIOInput(evt events.Event) {
	fields := map[string]interface{}{"timestamp": evt.At.UnixMilli()}
	for k, v := range evt.Data {
		fields[k] = v
	}
	c.server.Broadcast("/gpio/input", fields, []string{"timestamp", "pin", "value", "edge"}, "gpio")
}

// onSystemEvent relays lifecycle events; monitor errors go out on their
// own topic so error consumers need not follow connection chatter.
func (c *Coordinator) onSystemEvent(evt events.Event) {
	fields := map[string]interface{}{
		"timestamp": evt.At.UnixMilli(),
		"event":     string(evt.Kind),
	}
	order := []string{"timestamp", "event"}
	for _, k := range sortedKeys(evt.Data) {
		fields[k] = evt.Data[k]
		order = append(order, k)
	}

	topic := "system"
	if evt.Kind == events.MonitorError {
		topic = "errors"
	}
	c.server.Broadcast("/system/event", fields, order, topic)
}

// SampleFields flattens one poll sample into broadcast fields.
func SampleFields(s encoder.Sample) map[string]interface{} {
	return map[string]interface{}{
		"address":   int(s.Address),
		"timestamp": s.At.UnixMilli(),
		"direction": s.Direction.String(),
		"angle":     s.Angle,
		"rpm":       s.RPM,
		"laps":      s.Laps,
		"rawAngle":  int(s.Position),
		"rawRpm":    s.RawSpeed,
	}
}

func topicList(client gateway.ClientSession) []string {
	out := make([]string, 0, len(client.Subscriptions))
	for t := range client.Subscriptions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func knownTopics() string {
	out := make([]string, 0, len(validTopics))
	for t := range validTopics {
		out = append(out, t)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
