// internal/device/client_test.go
package device

import (
	"errors"
	"math"
	"testing"
	"time"
)

type write struct {
	slave uint8
	addr  uint16
	value uint16
}

// fakeTransport scripts failures: the first failReads read calls and the
// first failWrites write calls return an error, later calls succeed.
type fakeTransport struct {
	regs       []uint16
	failReads  int
	failWrites int
	openErr    error

	reads        int
	writes       []write
	lastSlave    uint8
	opens        int
	closes       int
	reconfigured []int
}

func (f *fakeTransport) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opens++
	return nil
}

func (f *fakeTransport) Close() error {
	f.closes++
	return nil
}

func (f *fakeTransport) ReadHolding(slave uint8, addr, qty uint16) ([]uint16, error) {
	f.reads++
	f.lastSlave = slave
	if f.failReads > 0 {
		f.failReads--
		return nil, errors.New("fake read failure")
	}
	if len(f.regs) >= int(qty) {
		return f.regs[:qty], nil
	}
	return make([]uint16, qty), nil
}

func (f *fakeTransport) WriteSingle(slave uint8, addr, value uint16) error {
	f.lastSlave = slave
	if f.failWrites > 0 {
		f.failWrites--
		return errors.New("fake write failure")
	}
	f.writes = append(f.writes, write{slave, addr, value})
	return nil
}

func (f *fakeTransport) Reconfigure(baud int) error {
	f.reconfigured = append(f.reconfigured, baud)
	return nil
}

func (f *fakeTransport) Endpoint() string { return "/dev/ttyFAKE" }

func newTestClient(t *testing.T, tr Transport) *Client {
	t.Helper()
	c, err := New(tr, 9600, Config{
		SlaveAddress: 1,
		Resolution:   4096,
		SamplingMs:   100,
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name string
		tr   Transport
		cfg  Config
	}{
		{"nil transport", nil, Config{SlaveAddress: 1, Resolution: 4096, SamplingMs: 100}},
		{"zero slave", &fakeTransport{}, Config{SlaveAddress: 0, Resolution: 4096, SamplingMs: 100}},
		{"zero resolution", &fakeTransport{}, Config{SlaveAddress: 1, Resolution: 0, SamplingMs: 100}},
		{"zero sampling", &fakeTransport{}, Config{SlaveAddress: 1, Resolution: 4096, SamplingMs: 0}},
	}

	for _, c := range cases {
		if _, err := New(c.tr, 9600, c.cfg); err == nil {
			t.Fatalf("%s: expected error, got nil", c.name)
		}
	}
}

func TestConnect_OpenFailure(t *testing.T) {
	tr := &fakeTransport{openErr: errors.New("no such device")}
	c := newTestClient(t, tr)

	if err := c.Connect(); err == nil {
		t.Fatalf("expected connect error, got nil")
	}
	if c.Connected() {
		t.Fatalf("Connected()=true after failed open")
	}
}

func TestReadRegister_UnknownAddress(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})

	_, err := c.ReadRegister(0x1234, 1)
	if !errors.Is(err, ErrUnknownRegister) {
		t.Fatalf("err=%v, want ErrUnknownRegister", err)
	}
}

func TestReadRegister_WriteOnlyRegister(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})

	if _, err := c.ReadRegister(RegZeroFlag, 1); err == nil {
		t.Fatalf("expected access error reading write-only register")
	}
}

func TestReadRegister_RetriesThenSucceeds(t *testing.T) {
	tr := &fakeTransport{regs: []uint16{1234}, failReads: 2}
	c := newTestClient(t, tr)

	regs, err := c.ReadRegister(RegSingleTurn, 1)
	if err != nil {
		t.Fatalf("ReadRegister err=%v", err)
	}
	if regs[0] != 1234 {
		t.Fatalf("regs[0]=%d want 1234", regs[0])
	}
	if tr.reads != 3 {
		t.Fatalf("wire attempts=%d want 3", tr.reads)
	}

	counters := c.Status().Counters
	if counters.Errors != 0 {
		t.Fatalf("errors=%d want 0 after eventual success", counters.Errors)
	}
	if counters.Tx != 3 || counters.Rx != 1 {
		t.Fatalf("tx=%d rx=%d want 3/1", counters.Tx, counters.Rx)
	}
}

func TestReadRegister_ExhaustsRetries(t *testing.T) {
	tr := &fakeTransport{failReads: 10}
	c := newTestClient(t, tr)

	if _, err := c.ReadRegister(RegSingleTurn, 1); err == nil {
		t.Fatalf("expected failure after retries, got nil")
	}
	if tr.reads != 3 {
		t.Fatalf("wire attempts=%d want 3", tr.reads)
	}
	if c.Status().Counters.Errors != 1 {
		t.Fatalf("errors=%d want 1", c.Status().Counters.Errors)
	}
}

func TestWriteRegister_RangeValidation(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t, tr)

	if err := c.WriteRegister(RegBaudRate, 9); err == nil {
		t.Fatalf("expected range error, got nil")
	}
	if len(tr.writes) != 0 {
		t.Fatalf("out-of-range value reached the wire")
	}
}

func TestWriteRegister_ReadOnlyRegister(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})

	if err := c.WriteRegister(RegSingleTurn, 1); err == nil {
		t.Fatalf("expected access error writing read-only register")
	}
}

func TestWriteRegister_SlaveAddressRetargets(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t, tr)

	if err := c.SetAddress(9); err != nil {
		t.Fatalf("SetAddress err=%v", err)
	}
	if _, err := c.ReadRegister(RegSingleTurn, 1); err != nil {
		t.Fatalf("ReadRegister err=%v", err)
	}
	if tr.lastSlave != 9 {
		t.Fatalf("read framed with slave %d, want 9", tr.lastSlave)
	}
	if c.Status().SlaveAddress != 9 {
		t.Fatalf("cached slave=%d want 9", c.Status().SlaveAddress)
	}
}

func TestWriteRegister_BaudReconfigures(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t, tr)

	if err := c.SetBaudRate(38400); err != nil {
		t.Fatalf("SetBaudRate err=%v", err)
	}
	if len(tr.reconfigured) != 1 || tr.reconfigured[0] != 38400 {
		t.Fatalf("reconfigured=%v want [38400]", tr.reconfigured)
	}
	if c.Status().Baud != 38400 {
		t.Fatalf("cached baud=%d want 38400", c.Status().Baud)
	}
	if len(tr.writes) != 1 || tr.writes[0].addr != RegBaudRate || tr.writes[0].value != 2 {
		t.Fatalf("writes=%v want baud register code 2", tr.writes)
	}
}

func TestSetBaudRate_Unsupported(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})

	if err := c.SetBaudRate(12345); err == nil {
		t.Fatalf("expected unsupported baud error")
	}
}

func TestSetSamplingTime_UpdatesCache(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})

	if err := c.SetSamplingTime(200); err != nil {
		t.Fatalf("SetSamplingTime err=%v", err)
	}
	if c.SamplingMs() != 200 {
		t.Fatalf("SamplingMs=%d want 200", c.SamplingMs())
	}
}

func TestSetMode(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t, tr)

	for _, mode := range []uint16{2, 3, 6} {
		if err := c.SetMode(mode); err == nil {
			t.Fatalf("SetMode(%d): expected error for reserved mode", mode)
		}
	}
	if err := c.SetMode(ModeAutoSpeed); err != nil {
		t.Fatalf("SetMode err=%v", err)
	}
	if len(tr.writes) != 1 || tr.writes[0].value != 5 {
		t.Fatalf("writes=%v want mode 5", tr.writes)
	}
}

func TestReadSpeed_SignedConversion(t *testing.T) {
	// Raw 0xF060 is -4000 ticks per 100ms window at 4096 counts/turn:
	// -4000/4096 turns per window, 600 windows per minute.
	tr := &fakeTransport{regs: []uint16{0xF060}}
	c := newTestClient(t, tr)

	raw, rpm, err := c.ReadSpeed()
	if err != nil {
		t.Fatalf("ReadSpeed err=%v", err)
	}
	if raw != -4000 {
		t.Fatalf("raw=%d want -4000", raw)
	}
	if math.Abs(rpm-(-585.9375)) > 1e-9 {
		t.Fatalf("rpm=%v want -585.9375", rpm)
	}
}

func TestReadMultiPosition(t *testing.T) {
	tr := &fakeTransport{regs: []uint16{0x0001, 0x0002}}
	c := newTestClient(t, tr)

	v, err := c.ReadMultiPosition()
	if err != nil {
		t.Fatalf("ReadMultiPosition err=%v", err)
	}
	if v != 0x10002 {
		t.Fatalf("multi=%#x want 0x10002", v)
	}
}

func TestSetZero_WritesFlag(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t, tr)

	if err := c.SetZero(); err != nil {
		t.Fatalf("SetZero err=%v", err)
	}
	if len(tr.writes) != 1 || tr.writes[0].addr != RegZeroFlag || tr.writes[0].value != 1 {
		t.Fatalf("writes=%v want zero flag 1", tr.writes)
	}
}

func TestPing_RequiresConnection(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})

	if err := c.Ping(); err == nil {
		t.Fatalf("expected not-connected error")
	}

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect err=%v", err)
	}
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping err=%v", err)
	}
}

