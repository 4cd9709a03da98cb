// internal/device/registers_test.go
package device

import "testing"

func TestLookup(t *testing.T) {
	desc, ok := Lookup(RegSpeed)
	if !ok {
		t.Fatalf("Lookup(RegSpeed) not found")
	}
	if desc.Access != AccessRead || !desc.Signed {
		t.Fatalf("speed descriptor=%+v, want readable signed", desc)
	}

	desc, ok = Lookup(RegBaudRate)
	if !ok {
		t.Fatalf("Lookup(RegBaudRate) not found")
	}
	if desc.Access != AccessWrite || !desc.Ranged || desc.Max != 4 {
		t.Fatalf("baud descriptor=%+v, want writable ranged 0-4", desc)
	}

	if _, ok := Lookup(0x7777); ok {
		t.Fatalf("Lookup(0x7777) found a register")
	}
}

func TestDescriptorRanges(t *testing.T) {
	cases := []struct {
		addr     uint16
		min, max uint16
	}{
		{RegSlaveAddress, 1, 255},
		{RegBaudRate, 0, 4},
		{RegMode, 0, 5},
		{RegAutoRespTime, 20, 65535},
		{RegZeroFlag, 0, 1},
		{RegDirection, 0, 1},
		{RegSamplingTime, 20, 65535},
		{RegSetMidpoint, 0, 1},
	}

	for _, c := range cases {
		desc, ok := Lookup(c.addr)
		if !ok {
			t.Fatalf("Lookup(%#04x) not found", c.addr)
		}
		if !desc.Ranged || desc.Min != c.min || desc.Max != c.max {
			t.Fatalf("%s: range %d-%d ranged=%v, want %d-%d",
				desc.Name, desc.Min, desc.Max, desc.Ranged, c.min, c.max)
		}
	}
}

func TestValidMode(t *testing.T) {
	for _, m := range []uint16{ModeQuery, ModeAutoSingle, ModeAutoMulti, ModeAutoSpeed} {
		if !ValidMode(m) {
			t.Fatalf("ValidMode(%d)=false", m)
		}
	}
	for _, m := range []uint16{2, 3, 6, 100} {
		if ValidMode(m) {
			t.Fatalf("ValidMode(%d)=true for reserved mode", m)
		}
	}
}

func TestSignedValue(t *testing.T) {
	cases := []struct {
		raw  uint16
		want int
	}{
		{0, 0},
		{1, 1},
		{32767, 32767},
		{32768, -32768},
		{65535, -1},
		{0xF060, -4000},
	}

	for _, c := range cases {
		if got := SignedValue(c.raw); got != c.want {
			t.Fatalf("SignedValue(%#x)=%d want %d", c.raw, got, c.want)
		}
	}
}

func TestBaudCodes(t *testing.T) {
	for code, want := range map[uint16]int{0: 9600, 1: 19200, 2: 38400, 3: 57600, 4: 115200} {
		got, ok := BaudFromCode(code)
		if !ok || got != want {
			t.Fatalf("BaudFromCode(%d)=%d,%v want %d", code, got, ok, want)
		}
		back, ok := CodeFromBaud(want)
		if !ok || back != code {
			t.Fatalf("CodeFromBaud(%d)=%d,%v want %d", want, back, ok, code)
		}
	}

	if _, ok := BaudFromCode(5); ok {
		t.Fatalf("BaudFromCode(5) accepted")
	}
	if _, ok := CodeFromBaud(4800); ok {
		t.Fatalf("CodeFromBaud(4800) accepted")
	}
}
