// internal/crc/crc_test.go
package crc

import (
	"testing"

	"github.com/sigurn/crc16"
)

// Known frames: read one holding register at 0x0000 from slave 1
// (wire 01 03 00 00 00 01 84 0A) and the classic FC03 example
// (wire 11 03 00 6B 00 03 76 87).
func TestCompute_KnownFrames(t *testing.T) {
	cases := []struct {
		data []byte
		want uint16
	}{
		{[]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 0x0A84},
		{[]byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03}, 0x8776},
		{[]byte{0x01, 0x06, 0x00, 0x08, 0x00, 0x01}, 0xC8C9},
	}

	for _, c := range cases {
		if got := Compute(c.data); got != c.want {
			t.Fatalf("Compute(% X)=%#04x want %#04x", c.data, got, c.want)
		}
	}
}

func TestCompute_MatchesReferenceTable(t *testing.T) {
	table := crc16.MakeTable(crc16.CRC16_MODBUS)

	cases := [][]byte{
		{},
		{0x00},
		{0xFF},
		{0x01, 0x03, 0x00, 0x00, 0x00, 0x01},
		{0x01, 0x06, 0x00, 0x08, 0x00, 0x01},
		{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03},
		{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x55, 0xAA},
	}

	for _, data := range cases {
		want := crc16.Checksum(data, table)
		if got := Compute(data); got != want {
			t.Fatalf("Compute(% X)=%#04x, reference table says %#04x", data, got, want)
		}
	}
}

func TestAppendVerify_RoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x01},
		{0x01, 0x03, 0x00, 0x00, 0x00, 0x01},
		{0x02, 0x06, 0x00, 0x05, 0x00, 0x03},
		{0xFF, 0x00, 0xFF, 0x00},
	}

	for _, data := range cases {
		framed := Append(data)
		if len(framed) != len(data)+2 {
			t.Fatalf("Append(% X): len=%d want %d", data, len(framed), len(data)+2)
		}
		if !Verify(framed) {
			t.Fatalf("Verify(Append(% X)) = false", data)
		}
	}
}

func TestVerify_SingleBitFlip(t *testing.T) {
	framed := Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})

	for i := range framed {
		for bit := 0; bit < 8; bit++ {
			corrupt := make([]byte, len(framed))
			copy(corrupt, framed)
			corrupt[i] ^= 1 << bit
			if Verify(corrupt) {
				t.Fatalf("Verify accepted frame with byte %d bit %d flipped", i, bit)
			}
		}
	}
}

func TestVerify_ShortFrame(t *testing.T) {
	for _, frame := range [][]byte{nil, {0x01}, {0x01, 0x02}} {
		if Verify(frame) {
			t.Fatalf("Verify(% X) = true for short frame", frame)
		}
	}
}

func TestAppend_DoesNotMutateInput(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	orig := make([]byte, len(data))
	copy(orig, data)

	_ = Append(data)

	for i := range data {
		if data[i] != orig[i] {
			t.Fatalf("Append mutated input at byte %d", i)
		}
	}
}
