// internal/device/rtu/frame_test.go
package rtu

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/loveourearth/JHS-EncoderReader/internal/crc"
)

// scriptPort plays back a canned response and records writes.
type scriptPort struct {
	wrote  [][]byte
	resp   []byte
	pos    int
	closed bool
}

func (p *scriptPort) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	p.wrote = append(p.wrote, cp)
	return len(b), nil
}

func (p *scriptPort) Read(b []byte) (int, error) {
	if p.pos >= len(p.resp) {
		return 0, io.EOF
	}
	n := copy(b, p.resp[p.pos:])
	p.pos += n
	return n, nil
}

func (p *scriptPort) Close() error {
	p.closed = true
	return nil
}

func transportWith(resp []byte) (*Transport, *scriptPort) {
	port := &scriptPort{resp: resp}
	tr := New(Config{Port: "/dev/ttyUSB0", Baud: 9600})
	tr.port = port
	return tr, port
}

func TestBuildRead_KnownBytes(t *testing.T) {
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if got := BuildRead(1, 0x0000, 1); !bytes.Equal(got, want) {
		t.Fatalf("BuildRead=% X want % X", got, want)
	}
}

func TestBuildWrite_KnownBytes(t *testing.T) {
	want := []byte{0x01, 0x06, 0x00, 0x08, 0x00, 0x01, 0xC9, 0xC8}
	if got := BuildWrite(1, 0x0008, 1); !bytes.Equal(got, want) {
		t.Fatalf("BuildWrite=% X want % X", got, want)
	}
}

func TestReadHolding_ParsesRegisters(t *testing.T) {
	resp := crc.Append([]byte{0x01, 0x03, 0x04, 0x0F, 0xA0, 0x00, 0x2A})
	tr, port := transportWith(resp)

	regs, err := tr.ReadHolding(1, 0x0000, 2)
	if err != nil {
		t.Fatalf("ReadHolding err=%v", err)
	}
	if len(regs) != 2 || regs[0] != 0x0FA0 || regs[1] != 0x002A {
		t.Fatalf("regs=%v want [4000 42]", regs)
	}

	if len(port.wrote) != 1 {
		t.Fatalf("wrote %d frames, want 1", len(port.wrote))
	}
	if want := BuildRead(1, 0x0000, 2); !bytes.Equal(port.wrote[0], want) {
		t.Fatalf("request=% X want % X", port.wrote[0], want)
	}
}

func TestReadHolding_Exception(t *testing.T) {
	resp := crc.Append([]byte{0x01, 0x83, 0x02})
	tr, _ := transportWith(resp)

	_, err := tr.ReadHolding(1, 0x0000, 1)

	var exc *ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("err=%v, want ExceptionError", err)
	}
	if exc.Function != 0x03 || exc.Exception != 2 {
		t.Fatalf("exception fc=0x%02X code=%d, want fc=0x03 code=2", exc.Function, exc.Exception)
	}
}

func TestReadHolding_CRCMismatch(t *testing.T) {
	resp := crc.Append([]byte{0x01, 0x03, 0x02, 0x01, 0x00})
	resp[3] ^= 0xFF
	tr, _ := transportWith(resp)

	_, err := tr.ReadHolding(1, 0x0000, 1)
	if !errors.Is(err, ErrCRC) {
		t.Fatalf("err=%v, want ErrCRC", err)
	}
}

func TestReadHolding_SlaveMismatch(t *testing.T) {
	resp := crc.Append([]byte{0x02, 0x03, 0x02, 0x01, 0x00})
	tr, _ := transportWith(resp)

	if _, err := tr.ReadHolding(1, 0x0000, 1); err == nil {
		t.Fatalf("expected slave mismatch error, got nil")
	}
}

func TestReadHolding_ByteCountMismatch(t *testing.T) {
	resp := crc.Append([]byte{0x01, 0x03, 0x02, 0x01, 0x00})
	tr, _ := transportWith(resp)

	if _, err := tr.ReadHolding(1, 0x0000, 2); err == nil {
		t.Fatalf("expected byte count mismatch, got nil")
	}
}

func TestReadHolding_ShortResponse(t *testing.T) {
	tr, _ := transportWith([]byte{0x01, 0x03})

	if _, err := tr.ReadHolding(1, 0x0000, 1); err == nil {
		t.Fatalf("expected read error on truncated frame, got nil")
	}
}

func TestWriteSingle_OK(t *testing.T) {
	resp := BuildWrite(1, 0x0008, 1) // echo
	tr, port := transportWith(resp)

	if err := tr.WriteSingle(1, 0x0008, 1); err != nil {
		t.Fatalf("WriteSingle err=%v", err)
	}
	if want := BuildWrite(1, 0x0008, 1); !bytes.Equal(port.wrote[0], want) {
		t.Fatalf("request=% X want % X", port.wrote[0], want)
	}
}

func TestWriteSingle_ValueEchoMismatch(t *testing.T) {
	resp := BuildWrite(1, 0x0008, 2) // device echoed a different value
	tr, _ := transportWith(resp)

	if err := tr.WriteSingle(1, 0x0008, 1); err == nil {
		t.Fatalf("expected echo mismatch, got nil")
	}
}

func TestWriteSingle_Exception(t *testing.T) {
	resp := crc.Append([]byte{0x01, 0x86, 0x03})
	tr, _ := transportWith(resp)

	err := tr.WriteSingle(1, 0x0008, 1)

	var exc *ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("err=%v, want ExceptionError", err)
	}
	if exc.Function != 0x06 || exc.Exception != 3 {
		t.Fatalf("exception fc=0x%02X code=%d, want fc=0x06 code=3", exc.Function, exc.Exception)
	}
}

func TestRoundTrip_PortNotOpen(t *testing.T) {
	tr := New(Config{Port: "/dev/ttyUSB0", Baud: 9600})

	if _, err := tr.ReadHolding(1, 0x0000, 1); err == nil {
		t.Fatalf("expected not-open error, got nil")
	}
}
