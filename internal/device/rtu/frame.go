// internal/device/rtu/frame.go
package rtu

import (
	"errors"
	"fmt"

	"github.com/loveourearth/JHS-EncoderReader/internal/crc"
)

// Request and response layout (device manual):
//
//	read request:   [slave][0x03][addrHi][addrLo][qtyHi][qtyLo][crcLo][crcHi]
//	read response:  [slave][0x03][byteCount][data...][crcLo][crcHi]
//	write request:  [slave][0x06][addrHi][addrLo][valHi][valLo][crcLo][crcHi]
//	write response: echo of the request
//	exception:      [slave][fc|0x80][exceptionCode][crcLo][crcHi]

// ErrCRC marks a response whose checksum did not verify.
var ErrCRC = errors.New("rtu: crc mismatch")

// ExceptionError is a Modbus exception response from the device.
type ExceptionError struct {
	Function  uint8
	Exception uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("rtu: device exception fc=0x%02X code=%d", e.Function, e.Exception)
}

// BuildRead frames an FC 0x03 request with checksum.
func BuildRead(slave uint8, addr, qty uint16) []byte {
	return crc.Append([]byte{
		slave, 0x03,
		byte(addr >> 8), byte(addr),
		byte(qty >> 8), byte(qty),
	})
}

// BuildWrite frames an FC 0x06 request with checksum.
func BuildWrite(slave uint8, addr, value uint16) []byte {
	return crc.Append([]byte{
		slave, 0x06,
		byte(addr >> 8), byte(addr),
		byte(value >> 8), byte(value),
	})
}

// parseReadPayload validates a complete FC 0x03 response and unpacks the
// registers. The frame must already be the full expected length.
func parseReadPayload(frame []byte, slave uint8, qty uint16) ([]uint16, error) {
	if !crc.Verify(frame) {
		return nil, ErrCRC
	}
	if frame[0] != slave {
		return nil, fmt.Errorf("rtu: slave mismatch: got=%d want=%d", frame[0], slave)
	}
	if frame[1] != 0x03 {
		return nil, fmt.Errorf("rtu: function mismatch: got=0x%02X want=0x03", frame[1])
	}
	if int(frame[2]) != int(qty)*2 {
		return nil, fmt.Errorf("rtu: byte count mismatch: got=%d want=%d", frame[2], qty*2)
	}

	regs := make([]uint16, qty)
	for i := range regs {
		regs[i] = uint16(frame[3+2*i])<<8 | uint16(frame[4+2*i])
	}
	return regs, nil
}

// parseWriteEcho validates the FC 0x06 echo response.
func parseWriteEcho(frame []byte, slave uint8, addr, value uint16) error {
	if !crc.Verify(frame) {
		return ErrCRC
	}
	if frame[0] != slave {
		return fmt.Errorf("rtu: slave mismatch: got=%d want=%d", frame[0], slave)
	}
	if frame[1] != 0x06 {
		return fmt.Errorf("rtu: function mismatch: got=0x%02X want=0x06", frame[1])
	}
	if got := uint16(frame[2])<<8 | uint16(frame[3]); got != addr {
		return fmt.Errorf("rtu: address echo mismatch: got=0x%04X want=0x%04X", got, addr)
	}
	if got := uint16(frame[4])<<8 | uint16(frame[5]); got != value {
		return fmt.Errorf("rtu: value echo mismatch: got=%d want=%d", got, value)
	}
	return nil
}

// parseException validates a 5-byte exception frame.
func parseException(frame []byte, slave uint8) error {
	if !crc.Verify(frame) {
		return ErrCRC
	}
	if frame[0] != slave {
		return fmt.Errorf("rtu: slave mismatch: got=%d want=%d", frame[0], slave)
	}
	return &ExceptionError{Function: frame[1] &^ 0x80, Exception: frame[2]}
}
