// internal/crc/crc.go
package crc

// CRC-16/MODBUS: polynomial 0xA001 (reflected 0x8005), initial value 0xFFFF.
// The wire carries the checksum low byte first.

// Compute returns the CRC-16/MODBUS checksum of data.
func Compute(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, d := range data {
		crc ^= uint16(d)
		for b := 0; b < 8; b++ {
			if crc&0x0001 != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Append returns data with its checksum appended low byte first.
// The input slice is not modified.
func Append(data []byte) []byte {
	sum := Compute(data)
	out := make([]byte, len(data), len(data)+2)
	copy(out, data)
	return append(out, byte(sum&0xFF), byte(sum>>8))
}

// Verify reports whether the trailing two bytes of frame hold the correct
// checksum of everything before them. Frames shorter than 3 bytes fail.
func Verify(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	want := uint16(frame[len(frame)-1])<<8 | uint16(frame[len(frame)-2])
	return Compute(frame[:len(frame)-2]) == want
}
