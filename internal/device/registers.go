// internal/device/registers.go
package device

import "errors"

// Register map of the JHS series encoder.
// Addresses and ranges come from the device manual and MUST NOT be changed.

// ---- FUNCTION CODES ----

// FuncReadHolding is the only read function the device supports.
const FuncReadHolding uint8 = 0x03

// FuncWriteSingle is the only write function the device supports.
const FuncWriteSingle uint8 = 0x06

// ---- REGISTER ADDRESSES ----

const (
	// RegSingleTurn is the single-turn position. Reading two registers
	// starting here yields the multi-turn value (hi<<16 | lo).
	RegSingleTurn uint16 = 0x0000

	// RegVirtualTurn is the virtual turns value.
	RegVirtualTurn uint16 = 0x0002

	// RegSpeed is the angular speed, two's-complement signed.
	RegSpeed uint16 = 0x0003

	// RegSlaveAddress is the device bus address (1-255).
	RegSlaveAddress uint16 = 0x0004

	// RegBaudRate is the baud rate code (0-4, see BaudFromCode).
	RegBaudRate uint16 = 0x0005

	// RegMode is the operating mode (see ValidMode).
	RegMode uint16 = 0x0006

	// RegAutoRespTime is the auto-response period in ms, minimum 20.
	RegAutoRespTime uint16 = 0x0007

	// RegZeroFlag zeroes the position when written with 1.
	RegZeroFlag uint16 = 0x0008

	// RegDirection selects the increase direction: 0 clockwise, 1 counter-clockwise.
	RegDirection uint16 = 0x0009

	// RegSamplingTime is the speed sampling period in ms, minimum 20.
	RegSamplingTime uint16 = 0x000A

	// RegSetValue presets the current position.
	RegSetValue uint16 = 0x000B

	// RegSetMidpoint presets the position to the midpoint when written with 1.
	RegSetMidpoint uint16 = 0x000E

	// RegSpeed2 is the wide-mode angular speed.
	RegSpeed2 uint16 = 0x0020

	// RegMultiTurn2 is the wide-mode multi-turn value (17 bit and above).
	RegMultiTurn2 uint16 = 0x0025
)

// ---- OPERATING MODES ----

const (
	ModeQuery      uint16 = 0 // reply only when asked
	ModeAutoSingle uint16 = 1 // push single-turn value
	ModeAutoMulti  uint16 = 4 // push multi-turn value
	ModeAutoSpeed  uint16 = 5 // push angular speed
)

// ---- DESCRIPTORS ----

// Access is the function code a register accepts.
type Access uint8

const (
	AccessRead  Access = Access(FuncReadHolding)
	AccessWrite Access = Access(FuncWriteSingle)
)

// Descriptor describes one addressable register.
type Descriptor struct {
	Address   uint16
	Name      string
	Access    Access
	Min       uint16 // write range, valid only when Ranged
	Max       uint16
	Ranged    bool
	Signed    bool // reads decode as two's-complement
	Persisted bool // survives power cycle
	Unit      string
}

// ErrUnknownRegister marks an access to an address outside the register map.
// This is a programmer error, not a device failure.
var ErrUnknownRegister = errors.New("device: unknown register address")

var registers = map[uint16]Descriptor{
	RegSingleTurn:   {Address: RegSingleTurn, Name: "encoder_single_value", Access: AccessRead, Persisted: true},
	RegVirtualTurn:  {Address: RegVirtualTurn, Name: "encoder_virtual_value", Access: AccessRead},
	RegSpeed:        {Address: RegSpeed, Name: "encoder_angular_speed", Access: AccessRead, Signed: true},
	RegSlaveAddress: {Address: RegSlaveAddress, Name: "encoder_address", Access: AccessWrite, Min: 1, Max: 255, Ranged: true, Persisted: true},
	RegBaudRate:     {Address: RegBaudRate, Name: "baud_rate", Access: AccessWrite, Min: 0, Max: 4, Ranged: true, Persisted: true},
	RegMode:         {Address: RegMode, Name: "encoder_mode", Access: AccessWrite, Min: 0, Max: 5, Ranged: true, Persisted: true},
	RegAutoRespTime: {Address: RegAutoRespTime, Name: "auto_response_time", Access: AccessWrite, Min: 20, Max: 65535, Ranged: true, Persisted: true, Unit: "ms"},
	RegZeroFlag:     {Address: RegZeroFlag, Name: "reset_zero_flag", Access: AccessWrite, Min: 0, Max: 1, Ranged: true},
	RegDirection:    {Address: RegDirection, Name: "value_increase_direction", Access: AccessWrite, Min: 0, Max: 1, Ranged: true, Persisted: true},
	RegSamplingTime: {Address: RegSamplingTime, Name: "sampling_time", Access: AccessWrite, Min: 20, Max: 65535, Ranged: true, Persisted: true, Unit: "ms"},
	RegSetValue:     {Address: RegSetValue, Name: "set_current_position", Access: AccessWrite, Persisted: true},
	RegSetMidpoint:  {Address: RegSetMidpoint, Name: "set_midpoint", Access: AccessWrite, Min: 0, Max: 1, Ranged: true, Persisted: true},
	RegSpeed2:       {Address: RegSpeed2, Name: "angular_speed_value_2", Access: AccessRead, Signed: true, Persisted: true},
	RegMultiTurn2:   {Address: RegMultiTurn2, Name: "encoder_multi_value_2", Access: AccessRead, Persisted: true},
}

// Lookup returns the descriptor for addr.
func Lookup(addr uint16) (Descriptor, bool) {
	d, ok := registers[addr]
	return d, ok
}

// ---- HELPERS ----

var baudCodes = [5]int{9600, 19200, 38400, 57600, 115200}

// BaudFromCode maps a baud-rate register value to the wire speed.
func BaudFromCode(code uint16) (int, bool) {
	if int(code) >= len(baudCodes) {
		return 0, false
	}
	return baudCodes[code], true
}

// CodeFromBaud maps a wire speed to the baud-rate register value.
func CodeFromBaud(baud int) (uint16, bool) {
	for code, b := range baudCodes {
		if b == baud {
			return uint16(code), true
		}
	}
	return 0, false
}

// ValidMode reports whether m is a mode the device accepts. The register
// range is 0-5 but codes 2 and 3 are reserved.
func ValidMode(m uint16) bool {
	switch m {
	case ModeQuery, ModeAutoSingle, ModeAutoMulti, ModeAutoSpeed:
		return true
	}
	return false
}

// SignedValue decodes a register as a 16-bit two's-complement value.
func SignedValue(raw uint16) int {
	v := int(raw)
	if v > 32767 {
		v -= 65536
	}
	return v
}
