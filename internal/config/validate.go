// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/loveourearth/JHS-EncoderReader/internal/device"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
//
// Enumerated fields are checked case-insensitively and ignoring padding;
// Normalize folds them afterwards.
func Validate(cfg *Config) error {
	fold := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	// ------------------------------------------------------------
	// SERIAL
	// ------------------------------------------------------------

	if cfg.Serial.Port == "" {
		return fmt.Errorf("serial: port is required")
	}
	if _, ok := device.CodeFromBaud(cfg.Serial.Baud); !ok {
		return fmt.Errorf("serial: unsupported baud rate %d", cfg.Serial.Baud)
	}
	if cfg.Serial.DataBits != 7 && cfg.Serial.DataBits != 8 {
		return fmt.Errorf("serial: data_bits must be 7 or 8, got %d", cfg.Serial.DataBits)
	}
	switch fold(cfg.Serial.Parity) {
	case "n", "e", "o":
	default:
		return fmt.Errorf("serial: parity must be N, E or O, got %q", cfg.Serial.Parity)
	}
	if cfg.Serial.StopBits != 1 && cfg.Serial.StopBits != 2 {
		return fmt.Errorf("serial: stop_bits must be 1 or 2, got %d", cfg.Serial.StopBits)
	}
	if cfg.Serial.TimeoutMs <= 0 {
		return fmt.Errorf("serial: timeout_ms must be > 0, got %d", cfg.Serial.TimeoutMs)
	}

	// ------------------------------------------------------------
	// MODBUS
	// ------------------------------------------------------------

	if cfg.Modbus.SlaveAddress < 1 {
		return fmt.Errorf("modbus: slave_address must be 1-255, got %d", cfg.Modbus.SlaveAddress)
	}
	switch fold(cfg.Modbus.Transport) {
	case "rtu":
	case "tcp":
		if cfg.Modbus.TCPEndpoint == "" {
			return fmt.Errorf("modbus: tcp_endpoint is required when transport is tcp")
		}
	default:
		return fmt.Errorf("modbus: transport must be rtu or tcp, got %q", cfg.Modbus.Transport)
	}

	// ------------------------------------------------------------
	// ENCODER
	// ------------------------------------------------------------

	if cfg.Encoder.Resolution <= 0 {
		return fmt.Errorf("encoder: resolution must be > 0, got %d", cfg.Encoder.Resolution)
	}
	if cfg.Encoder.SamplingTimeMs < 20 {
		return fmt.Errorf("encoder: sampling_time_ms must be >= 20, got %d", cfg.Encoder.SamplingTimeMs)
	}

	// ------------------------------------------------------------
	// GPIO
	// ------------------------------------------------------------

	if len(cfg.GPIO.OutputPins) > 0 || cfg.GPIO.EnableEvents {
		if cfg.GPIO.Chip == "" {
			return fmt.Errorf("gpio: chip is required when pins are configured")
		}
	}
	for _, pin := range cfg.GPIO.OutputPins {
		if pin < 0 {
			return fmt.Errorf("gpio: output pin %d is negative", pin)
		}
	}
	if cfg.GPIO.InputPin < 0 {
		return fmt.Errorf("gpio: input_pin %d is negative", cfg.GPIO.InputPin)
	}

	// ------------------------------------------------------------
	// NETWORK
	// ------------------------------------------------------------

	if cfg.Network.Port < 1 || cfg.Network.Port > 65535 {
		return fmt.Errorf("network: port must be 1-65535, got %d", cfg.Network.Port)
	}
	if cfg.Network.ReturnPort < 1 || cfg.Network.ReturnPort > 65535 {
		return fmt.Errorf("network: return_port must be 1-65535, got %d", cfg.Network.ReturnPort)
	}
	switch fold(cfg.Network.DefaultFormat) {
	case "json", "text", "osc-list":
	default:
		return fmt.Errorf("network: default_format must be json, text or osc-list, got %q", cfg.Network.DefaultFormat)
	}
	if cfg.Network.ClientExpiryS < 300 || cfg.Network.ClientExpiryS > 900 {
		return fmt.Errorf("network: client_expiry_s must be 300-900, got %d", cfg.Network.ClientExpiryS)
	}
	if cfg.Network.HeartbeatS <= 0 {
		return fmt.Errorf("network: heartbeat_s must be > 0, got %d", cfg.Network.HeartbeatS)
	}
	if cfg.Network.QueueSize <= 0 {
		return fmt.Errorf("network: queue_size must be > 0, got %d", cfg.Network.QueueSize)
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch fold(cfg.Logging.Level) {
	case "debug", "info":
	default:
		return fmt.Errorf("logging: level must be debug or info, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB <= 0 {
			return fmt.Errorf("logging: max_size_mb must be > 0, got %d", cfg.Logging.MaxSizeMB)
		}
		if cfg.Logging.BackupCount < 0 {
			return fmt.Errorf("logging: backup_count must be >= 0, got %d", cfg.Logging.BackupCount)
		}
	}

	// ------------------------------------------------------------
	// SYSTEM
	// ------------------------------------------------------------

	if cfg.System.MaxRetries < 1 {
		return fmt.Errorf("system: max_retries must be >= 1, got %d", cfg.System.MaxRetries)
	}
	if cfg.System.RetryIntervalS < 1 {
		return fmt.Errorf("system: retry_interval_s must be >= 1, got %d", cfg.System.RetryIntervalS)
	}
	if cfg.System.HealthCheckIntervalS < 1 {
		return fmt.Errorf("system: health_check_interval_s must be >= 1, got %d", cfg.System.HealthCheckIntervalS)
	}
	if cfg.System.DeviceName == "" {
		return fmt.Errorf("system: device_name is required")
	}
	for i := 0; i < len(cfg.System.DeviceName); i++ {
		if cfg.System.DeviceName[i] > 0x7F {
			return fmt.Errorf("system: device_name must contain ASCII characters only")
		}
	}

	return nil
}
