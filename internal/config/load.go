// internal/config/load.go
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default returns the full default tree. Loading merges file values over
// these, so a partial config file is always complete after Load.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:      "/dev/ttyUSB0",
			Baud:      9600,
			DataBits:  8,
			Parity:    "N",
			StopBits:  1,
			TimeoutMs: 500,
		},
		Modbus: ModbusConfig{
			SlaveAddress: 1,
			Transport:    "rtu",
		},
		Encoder: EncoderConfig{
			Resolution:     4096,
			SamplingTimeMs: 100,
		},
		GPIO: GPIOConfig{
			Chip:         "gpiochip0",
			OutputPins:   []int{17, 27, 22},
			InputPin:     18,
			EnableEvents: true,
		},
		Network: NetworkConfig{
			Host:             "0.0.0.0",
			Port:             8888,
			ReturnPort:       9999,
			DefaultFormat:    "text",
			ClientExpiryS:    300,
			HeartbeatS:       180,
			HeartbeatEnabled: true,
			QueueSize:        256,
		},
		Logging: LoggingConfig{
			Level:       "info",
			File:        "encoder-gateway.log",
			MaxSizeMB:   10,
			BackupCount: 5,
		},
		System: SystemConfig{
			MaxRetries:           3,
			RetryIntervalS:       5,
			AutoReconnect:        true,
			HealthCheckIntervalS: 30,
			DeviceName:           "encoder-pi",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error: the
// defaults apply unchanged. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the active configuration back as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
