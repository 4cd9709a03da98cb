// internal/config/normalize.go
package config

import "strings"

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// Fold the enumerated fields to their canonical case. Validate has
	// already accepted them case-insensitively.
	cfg.Serial.Parity = strings.ToUpper(strings.TrimSpace(cfg.Serial.Parity))
	cfg.Modbus.Transport = strings.ToLower(strings.TrimSpace(cfg.Modbus.Transport))
	cfg.Network.DefaultFormat = strings.ToLower(strings.TrimSpace(cfg.Network.DefaultFormat))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))

	cfg.System.DeviceName = strings.TrimSpace(cfg.System.DeviceName)
}
