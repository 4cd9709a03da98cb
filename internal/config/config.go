// internal/config/config.go
package config

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Modbus  ModbusConfig  `yaml:"modbus"`
	Encoder EncoderConfig `yaml:"encoder"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Network NetworkConfig `yaml:"network"`
	Logging LoggingConfig `yaml:"logging"`
	System  SystemConfig  `yaml:"system"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Port      string `yaml:"port"`
	Baud      int    `yaml:"baud"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"` // N, E or O
	StopBits  int    `yaml:"stop_bits"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- MODBUS ----

type ModbusConfig struct {
	SlaveAddress uint8  `yaml:"slave_address"`
	Debug        bool   `yaml:"debug"`        // hex-dump every frame
	Transport    string `yaml:"transport"`    // rtu | tcp
	TCPEndpoint  string `yaml:"tcp_endpoint"` // required when transport=tcp
}

// ---- ENCODER ----

type EncoderConfig struct {
	Resolution     int `yaml:"resolution"`       // counts per revolution
	SamplingTimeMs int `yaml:"sampling_time_ms"` // speed register window
}

// ---- GPIO ----

type GPIOConfig struct {
	Chip         string `yaml:"chip"`
	OutputPins   []int  `yaml:"output_pins"` // BCM numbers
	InputPin     int    `yaml:"input_pin"`
	EnableEvents bool   `yaml:"enable_events"`
}

// ---- NETWORK ----

type NetworkConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`        // command listen port
	ReturnPort       int    `yaml:"return_port"` // all replies go here, never the source port
	DefaultFormat    string `yaml:"default_format"` // json | text | osc-list
	ClientExpiryS    int    `yaml:"client_expiry_s"`
	HeartbeatS       int    `yaml:"heartbeat_s"`
	HeartbeatEnabled bool   `yaml:"heartbeat_enabled"`
	QueueSize        int    `yaml:"queue_size"` // outbound queue depth
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level       string `yaml:"level"` // info | debug
	File        string `yaml:"file"`  // empty disables the file sink
	MaxSizeMB   int    `yaml:"max_size_mb"`
	BackupCount int    `yaml:"backup_count"`
}

// ---- SYSTEM ----

type SystemConfig struct {
	MaxRetries           int    `yaml:"max_retries"`
	RetryIntervalS       int    `yaml:"retry_interval_s"`
	AutoReconnect        bool   `yaml:"auto_reconnect"`
	HealthCheckIntervalS int    `yaml:"health_check_interval_s"`
	DeviceName           string `yaml:"device_name"`
}
