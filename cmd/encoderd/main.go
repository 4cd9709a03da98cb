// cmd/encoderd/main.go
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/loveourearth/JHS-EncoderReader/internal/config"
	"github.com/loveourearth/JHS-EncoderReader/internal/control"
	"github.com/loveourearth/JHS-EncoderReader/internal/device"
	"github.com/loveourearth/JHS-EncoderReader/internal/device/mbtcp"
	"github.com/loveourearth/JHS-EncoderReader/internal/device/rtu"
	"github.com/loveourearth/JHS-EncoderReader/internal/encoder"
	"github.com/loveourearth/JHS-EncoderReader/internal/events"
	"github.com/loveourearth/JHS-EncoderReader/internal/gateway"
	"github.com/loveourearth/JHS-EncoderReader/internal/gpio"
)

// options are the command-line flags. Anything set here overrides the
// configuration file.
type options struct {
	Config        string `short:"c" long:"config" description:"configuration file" default:"encoder-gateway.yaml"`
	SerialPort    string `short:"p" long:"port" description:"serial device path"`
	Baud          int    `short:"b" long:"baud" description:"serial baud rate"`
	Slave         uint8  `short:"a" long:"address" description:"modbus slave address"`
	UDPHost       string `long:"udp-host" description:"UDP listen host"`
	UDPPort       int    `long:"udp-port" description:"UDP command port"`
	ReturnPort    int    `long:"return-port" description:"UDP reply port"`
	Debug         bool   `short:"d" long:"debug" description:"verbose logging with frame dumps"`
	Interactive   bool   `short:"i" long:"interactive" description:"command shell on stdin"`
	AutoReconnect bool   `short:"r" long:"auto-reconnect" description:"supervise and reconnect the device session"`
	Reset         bool   `long:"reset" description:"write the default configuration file and exit"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	if _, err := parser.AddCommand("monitor", "print encoder samples to stdout",
		"Poll the encoder and print samples to stdout instead of serving UDP.",
		&monitorCommand{opts: &opts}); err != nil {
		log.Fatalf("encoderd: %v", err)
	}

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
	if parser.Active != nil {
		// A subcommand ran inside Parse.
		return
	}

	if opts.Reset {
		if err := config.Save(config.Default(), opts.Config); err != nil {
			log.Fatalf("encoderd: %v", err)
		}
		log.Printf("encoderd: wrote default configuration to %s", opts.Config)
		return
	}

	cfg, err := loadConfig(&opts)
	if err != nil {
		log.Fatalf("encoderd: %v", err)
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	run(cfg, opts.Interactive)
}

func run(cfg *config.Config, interactive bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Device session
	// --------------------

	tr, err := buildTransport(cfg)
	if err != nil {
		log.Fatalf("encoderd: transport: %v", err)
	}

	client, err := device.New(tr, cfg.Serial.Baud, device.Config{
		SlaveAddress: cfg.Modbus.SlaveAddress,
		Resolution:   cfg.Encoder.Resolution,
		SamplingMs:   cfg.Encoder.SamplingTimeMs,
		MaxRetries:   cfg.System.MaxRetries,
	})
	if err != nil {
		log.Fatalf("encoderd: device: %v", err)
	}

	bus := events.NewBus()
	monitor := encoder.NewMonitor(client, bus)

	if err := monitor.Connect(); err != nil {
		// Not fatal: the supervisor retries when enabled, and clients
		// can issue /encoder/connect at any time.
		log.Printf("encoderd: encoder not reachable yet: %v", err)
	}

	// --------------------
	// GPIO
	// --------------------

	pins := gpio.New(gpio.Config{
		Chip:         cfg.GPIO.Chip,
		OutputPins:   cfg.GPIO.OutputPins,
		InputPin:     cfg.GPIO.InputPin,
		EnableEvents: cfg.GPIO.EnableEvents,
	}, bus)

	// --------------------
	// UDP gateway
	// --------------------

	format, _ := gateway.ParseFormat(cfg.Network.DefaultFormat)
	srv, err := gateway.NewServer(gateway.Config{
		Host:             cfg.Network.Host,
		Port:             cfg.Network.Port,
		ReturnPort:       cfg.Network.ReturnPort,
		DefaultFormat:    format,
		ClientExpiry:     time.Duration(cfg.Network.ClientExpiryS) * time.Second,
		Heartbeat:        time.Duration(cfg.Network.HeartbeatS) * time.Second,
		HeartbeatEnabled: cfg.Network.HeartbeatEnabled,
		QueueSize:        cfg.Network.QueueSize,
		DeviceName:       cfg.System.DeviceName,
	}, nil)
	if err != nil {
		log.Fatalf("encoderd: gateway: %v", err)
	}

	co := control.NewCoordinator(srv, bus, monitor, client, pins, cfg.System.DeviceName)
	co.Attach()
	srv.SetHandler(co)
	srv.SetStatusFields(co.StatusFields)

	if err := srv.Start(); err != nil {
		log.Fatalf("encoderd: gateway: %v", err)
	}

	// --------------------
	// Connection supervisor
	// --------------------

	supCtx, stopSup := context.WithCancel(context.Background())
	supDone := make(chan struct{})
	if cfg.System.AutoReconnect {
		sup := encoder.NewSupervisor(client, bus, encoder.SupervisorConfig{
			CheckInterval:  time.Duration(cfg.System.RetryIntervalS) * time.Second,
			MaxRetries:     cfg.System.MaxRetries,
			HealthInterval: time.Duration(cfg.System.HealthCheckIntervalS) * time.Second,
		})
		go func() {
			defer close(supDone)
			sup.Run(supCtx)
		}()
	} else {
		close(supDone)
	}

	log.Printf("encoderd: %s serving %s, commands on %s:%d, replies to port %d",
		cfg.System.DeviceName, tr.Endpoint(), cfg.Network.Host, srv.Addr().Port, cfg.Network.ReturnPort)

	if interactive {
		go runShell(ctx, stop, co)
	}

	<-ctx.Done()
	log.Printf("encoderd: shutting down")

	// Quiesce outbound traffic first, then the pollers, then the links.
	srv.StopHeartbeat()
	srv.StopSender()

	co.StopTasks()
	stopSup()
	<-supDone
	co.Detach()

	pins.Close()
	if err := client.Close(); err != nil {
		log.Printf("encoderd: serial close: %v", err)
	}
	if err := srv.Close(); err != nil {
		log.Printf("encoderd: udp close: %v", err)
	}
}

// loadConfig reads the file and applies the flag overrides on top.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}

	if opts.SerialPort != "" {
		cfg.Serial.Port = opts.SerialPort
	}
	if opts.Baud != 0 {
		cfg.Serial.Baud = opts.Baud
	}
	if opts.Slave != 0 {
		cfg.Modbus.SlaveAddress = opts.Slave
	}
	if opts.UDPHost != "" {
		cfg.Network.Host = opts.UDPHost
	}
	if opts.UDPPort != 0 {
		cfg.Network.Port = opts.UDPPort
	}
	if opts.ReturnPort != 0 {
		cfg.Network.ReturnPort = opts.ReturnPort
	}
	if opts.Debug {
		cfg.Modbus.Debug = true
		cfg.Logging.Level = "debug"
	}
	if opts.AutoReconnect {
		cfg.System.AutoReconnect = true
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

// setupLogging routes the standard logger to stderr plus the rotating
// file sink when one is configured. The returned func flushes the sink.
func setupLogging(cfg *config.Config) func() {
	if cfg.Logging.Level == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
	if cfg.Logging.File == "" {
		return func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.BackupCount,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return func() { rotator.Close() }
}

// buildTransport selects the Modbus link from the configuration.
func buildTransport(cfg *config.Config) (device.Transport, error) {
	if cfg.Modbus.Transport == "tcp" {
		return mbtcp.New(mbtcp.Config{
			Endpoint: cfg.Modbus.TCPEndpoint,
			Timeout:  time.Duration(cfg.Serial.TimeoutMs) * time.Millisecond,
		})
	}

	var frameLog *log.Logger
	if cfg.Modbus.Debug {
		frameLog = log.New(log.Writer(), "modbus: ", log.LstdFlags|log.Lmicroseconds)
	}
	return rtu.New(rtu.Config{
		Port:     cfg.Serial.Port,
		Baud:     cfg.Serial.Baud,
		DataBits: cfg.Serial.DataBits,
		Parity:   cfg.Serial.Parity,
		StopBits: cfg.Serial.StopBits,
		Timeout:  time.Duration(cfg.Serial.TimeoutMs) * time.Millisecond,
		Debug:    frameLog,
	}), nil
}
