// cmd/encoderd/monitor.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loveourearth/JHS-EncoderReader/internal/control"
	"github.com/loveourearth/JHS-EncoderReader/internal/device"
	"github.com/loveourearth/JHS-EncoderReader/internal/encoder"
	"github.com/loveourearth/JHS-EncoderReader/internal/events"
	"github.com/loveourearth/JHS-EncoderReader/internal/gateway"
)

// monitorCommand is the `monitor` subcommand: poll the encoder and print
// samples to stdout, no UDP server involved.
type monitorCommand struct {
	Interval float64 `long:"interval" description:"poll interval in seconds" default:"1"`
	Format   string  `long:"format" description:"output format (json, text, osc-list)" default:"text"`
	Count    int     `long:"count" description:"stop after this many samples, 0 runs until interrupted"`

	opts *options
}

func (m *monitorCommand) Execute(args []string) error {
	cfg, err := loadConfig(m.opts)
	if err != nil {
		return err
	}

	format, ok := gateway.ParseFormat(m.Format)
	if !ok {
		return fmt.Errorf("unknown format %q", m.Format)
	}
	interval := time.Duration(m.Interval * float64(time.Second))
	if interval < 20*time.Millisecond {
		return fmt.Errorf("interval %.3fs is too short", m.Interval)
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	client, err := device.New(tr, cfg.Serial.Baud, device.Config{
		SlaveAddress: cfg.Modbus.SlaveAddress,
		Resolution:   cfg.Encoder.Resolution,
		SamplingMs:   cfg.Encoder.SamplingTimeMs,
		MaxRetries:   cfg.System.MaxRetries,
	})
	if err != nil {
		return err
	}

	bus := events.NewBus()
	monitor := encoder.NewMonitor(client, bus)
	if err := monitor.Connect(); err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Samples arrive on the poll goroutine; stdout is the only consumer.
	done := make(chan struct{})
	printed := 0
	bus.Subscribe(func(evt events.Event) {
		sample, ok := evt.Data["sample"].(encoder.Sample)
		if !ok {
			return
		}
		line, err := gateway.Render(format, "/data/update", control.SampleFields(sample), control.MonitorFieldOrder)
		if err != nil {
			log.Printf("monitor: render: %v", err)
			return
		}
		fmt.Println(string(line))
		printed++
		if m.Count > 0 && printed == m.Count {
			close(done)
		}
	}, events.DataUpdate)

	if err := monitor.StartMonitoring(interval); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-done:
	}

	monitor.StopMonitoring()
	return nil
}
