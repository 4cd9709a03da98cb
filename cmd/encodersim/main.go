// cmd/encodersim/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/loveourearth/JHS-EncoderReader/internal/control"
	"github.com/loveourearth/JHS-EncoderReader/internal/device"
	"github.com/loveourearth/JHS-EncoderReader/internal/encoder"
	"github.com/loveourearth/JHS-EncoderReader/internal/events"
	"github.com/loveourearth/JHS-EncoderReader/internal/gateway"
	"github.com/loveourearth/JHS-EncoderReader/internal/gpio"
)

// simOptions drive the simulated gateway. The whole stack above the
// transport is the production one; only the wire is fake.
type simOptions struct {
	UDPHost     string  `long:"udp-host" description:"UDP listen host" default:"127.0.0.1"`
	UDPPort     int     `long:"port" description:"UDP command port" default:"8888"`
	ReturnPort  int     `long:"return-port" description:"UDP reply port" default:"9999"`
	Interval    float64 `long:"interval" description:"auto monitor interval in seconds, 0 disables it" default:"0.5"`
	Format      string  `long:"format" description:"sample format (json, text, osc-list)" default:"text"`
	Mode        string  `long:"mode" description:"rotation model" default:"spin" choice:"spin" choice:"sine"`
	RPM         float64 `long:"rpm" description:"rotation speed, peak speed for sine" default:"30"`
	Period      float64 `long:"sine-period" description:"sine cycle in seconds" default:"10"`
	Resolution  int     `long:"resolution" description:"counts per revolution" default:"4096"`
	Interactive bool    `short:"i" long:"interactive" description:"command shell on stdin"`
	Quiet       bool    `short:"q" long:"quiet" description:"do not echo samples to stdout"`
}

func main() {
	var opts simOptions
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	format, ok := gateway.ParseFormat(opts.Format)
	if !ok {
		log.Fatalf("encodersim: unknown format %q", opts.Format)
	}
	if opts.Resolution <= 0 {
		log.Fatalf("encodersim: resolution must be > 0")
	}
	if opts.Period <= 0 {
		log.Fatalf("encodersim: sine period must be > 0")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Simulated device
	// --------------------

	tr := newSimTransport(opts.Resolution, opts.Mode, opts.RPM,
		time.Duration(opts.Period*float64(time.Second)))

	client, err := device.New(tr, 9600, device.Config{
		SlaveAddress: 1,
		Resolution:   opts.Resolution,
		SamplingMs:   100,
	})
	if err != nil {
		log.Fatalf("encodersim: device: %v", err)
	}

	bus := events.NewBus()
	monitor := encoder.NewMonitor(client, bus)
	if err := monitor.Connect(); err != nil {
		log.Fatalf("encodersim: connect: %v", err)
	}

	// No chip name, so the controller runs its simulated pin state.
	pins := gpio.New(gpio.Config{
		OutputPins: []int{17, 27, 22},
		InputPin:   18,
	}, bus)

	// --------------------
	// UDP gateway
	// --------------------

	srv, err := gateway.NewServer(gateway.Config{
		Host:             opts.UDPHost,
		Port:             opts.UDPPort,
		ReturnPort:       opts.ReturnPort,
		DefaultFormat:    format,
		HeartbeatEnabled: true,
		DeviceName:       "encoder-sim",
	}, nil)
	if err != nil {
		log.Fatalf("encodersim: gateway: %v", err)
	}

	co := control.NewCoordinator(srv, bus, monitor, client, pins, "encoder-sim")
	co.Attach()
	srv.SetHandler(co)
	srv.SetStatusFields(co.StatusFields)

	if err := srv.Start(); err != nil {
		log.Fatalf("encodersim: gateway: %v", err)
	}

	// A localhost session is registered up front so anything listening on
	// the return port sees data without sending a command first.
	if opts.Interval > 0 {
		local := srv.Registry().Touch("127.0.0.1", opts.ReturnPort)
		res := co.Dispatch(local, control.Command{
			Name: "start_monitor",
			Params: map[string]interface{}{
				"interval": opts.Interval,
				"format":   opts.Format,
			},
		})
		if !res.OK {
			log.Fatalf("encodersim: start monitor: %s", res.Error)
		}
	}

	if !opts.Quiet {
		bus.Subscribe(func(evt events.Event) {
			sample, ok := evt.Data["sample"].(encoder.Sample)
			if !ok {
				return
			}
			line, err := gateway.Render(format, "/data/update", control.SampleFields(sample), control.MonitorFieldOrder)
			if err != nil {
				return
			}
			fmt.Println(string(line))
		}, events.DataUpdate)
	}

	log.Printf("encodersim: %s rotation at %.1f rpm, commands on %s:%d, replies to port %d",
		opts.Mode, opts.RPM, opts.UDPHost, srv.Addr().Port, opts.ReturnPort)

	if opts.Interactive {
		go runShell(ctx, stop, co)
	}

	<-ctx.Done()
	log.Printf("encodersim: shutting down")

	srv.StopHeartbeat()
	srv.StopSender()
	co.StopTasks()
	co.Detach()
	pins.Close()
	if err := client.Close(); err != nil {
		log.Printf("encodersim: close: %v", err)
	}
	if err := srv.Close(); err != nil {
		log.Printf("encodersim: udp close: %v", err)
	}
}

// runShell is a minimal console for poking the simulator.
func runShell(ctx context.Context, quit func(), co *control.Coordinator) {
	local := gateway.ClientSession{
		Key:    "console",
		IP:     "127.0.0.1",
		Format: gateway.FormatText,
	}

	in := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for in.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
		case "exit", "quit":
			quit()
			return
		default:
			cmd, err := control.DecodeLine(line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				break
			}
			res := co.Dispatch(local, cmd)
			if !res.OK {
				fmt.Printf("error: %s\n", res.Error)
				break
			}
			fields := res.Fields()
			for _, k := range res.FieldOrder() {
				if k == "status" {
					continue
				}
				if v, ok := fields[k]; ok {
					fmt.Printf("  %s: %v\n", k, v)
				}
			}
		}
		fmt.Print("> ")
	}
}
