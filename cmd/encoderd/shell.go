// cmd/encoderd/shell.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/loveourearth/JHS-EncoderReader/internal/control"
	"github.com/loveourearth/JHS-EncoderReader/internal/gateway"
)

// runShell reads commands from stdin and dispatches them through the
// coordinator, printing results locally. The session is synthetic and
// never enters the registry, so broadcasts do not try to reach it over
// the network.
func runShell(ctx context.Context, quit func(), co *control.Coordinator) {
	local := gateway.ClientSession{
		Key:    "console",
		IP:     "127.0.0.1",
		Format: gateway.FormatText,
	}

	fmt.Println("interactive shell; 'help' lists commands, 'exit' stops the daemon")

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
		case "help":
			printHelp()
		default:
			cmd, err := control.DecodeLine(line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
			} else {
				printResult(co.Dispatch(local, cmd))
			}
		}
		fmt.Print("> ")
	}
	if err := in.Err(); err != nil {
		log.Printf("encoderd: shell: %v", err)
	}
}

func printResult(res control.Result) {
	if !res.OK {
		fmt.Printf("error: %s\n", res.Error)
		return
	}
	if len(res.Data) == 0 {
		fmt.Println("ok")
		return
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

func printHelp() {
	fmt.Print(`commands (also accepted as /addresses over UDP):
  status                          gateway and session overview
  device_info                     encoder configuration
  whoami                          your session as the gateway sees it
  connect | disconnect            open or close the device session
  read_position                   single-turn position and angle
  read_multi_position             multi-turn position
  read_speed                      rotation speed in rpm
  set_zero                        zero the encoder at the current position
  read_register <addr> [count=n]  raw holding registers
  write_register <addr> <value>   raw register write
  start_monitor [interval] [format=f]
  stop_monitor [task_id]
  list_monitors
  gpio_high <pin> | gpio_low <pin> | gpio_toggle <pin>
  gpio_pulse <pin> [duration]     pulse an output high
  read_input                      read the input line
  gpio_states                     pin levels
  subscribe <topic> [format=f]    narrow broadcasts (laps, system, errors, gpio)
  unsubscribe [topic]
  reset_counters
  exit
`)
}
