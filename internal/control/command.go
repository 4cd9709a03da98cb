// internal/control/command.go
package control

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/loveourearth/JHS-EncoderReader/internal/syserr"
)

// Command is one decoded request. Params holds named values from the
// JSON or key=value form; Args keeps the remaining positional tokens in
// order.
type Command struct {
	Name   string
	Params map[string]interface{}
	Args   []string
}

// addressCommands maps wire addresses onto command names. The same
// names are accepted bare through /command and the interactive shell.
var addressCommands = map[string]string{
	"/whoami":                      "whoami",
	"/system/status":               "status",
	"/system/whoami":               "whoami",
	"/system/device_info":          "device_info",
	"/system/reset_counters":       "reset_counters",
	"/system/subscribe":            "subscribe",
	"/system/unsubscribe":          "unsubscribe",
	"/encoder/connect":             "connect",
	"/encoder/disconnect":          "disconnect",
	"/encoder/read_position":       "read_position",
	"/encoder/read_multi_position": "read_multi_position",
	"/encoder/read_speed":          "read_speed",
	"/encoder/set_zero":            "set_zero",
	"/encoder/read_register":       "read_register",
	"/encoder/write_register":      "write_register",
	"/encoder/start_monitor":       "start_monitor",
	"/encoder/stop_monitor":        "stop_monitor",
	"/encoder/list_monitors":       "list_monitors",
	"/gpio/high":                   "gpio_high",
	"/gpio/low":                    "gpio_low",
	"/gpio/toggle":                 "gpio_toggle",
	"/gpio/pulse":                  "gpio_pulse",
	"/gpio/read_input":             "read_input",
	"/gpio/states":                 "gpio_states",
}

// parseArgs splits argument tokens: a single JSON object becomes the
// params map; otherwise key=value tokens become named params and the
// rest stay positional.
func parseArgs(args []string) (Command, error) {
	cmd := Command{Params: map[string]interface{}{}}

	if len(args) == 1 && strings.HasPrefix(args[0], "{") {
		if err := json.Unmarshal([]byte(args[0]), &cmd.Params); err != nil {
			return Command{}, syserr.Wrap(syserr.KindConfig, err, "bad json argument")
		}
		return cmd, nil
	}

	for _, tok := range args {
		if i := strings.IndexByte(tok, '='); i > 0 {
			cmd.Params[tok[:i]] = coerce(tok[i+1:])
		} else {
			cmd.Args = append(cmd.Args, tok)
		}
	}
	return cmd, nil
}

// Decode turns one inbound address plus its argument tokens into a
// Command. The /command address carries the command name in its
// arguments instead of the address.
func Decode(address string, args []string) (Command, error) {
	cmd, err := parseArgs(args)
	if err != nil {
		return Command{}, err
	}

	if address == "/command" {
		name, _ := cmd.Params["command"].(string)
		if name == "" && len(cmd.Args) > 0 {
			name, cmd.Args = cmd.Args[0], cmd.Args[1:]
		}
		if name == "" {
			return Command{}, syserr.New(syserr.KindConfig, "command name missing")
		}
		delete(cmd.Params, "command")
		cmd.Name = name
		return cmd, nil
	}

	name, ok := addressCommands[address]
	if !ok {
		return Command{}, syserr.New(syserr.KindConfig, "unknown address %q", address)
	}
	cmd.Name = name
	return cmd, nil
}

// DecodeLine decodes one interactive-shell line: either a full wire
// address or a bare command name, followed by arguments.
func DecodeLine(line string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return Command{}, syserr.New(syserr.KindConfig, "empty command")
	}

	head, rest := fields[0], fields[1:]
	if strings.HasPrefix(head, "/") {
		return Decode(head, joinJSONArg(rest))
	}

	cmd, err := parseArgs(joinJSONArg(rest))
	if err != nil {
		return Command{}, err
	}
	cmd.Name = head
	return cmd, nil
}

// joinJSONArg re-joins tokens when the argument part is one JSON
// object that Fields split apart.
func joinJSONArg(tokens []string) []string {
	if len(tokens) > 0 && strings.HasPrefix(tokens[0], "{") {
		return []string{strings.Join(tokens, " ")}
	}
	return tokens
}

// coerce parses a token into the narrowest fitting type. Base-0 integer
// parsing keeps hex register addresses working.
func coerce(s string) interface{} {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// lookup finds a value by param name first, positional index second.
func (c Command) lookup(key string, pos int) (interface{}, bool) {
	if v, ok := c.Params[key]; ok {
		return v, true
	}
	if pos >= 0 && pos < len(c.Args) {
		return coerce(c.Args[pos]), true
	}
	return nil, false
}

// StringArg returns a string-valued argument.
func (c Command) StringArg(key string, pos int) (string, bool) {
	v, ok := c.lookup(key, pos)
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

// IntArg returns an integer argument, coercing floats and numeric
// strings (including 0x-prefixed hex).
func (c Command) IntArg(key string, pos int) (int64, bool) {
	v, ok := c.lookup(key, pos)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case string:
		if n, err := strconv.ParseInt(t, 0, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// FloatArg returns a float argument, coercing ints and numeric strings.
func (c Command) FloatArg(key string, pos int) (float64, bool) {
	v, ok := c.lookup(key, pos)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// BoolArg returns a boolean argument, treating nonzero numbers and the
// usual strings as true.
func (c Command) BoolArg(key string, pos int) (bool, bool) {
	v, ok := c.lookup(key, pos)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case int64:
		return t != 0, true
	case float64:
		return t != 0, true
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b, true
		}
	}
	return false, false
}
