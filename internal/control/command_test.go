// internal/control/command_test.go
package control

import (
	"testing"
)

func TestDecode_FormsAreEquivalent(t *testing.T) {
	forms := map[string][]string{
		"json":       {`{"interval": 0.5, "format": "json"}`},
		"key=value":  {"interval=0.5", "format=json"},
		"positional": {"0.5", "json"},
	}

	for name, args := range forms {
		cmd, err := Decode("/encoder/start_monitor", args)
		if err != nil {
			t.Fatalf("%s form: %v", name, err)
		}
		if cmd.Name != "start_monitor" {
			t.Fatalf("%s form: name = %q", name, cmd.Name)
		}
		if v, ok := cmd.FloatArg("interval", 0); !ok || v != 0.5 {
			t.Fatalf("%s form: interval = %v, %v", name, v, ok)
		}
		if v, ok := cmd.StringArg("format", 1); !ok || v != "json" {
			t.Fatalf("%s form: format = %q, %v", name, v, ok)
		}
	}
}

func TestDecode_CommandAddress(t *testing.T) {
	cmd, err := Decode("/command", []string{`{"command": "status"}`})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Name != "status" {
		t.Fatalf("name = %q", cmd.Name)
	}
	if _, ok := cmd.Params["command"]; ok {
		t.Fatalf("command key should be consumed")
	}

	cmd, err = Decode("/command", []string{"read_register", "0x0003"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Name != "read_register" {
		t.Fatalf("name = %q", cmd.Name)
	}
	if v, ok := cmd.IntArg("address", 0); !ok || v != 3 {
		t.Fatalf("address = %v, %v", v, ok)
	}
}

func TestDecode_CommandAddressWithoutName(t *testing.T) {
	if _, err := Decode("/command", nil); err == nil {
		t.Fatalf("expected error for missing command name")
	}
}

func TestDecode_UnknownAddress(t *testing.T) {
	if _, err := Decode("/encoder/warp_speed", nil); err == nil {
		t.Fatalf("expected error for unknown address")
	}
}

func TestDecode_BadJSON(t *testing.T) {
	if _, err := Decode("/encoder/start_monitor", []string{`{"interval":`}); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestDecodeLine(t *testing.T) {
	cmd, err := DecodeLine("read_register 0x0000 count=2")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Name != "read_register" {
		t.Fatalf("name = %q", cmd.Name)
	}
	if v, _ := cmd.IntArg("address", 0); v != 0 {
		t.Fatalf("address = %v", v)
	}
	if v, _ := cmd.IntArg("count", 1); v != 2 {
		t.Fatalf("count = %v", v)
	}

	cmd, err = DecodeLine("/system/status")
	if err != nil || cmd.Name != "status" {
		t.Fatalf("address line: %q, %v", cmd.Name, err)
	}

	// Fields splits the JSON argument; the decoder must rejoin it.
	cmd, err = DecodeLine(`start_monitor {"interval": 0.5}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := cmd.FloatArg("interval", 0); !ok || v != 0.5 {
		t.Fatalf("interval = %v, %v", v, ok)
	}

	if _, err := DecodeLine("   "); err == nil {
		t.Fatalf("expected error for empty line")
	}
}

func TestArgCoercion(t *testing.T) {
	cmd, err := Decode("/encoder/write_register", []string{"address=0x0005", "value=2"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := cmd.IntArg("address", 0); !ok || v != 5 {
		t.Fatalf("hex address = %v, %v", v, ok)
	}
	if v, ok := cmd.IntArg("value", 1); !ok || v != 2 {
		t.Fatalf("value = %v, %v", v, ok)
	}

	cmd, _ = Decode("/gpio/high", []string{"pin=1", "true"})
	if v, ok := cmd.BoolArg("state", 0); !ok || !v {
		t.Fatalf("bool positional = %v, %v", v, ok)
	}
	if v, ok := cmd.IntArg("pin", -1); !ok || v != 1 {
		t.Fatalf("pin = %v, %v", v, ok)
	}

	// JSON numbers arrive as float64 and must coerce both ways.
	cmd, _ = Decode("/encoder/read_register", []string{`{"address": 3, "count": 2}`})
	if v, ok := cmd.IntArg("address", 0); !ok || v != 3 {
		t.Fatalf("json int = %v, %v", v, ok)
	}
	if v, ok := cmd.FloatArg("count", 1); !ok || v != 2.0 {
		t.Fatalf("json float = %v, %v", v, ok)
	}
}

func TestArgMissing(t *testing.T) {
	cmd, _ := Decode("/encoder/read_register", nil)
	if _, ok := cmd.IntArg("address", 0); ok {
		t.Fatalf("missing arg should report not-ok")
	}
	if _, ok := cmd.StringArg("format", -1); ok {
		t.Fatalf("negative position disables positional fallback")
	}
}
