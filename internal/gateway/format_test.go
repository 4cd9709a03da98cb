// internal/gateway/format_test.go
package gateway

import (
	"encoding/json"
	"strings"
	"testing"
)

func sampleFields() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": int64(1755850000000),
		"direction": "forward",
		"angle":     90.0,
		"rpm":       12.5,
		"laps":      int64(3),
	}
}

var sampleOrder = []string{"timestamp", "direction", "angle", "rpm", "laps"}

func TestRender_Text(t *testing.T) {
	line, err := Render(FormatText, "/data/update", sampleFields(), sampleOrder)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "/data/update 1755850000000 forward 90 12.5 3"
	if string(line) != want {
		t.Fatalf("text line = %q, want %q", line, want)
	}
}

func TestRender_JSON(t *testing.T) {
	line, err := Render(FormatJSON, "/data/update", sampleFields(), sampleOrder)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	parts := strings.SplitN(string(line), " ", 2)
	if len(parts) != 2 || parts[0] != "/data/update" {
		t.Fatalf("json line = %q", line)
	}

	var got map[string]interface{}
	if err := json.Unmarshal([]byte(parts[1]), &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if got["direction"] != "forward" {
		t.Fatalf("direction = %v", got["direction"])
	}
	if got["angle"].(float64) != 90.0 {
		t.Fatalf("angle = %v", got["angle"])
	}
	if got["laps"].(float64) != 3 {
		t.Fatalf("laps = %v", got["laps"])
	}
}

func TestRender_OSCList(t *testing.T) {
	line, err := Render(FormatOSCList, "/data/update", sampleFields(), sampleOrder)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var got []interface{}
	if err := json.Unmarshal(line, &got); err != nil {
		t.Fatalf("payload is not a json array: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("len = %d: %v", len(got), got)
	}
	if got[0] != "/data/update" {
		t.Fatalf("address = %v", got[0])
	}
	// Values follow the given order: timestamp, direction, angle, rpm, laps.
	if got[2] != "forward" {
		t.Fatalf("direction slot = %v", got[2])
	}
	if got[3].(float64) != 90.0 {
		t.Fatalf("angle slot = %v", got[3])
	}
}

func TestRender_NilOrderSortsKeys(t *testing.T) {
	fields := map[string]interface{}{"c": 3, "a": 1, "b": 2}

	line, err := Render(FormatText, "/x", fields, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(line) != "/x 1 2 3" {
		t.Fatalf("line = %q, want sorted-key order", line)
	}
}

func TestRender_MissingOrderKeySkipped(t *testing.T) {
	fields := map[string]interface{}{"a": 1}

	line, err := Render(FormatText, "/x", fields, []string{"a", "ghost", "a"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(line) != "/x 1 1" {
		t.Fatalf("line = %q", line)
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	if _, err := Render(Format("xml"), "/x", sampleFields(), nil); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
