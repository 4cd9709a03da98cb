// internal/control/result.go
package control

import (
	"fmt"
	"sort"
)

// Result is the uniform command outcome sent back to the caller.
type Result struct {
	OK    bool
	Error string
	Data  map[string]interface{}
	Order []string
}

// Ok builds a success result. The optional order fixes the field
// sequence for positional response formats.
func Ok(data map[string]interface{}, order ...string) Result {
	return Result{OK: true, Data: data, Order: order}
}

// Failf builds a failure result.
func Failf(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// FromErr wraps an operation error into a failure result.
func FromErr(err error) Result {
	return Result{Error: err.Error()}
}

// Fields flattens the result for rendering: a status field, the error
// message on failure, and the data fields.
func (r Result) Fields() map[string]interface{} {
	f := make(map[string]interface{}, len(r.Data)+2)
	for k, v := range r.Data {
		f[k] = v
	}
	if r.OK {
		f["status"] = "ok"
	} else {
		f["status"] = "error"
		f["error"] = r.Error
	}
	return f
}

// FieldOrder returns the render order: status (and error) first, then
// the declared order or the sorted data keys.
func (r Result) FieldOrder() []string {
	order := make([]string, 0, len(r.Data)+2)
	order = append(order, "status")
	if !r.OK {
		order = append(order, "error")
	}

	if len(r.Order) > 0 {
		return append(order, r.Order...)
	}
	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return append(order, keys...)
}
