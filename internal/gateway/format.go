// internal/gateway/format.go
package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Render encodes one outbound message for a client format. Every
// datagram is a single UTF-8 line.
//
//	json:     <address> {"k":v,...}
//	osc-list: ["<address>", v1, v2, ...]
//	text:     <address> v1 v2 ...
//
// order fixes the value sequence for the positional formats; keys
// missing from fields are skipped. A nil order sorts the keys so the
// positional formats stay deterministic.
func Render(f Format, address string, fields map[string]interface{}, order []string) ([]byte, error) {
	if order == nil {
		order = sortedKeys(fields)
	}

	switch f {
	case FormatJSON:
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode %s: %w", address, err)
		}
		return []byte(address + " " + string(body)), nil

	case FormatOSCList:
		list := make([]interface{}, 0, len(order)+1)
		list = append(list, address)
		for _, key := range order {
			if v, ok := fields[key]; ok {
				list = append(list, v)
			}
		}
		body, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode %s: %w", address, err)
		}
		return body, nil

	case FormatText:
		parts := make([]string, 0, len(order)+1)
		parts = append(parts, address)
		for _, key := range order {
			if v, ok := fields[key]; ok {
				parts = append(parts, fmt.Sprintf("%v", v))
			}
		}
		return []byte(strings.Join(parts, " ")), nil
	}

	return nil, fmt.Errorf("gateway: unknown format %q", f)
}

func sortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
