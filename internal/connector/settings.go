package connector

import (
	"encoding/json"
	"fmt"
)

// decodeSettings flattens the method's JSON settings blob into strings.
func decodeSettings(raw string) (map[string]string, error) {
	settings := make(map[string]string)
	if raw == "" || raw == "{}" {
		return settings, nil
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	for k, v := range decoded {
		switch val := v.(type) {
		case string:
			settings[k] = val
		case float64:
			settings[k] = fmt.Sprintf("%g", val)
		case bool:
			settings[k] = fmt.Sprintf("%t", val)
		default:
			data, _ := json.Marshal(val)
			settings[k] = string(data)
		}
	}
	return settings, nil
}
