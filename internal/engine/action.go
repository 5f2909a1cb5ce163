package engine

import (
	"encoding/json"
	"fmt"

	"opsbridge/console/internal/connector"
	"opsbridge/console/internal/models"
)

// buildAction decodes a stored action definition into its execution-time
// form. The "command" parameter carries the command text, query, OID, URL
// path or mail subject depending on the action type; the remaining
// parameters pass through to the connector.
func buildAction(a models.Action) (connector.Action, error) {
	act := connector.Action{
		Type:    a.Type,
		Name:    a.Name,
		Ordinal: a.Ordinal,
		Params:  make(map[string]string),
	}
	if a.Params == "" {
		return act, nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(a.Params), &decoded); err != nil {
		return act, fmt.Errorf("action %q has malformed parameters: %w", a.Name, err)
	}
	for k, v := range decoded {
		var s string
		switch val := v.(type) {
		case string:
			s = val
		default:
			data, _ := json.Marshal(val)
			s = string(data)
		}
		if k == "command" {
			act.Command = s
			continue
		}
		act.Params[k] = s
	}
	return act, nil
}
