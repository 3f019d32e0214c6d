package agent

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// RepairArgs returns tool arguments as a single JSON object.
//
// Some providers occasionally stream the same argument object twice, e.g.
// `{"a":1}{"a":1}`. When the raw text does not parse and contains more than
// one '{', the text from the first '{' through the first '}' is used instead.
// Nested objects defeat this and are reported as errors. Empty input is "{}".
func RepairArgs(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []byte("{}"), nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return []byte(raw), nil
	}
	first := strings.Index(raw, "{")
	if first < 0 || first == strings.LastIndex(raw, "{") {
		return nil, errors.Errorf("tool arguments are not a JSON object: %q", raw)
	}
	end := strings.Index(raw, "}")
	if end < first {
		return nil, errors.Errorf("tool arguments are not a JSON object: %q", raw)
	}
	candidate := raw[first : end+1]
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, errors.Wrapf(err, "repair tool arguments %q", raw)
	}
	return []byte(candidate), nil
}
