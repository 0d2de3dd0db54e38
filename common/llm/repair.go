package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MalformedOutputError is returned when model output cannot be decoded even
// after repair. Raw holds the text the model produced.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// RepairJSON extracts the span from the first '{' to the last '}'.
// Models sometimes wrap the object in prose or code fences.
func RepairJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// decodeStructured unmarshals raw into result, retrying once on the repaired span.
func decodeStructured(raw string, result any) (repaired bool, err error) {
	firstErr := json.Unmarshal([]byte(raw), result)
	if firstErr == nil {
		return false, nil
	}

	fixed, ok := RepairJSON(raw)
	if !ok {
		return false, &MalformedOutputError{Raw: raw, Err: firstErr}
	}
	if err := json.Unmarshal([]byte(fixed), result); err != nil {
		return false, &MalformedOutputError{Raw: raw, Err: err}
	}
	return true, nil
}
