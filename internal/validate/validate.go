// Package validate turns raw inbound payloads into well-typed FocusEvents.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"focusaura/internal/domain"
)

// FieldError describes one offending field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError enumerates every offending field of a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the offending fields.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// FocusEvent validates a raw JSON payload. On failure the returned error is a
// *ValidationError naming every offending field.
func FocusEvent(raw []byte) (domain.FocusEvent, error) {
	verr := &ValidationError{}
	var fields map[string]json.RawMessage
	if len(bytes.TrimSpace(raw)) == 0 {
		verr.add("body", "request body is required")
		return domain.FocusEvent{}, verr
	}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		verr.add("body", "must be a JSON object")
		return domain.FocusEvent{}, verr
	}

	var ev domain.FocusEvent
	goal, present, ok := stringField(fields, "goal")
	switch {
	case !present:
		verr.add("goal", "is required")
	case !ok:
		verr.add("goal", "must be a string")
	case strings.TrimSpace(goal) == "":
		verr.add("goal", "must not be blank")
	default:
		ev.Goal = strings.TrimSpace(goal)
	}

	for _, name := range []string{"context_title", "context_app", "session_id"} {
		v, present, ok := stringField(fields, name)
		if present && !ok {
			verr.add(name, "must be a string")
			continue
		}
		v = strings.TrimSpace(v)
		switch name {
		case "context_title":
			ev.ContextTitle = v
		case "context_app":
			ev.ContextApp = v
		case "session_id":
			ev.SessionID = v
		}
	}

	minutes, err := minutesField(fields["time_on_task_minutes"])
	if err != nil {
		verr.add("time_on_task_minutes", "%s", err.Error())
	} else {
		ev.TimeOnTaskMinutes = minutes
	}

	event, present, ok := stringField(fields, "event")
	if present && !ok {
		verr.add("event", "must be a string")
	} else {
		ev.Event = strings.ToLower(strings.TrimSpace(event))
		ev.Category = Classify(ev.Event)
	}

	if len(verr.Fields) > 0 {
		return domain.FocusEvent{}, verr
	}
	return ev, nil
}

// stringField returns (value, present, isString). JSON null counts as absent.
func stringField(fields map[string]json.RawMessage, name string) (string, bool, bool) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", false, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", true, false
	}
	return s, true, true
}

func minutesField(raw json.RawMessage) (int, error) {
	if raw == nil || isNull(raw) {
		return 0, nil
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("must be a non-negative integer")
		}
		text = strings.TrimSpace(s)
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
