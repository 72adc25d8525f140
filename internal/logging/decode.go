package logging

import (
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

type EventKind string

const (
	EventNew     EventKind = "new"
	EventUpdated EventKind = "updated"
)

type capturedLine struct {
	Event  string         `json:"event"`
	Status string         `json:"status"`
	Fields map[string]any `json:"fields"`
}

// DecodeEntry parses one line of a capture file. Unknown field labels are skipped.
func DecodeEntry(line []byte) (EventKind, *Entry, error) {
	var raw capturedLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return "", nil, fmt.Errorf("failed to decode entry: %w", err)
	}

	event := EventNew
	switch strings.ToLower(raw.Event) {
	case "", string(EventNew):
	case string(EventUpdated):
		event = EventUpdated
	default:
		return "", nil, fmt.Errorf("unknown event %q", raw.Event)
	}

	status := StatusPending
	if strings.EqualFold(raw.Status, StatusProcessed.String()) {
		status = StatusProcessed
	}

	values := make(map[Field]any, len(raw.Fields))
	for label, value := range raw.Fields {
		field, ok := FieldByLabel(label)
		if !ok {
			log.Debugf("Skipping unknown field %q", label)
			continue
		}
		if value == nil {
			continue
		}
		typed, err := toFieldType(field, value)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", field.FullLabel(), err)
		}
		values[field] = typed
	}

	return event, NewEntry(status, values), nil
}

func toFieldType(field Field, value any) (any, error) {
	switch field.Type {
	case TypeInteger:
		return cast.ToIntE(value)
	case TypeDecimal:
		return cast.ToFloat64E(value)
	case TypeBoolean:
		return cast.ToBoolE(value)
	case TypeDate:
		return cast.ToTimeE(value)
	case TypeStringList:
		return cast.ToStringSliceE(value)
	default:
		return cast.ToStringE(value)
	}
}
