package gelf

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

const (
	Version   = "1.1"
	LevelInfo = 6

	unknownHost        = "unknown"
	placeholderMessage = "Log Shipper Entry"
	probeMessage       = "Log Shipper GELF Exporter Connection Test"
)

// Message is one GELF payload, keyed by wire field name.
type Message map[string]any

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SanitizeFieldName maps a field label onto the characters GELF allows in additional field names.
func SanitizeFieldName(label string) string {
	return strings.ToLower(unsafeChars.ReplaceAllString(label, "_"))
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}

func newMessage(host, short string, now time.Time) Message {
	return Message{
		"version":       Version,
		"host":          host,
		"short_message": short,
		"timestamp":     epochSeconds(now),
		"level":         LevelInfo,
	}
}

// BuildMessage translates entry into a GELF message carrying the selected fields.
// A field that cannot be converted is left out; the rest of the message is kept.
func BuildMessage(entry *logging.Entry, fields []logging.Field, host string, now time.Time) Message {
	msg := newMessage(host, ShortMessage(entry), now)

	for _, field := range fields {
		value, ok := entry.ValueByKey(field)
		if !ok {
			continue
		}

		converted, err := convertValue(value, field)
		if err != nil {
			log.Warnf("Could not serialize field %s: %v", field.FullLabel(), err)
			continue
		}
		msg["_"+SanitizeFieldName(field.FullLabel())] = converted
	}

	return msg
}

// ShortMessage renders "<METHOD> <URL> - Status: <STATUS>".
func ShortMessage(entry *logging.Entry) string {
	method, err := valueOr(entry, logging.FieldMethod, "UNKNOWN")
	if err != nil {
		return placeholderMessage
	}
	url, err := valueOr(entry, logging.FieldURL, "unknown")
	if err != nil {
		return placeholderMessage
	}
	status, err := valueOr(entry, logging.FieldStatus, "N/A")
	if err != nil {
		return placeholderMessage
	}

	return fmt.Sprintf("%s %s - Status: %s", method, url, status)
}

func valueOr(entry *logging.Entry, field logging.Field, fallback string) (string, error) {
	v, ok := entry.ValueByKey(field)
	if !ok {
		return fallback, nil
	}
	return cast.ToStringE(v)
}

func convertValue(value any, field logging.Field) (any, error) {
	switch field.Type {
	case logging.TypeInteger:
		return cast.ToInt64E(value)
	case logging.TypeDecimal:
		return cast.ToFloat64E(value)
	case logging.TypeBoolean:
		return cast.ToBoolE(value)
	case logging.TypeDate:
		t, err := cast.ToTimeE(value)
		if err != nil {
			return nil, err
		}
		return epochSeconds(t), nil
	case logging.TypeStringList:
		list, err := cast.ToStringSliceE(value)
		if err != nil {
			return nil, err
		}
		return strings.Join(list, "\n"), nil
	default:
		return cast.ToStringE(value)
	}
}
