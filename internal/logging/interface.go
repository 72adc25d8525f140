package logging

import (
	"context"
	"time"
)

type Status int

const (
	StatusPending Status = iota
	StatusProcessed
)

func (s Status) String() string {
	switch s {
	case StatusProcessed:
		return "PROCESSED"
	default:
		return "PENDING"
	}
}

// Entry is one captured transaction. The pipeline only reads it.
type Entry struct {
	Status Status
	values map[Field]any
}

func NewEntry(status Status, values map[Field]any) *Entry {
	copied := make(map[Field]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Entry{Status: status, values: copied}
}

// ValueByKey returns the value captured for field, if any.
func (e *Entry) ValueByKey(field Field) (any, bool) {
	v, ok := e.values[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Backend ships batches of entries to one destination protocol.
type Backend interface {
	Connect(ctx context.Context) error
	ShipBatch(ctx context.Context, entries []*Entry) error
	Close() error
}

// FieldSelector is implemented by backends that serialize only a subset of fields.
type FieldSelector interface {
	SetFields(fields []Field)
}

type Config struct {
	Name                   string
	Interval               time.Duration
	Fields                 []Field
	Filter                 string
	QueueSize              int
	MaxConsecutiveFailures int
	ShutdownTimeout        time.Duration
}
