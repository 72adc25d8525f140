package exporter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Chichichkin/LogShipper/internal/logging"
	"github.com/Chichichkin/LogShipper/internal/notify"
)

// Controller is the host-side owner of exporters. The circuit breaker asks it to
// disable an exporter instead of stopping it directly.
type Controller interface {
	DisableExporter(exp *Exporter) error
}

type Manager struct {
	mu        sync.Mutex
	exporters map[string]*Exporter
	notifier  notify.Notifier
}

func NewManager(notifier notify.Notifier) *Manager {
	return &Manager{
		exporters: make(map[string]*Exporter),
		notifier:  notifier,
	}
}

// EnableExporter starts exp and registers it. A start failure is reported to the notifier.
func (m *Manager) EnableExporter(ctx context.Context, exp *Exporter) error {
	if err := exp.Start(ctx); err != nil {
		if m.notifier != nil {
			m.notifier.Notify(notify.Notification{
				Kind:     notify.KindStartFailed,
				Exporter: exp.Name(),
				Err:      err,
			})
		}
		return err
	}

	m.mu.Lock()
	m.exporters[exp.Name()] = exp
	m.mu.Unlock()
	return nil
}

// DisableExporter unregisters exp and stops it. Disabling an exporter that is
// already stopped is a no-op.
func (m *Manager) DisableExporter(exp *Exporter) error {
	m.mu.Lock()
	registered, ok := m.exporters[exp.Name()]
	if ok && registered == exp {
		delete(m.exporters, exp.Name())
	}
	m.mu.Unlock()

	if !ok && exp.State() != StateRunning {
		return nil
	}

	log.Infof("Disabling %s", exp.Name())
	return exp.Stop(context.Background())
}

func (m *Manager) Enabled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.exporters[name]
	return ok
}

func (m *Manager) Exporters() []*Exporter {
	out := m.snapshot()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// OnNewEntry forwards to every enabled exporter.
func (m *Manager) OnNewEntry(entry *logging.Entry) {
	for _, exp := range m.snapshot() {
		exp.OnNewEntry(entry)
	}
}

func (m *Manager) OnUpdatedEntry(entry *logging.Entry) {
	for _, exp := range m.snapshot() {
		exp.OnUpdatedEntry(entry)
	}
}

func (m *Manager) snapshot() []*Exporter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Exporter, 0, len(m.exporters))
	for _, exp := range m.exporters {
		out = append(out, exp)
	}
	return out
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	exporters := make([]*Exporter, 0, len(m.exporters))
	for name, exp := range m.exporters {
		exporters = append(exporters, exp)
		delete(m.exporters, name)
	}
	m.mu.Unlock()

	var errs []error
	for _, exp := range exporters {
		if err := exp.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", exp.Name(), err))
		}
	}
	return errors.Join(errs...)
}
