package exporter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Chichichkin/LogShipper/internal/filter"
	"github.com/Chichichkin/LogShipper/internal/logging"
	"github.com/Chichichkin/LogShipper/internal/logging/queue"
	"github.com/Chichichkin/LogShipper/internal/notify"
)

const (
	DefaultInterval        = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

type Option func(*Exporter)

func WithCompiler(compile filter.Compiler) Option {
	return func(e *Exporter) { e.compile = compile }
}

func WithController(c Controller) Option {
	return func(e *Exporter) { e.controller = c }
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Exporter) { e.notifier = n }
}

// Exporter owns the queue, the failure tracker and the flush worker of one backend.
type Exporter struct {
	config     logging.Config
	backend    logging.Backend
	queue      *queue.Queue
	tracker    *FailureTracker
	compile    filter.Compiler
	controller Controller
	notifier   notify.Notifier

	mu        sync.Mutex
	state     atomic.Int32
	predicate atomic.Pointer[filter.Predicate]
	stop      chan struct{}
	done      chan struct{}
}

func New(config logging.Config, backend logging.Backend, opts ...Option) *Exporter {
	if config.Name == "" {
		config.Name = "Exporter"
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.QueueSize <= 0 {
		config.QueueSize = queue.MaxQueueSize
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = MaxConsecutiveFailures
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	e := &Exporter{
		config:  config,
		backend: backend,
		queue:   queue.New(config.QueueSize),
		tracker: NewFailureTracker(config.MaxConsecutiveFailures),
		compile: filter.Compile,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exporter) Name() string {
	return e.config.Name
}

func (e *Exporter) State() State {
	return State(e.state.Load())
}

func (e *Exporter) setState(s State) {
	e.state.Store(int32(s))
}

func (e *Exporter) QueueSize() int {
	return e.queue.Len()
}

func (e *Exporter) QueueCapacity() int {
	return e.queue.Cap()
}

func (e *Exporter) Stats() Stats {
	return e.tracker.Stats()
}

func (e *Exporter) Fields() []logging.Field {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]logging.Field, len(e.config.Fields))
	copy(out, e.config.Fields)
	return out
}

func (e *Exporter) SetFields(fields []logging.Field) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.Fields = fields
	if selector, ok := e.backend.(logging.FieldSelector); ok {
		selector.SetFields(fields)
	}
}

// Start validates the configuration, connects the backend and schedules the flush worker.
// The exporter only reaches StateRunning if every step succeeds.
func (e *Exporter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != StateStopped {
		return fmt.Errorf("%s is already %s", e.config.Name, e.State())
	}
	// a worker abandoned by a timed out Stop still owns the queue and the tracker
	if e.done != nil {
		select {
		case <-e.done:
		default:
			return fmt.Errorf("%w: %s", ErrWorkerBusy, e.config.Name)
		}
	}
	e.setState(StateStarting)

	if len(e.config.Fields) == 0 {
		return e.failStart(fmt.Errorf("%w: no fields configured for export", ErrConfiguration))
	}

	predicate, err := e.compile(e.config.Filter)
	if err != nil {
		log.Errorf("The log filter configured for the %s is invalid: %v", e.config.Name, err)
		return e.failStart(fmt.Errorf("%w: the log filter configured for the %s is invalid: %w", ErrConfiguration, e.config.Name, err))
	}

	if selector, ok := e.backend.(logging.FieldSelector); ok {
		selector.SetFields(e.config.Fields)
	}
	if err := e.backend.Connect(ctx); err != nil {
		return e.failStart(fmt.Errorf("%w: %w", ErrConnection, err))
	}

	if predicate != nil {
		e.predicate.Store(&predicate)
	} else {
		e.predicate.Store(nil)
	}
	e.queue.Clear()
	e.tracker.Reset()

	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(e.stop, e.done)

	e.setState(StateRunning)
	log.Infof("%s started successfully", e.config.Name)
	return nil
}

func (e *Exporter) failStart(err error) error {
	e.setState(StateStopped)
	log.Errorf("Could not start %s: %v", e.config.Name, err)
	return err
}

// Stop cancels the schedule, lets the worker run one final flush and waits for it
// at most ShutdownTimeout. Entries still queued afterwards are discarded.
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != StateRunning {
		return nil
	}
	e.setState(StateStopping)
	log.Infof("Shutting down %s...", e.config.Name)

	close(e.stop)

	timer := time.NewTimer(e.config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-e.done:
	case <-timer.C:
		log.Warnf("%s worker did not terminate gracefully, forcing shutdown", e.config.Name)
	case <-ctx.Done():
		log.Warnf("%s shutdown interrupted: %v", e.config.Name, ctx.Err())
	}

	e.queue.Clear()
	if err := e.backend.Close(); err != nil {
		log.Warnf("Error closing %s backend: %v", e.config.Name, err)
	}
	e.setState(StateStopped)

	stats := e.tracker.Stats()
	log.Infof("%s shutdown complete. Stats - Successful: %d, Failed: %d",
		e.config.Name, stats.Successful, stats.Failed)
	return nil
}

func (e *Exporter) OnNewEntry(entry *logging.Entry) {
	e.admit(entry)
}

func (e *Exporter) OnUpdatedEntry(entry *logging.Entry) {
	e.admit(entry)
}

func (e *Exporter) admit(entry *logging.Entry) {
	if entry == nil || entry.Status != logging.StatusProcessed {
		return
	}
	if e.State() != StateRunning {
		return
	}
	if p := e.predicate.Load(); p != nil && !(*p)(entry) {
		return
	}

	if !e.queue.Offer(entry) {
		log.Warnf("%s: Queue is full (%d entries). Dropping log entry.", e.config.Name, e.queue.Cap())
		e.tracker.AddFailed(1)
	}
}

// run is the single flush worker. Cycles never overlap: a slow cycle delays the next tick.
func (e *Exporter) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.processQueue() {
				// the backend is considered down: no final flush, Stop discards the rest
				go e.handleConsecutiveFailures()
				<-stop
				return
			}
		case <-stop:
			e.finalFlush()
			return
		}
	}
}

func (e *Exporter) finalFlush() {
	if n := e.queue.Len(); n > 0 {
		log.Infof("Processing %d remaining entries before shutdown", n)
		e.processQueue()
	}
}

// processQueue ships everything queued and reports whether the breaker tripped.
func (e *Exporter) processQueue() bool {
	batch := e.queue.DrainAll()
	if len(batch) == 0 {
		return false
	}

	log.Debugf("Shipping %d entries to %s", len(batch), e.config.Name)

	if err := e.backend.ShipBatch(context.Background(), batch); err != nil {
		err = fmt.Errorf("%w: %w", ErrShipment, err)
		reached := e.tracker.RecordFailure()
		e.tracker.AddFailed(e.queue.Len())

		log.WithField("batch", len(batch)).Errorf("%s failed to ship entries (failure %d of %d): %v",
			e.config.Name, e.tracker.Stats().ConsecutiveFailures, e.tracker.Max(), err)

		if reached {
			log.Errorf("%s has failed %d consecutive times. Shutting down exporter.",
				e.config.Name, e.tracker.Max())
		}
		return reached
	}

	e.tracker.RecordSuccess(len(batch))
	log.Debugf("Successfully shipped %d entries", len(batch))
	return false
}

func (e *Exporter) handleConsecutiveFailures() {
	var err error
	if e.controller != nil {
		err = e.controller.DisableExporter(e)
	} else {
		err = e.Stop(context.Background())
	}
	if err != nil {
		log.Errorf("Error disabling %s after consecutive failures: %v", e.config.Name, err)
		if e.controller != nil && e.State() == StateRunning {
			_ = e.Stop(context.Background())
		}
	}

	if e.notifier != nil {
		e.notifier.Notify(notify.Notification{
			Kind:     notify.KindCircuitBreak,
			Exporter: e.config.Name,
			Attempts: e.tracker.Max(),
		})
	}
}
