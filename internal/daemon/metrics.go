package daemon

import (
	"sync"
)

type CaptureStats struct {
	FilesDiscovered     int
	FilesProcessed      int
	FilesFailed         int
	QueuedFiles         int
	FilesQueueCapacity  int
	WorkersActive       int
	WorkersBusy         int
	ScaleUpOperations   int
	ScaleDownOperations int
	LinesRead           int
	DecodeFailures      int
	EntriesDelivered    int
}

type CaptureMetrics struct {
	mu    sync.RWMutex
	stats CaptureStats
}

func NewCaptureMetrics(queueCapacity int) *CaptureMetrics {
	return &CaptureMetrics{stats: CaptureStats{FilesQueueCapacity: queueCapacity}}
}

func (m *CaptureMetrics) add(f func(s *CaptureStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.stats)
}

func (m *CaptureMetrics) IncFilesDiscovered() {
	m.add(func(s *CaptureStats) { s.FilesDiscovered++ })
}

func (m *CaptureMetrics) IncFilesProcessed() {
	m.add(func(s *CaptureStats) { s.FilesProcessed++ })
}

func (m *CaptureMetrics) IncFilesFailed() {
	m.add(func(s *CaptureStats) { s.FilesFailed++ })
}

func (m *CaptureMetrics) IncQueuedFiles() {
	m.add(func(s *CaptureStats) { s.QueuedFiles++ })
}

func (m *CaptureMetrics) DecQueuedFiles() {
	m.add(func(s *CaptureStats) { s.QueuedFiles-- })
}

func (m *CaptureMetrics) IncWorkersActive() {
	m.add(func(s *CaptureStats) { s.WorkersActive++ })
}

func (m *CaptureMetrics) DecWorkersActive() {
	m.add(func(s *CaptureStats) { s.WorkersActive-- })
}

func (m *CaptureMetrics) IncWorkersBusy() {
	m.add(func(s *CaptureStats) { s.WorkersBusy++ })
}

func (m *CaptureMetrics) DecWorkersBusy() {
	m.add(func(s *CaptureStats) { s.WorkersBusy-- })
}

func (m *CaptureMetrics) IncScaleUpOperations() {
	m.add(func(s *CaptureStats) { s.ScaleUpOperations++ })
}

func (m *CaptureMetrics) IncScaleDownOperations() {
	m.add(func(s *CaptureStats) { s.ScaleDownOperations++ })
}

func (m *CaptureMetrics) IncLinesRead() {
	m.add(func(s *CaptureStats) { s.LinesRead++ })
}

func (m *CaptureMetrics) IncDecodeFailures() {
	m.add(func(s *CaptureStats) { s.DecodeFailures++ })
}

func (m *CaptureMetrics) IncEntriesDelivered() {
	m.add(func(s *CaptureStats) { s.EntriesDelivered++ })
}

func (m *CaptureMetrics) Snapshot() CaptureStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// QueueUsage is the fraction of the file queue currently in use.
func (m *CaptureMetrics) QueueUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stats.FilesQueueCapacity == 0 {
		return 0
	}
	return float64(m.stats.QueuedFiles) / float64(m.stats.FilesQueueCapacity)
}
