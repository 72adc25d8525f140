package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	log "github.com/sirupsen/logrus"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

const DefaultPattern = "*.jsonl"

// Sink receives decoded entries. Exporters and the exporter manager implement it.
type Sink interface {
	OnNewEntry(entry *logging.Entry)
	OnUpdatedEntry(entry *logging.Entry)
}

type CaptureService struct {
	config        Config
	sink          Sink
	fileQueue     chan string
	workers       []*worker
	workersWg     sync.WaitGroup
	subServicesWg sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	metrics       *CaptureMetrics

	scaleMutex     sync.RWMutex
	currentWorkers int
	maxWorkers     int
	minWorkers     int

	filesMu   sync.Mutex
	seenFiles map[string]struct{}
	active    map[string]struct{}
	offsets   map[string]int64
}

type worker struct {
	id     int
	ctx    context.Context
	cancel context.CancelFunc
}

type Config struct {
	CaptureRootPath string
	// Pattern is matched against file names, default *.jsonl
	Pattern            string
	ScanInterval       time.Duration
	MinWorkers         int
	MaxWorkers         int
	FileQueueSize      int
	ScaleUpThreshold   float64 // default: 0.9
	ScaleDownThreshold float64 // default: 0.3
	ScaleCheckInterval time.Duration
	MetricsInterval    time.Duration
	// If > 0, stop tailing a file after this period without new lines.
	// The file is picked up again from the same offset on a later scan.
	FileIdleTimeout time.Duration
	// Read files discovered for the first time from the beginning instead of the end
	FromBeginning bool
}

// NewCaptureService always creates 3 + config.MinWorkers go routines on Start()
func NewCaptureService(ctx context.Context, config Config, sink Sink) *CaptureService {
	if config.Pattern == "" {
		config.Pattern = DefaultPattern
	}
	if config.MinWorkers <= 0 {
		config.MinWorkers = 1
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = config.MinWorkers
	}
	if config.FileQueueSize <= 0 {
		config.FileQueueSize = 100
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = 5 * time.Second
	}
	if config.ScaleCheckInterval <= 0 {
		config.ScaleCheckInterval = 10 * time.Second
	}
	if config.ScaleUpThreshold <= 0 {
		config.ScaleUpThreshold = 0.9
	}
	if config.ScaleDownThreshold <= 0 {
		config.ScaleDownThreshold = 0.3
	}
	if config.MetricsInterval <= 0 {
		config.MetricsInterval = 30 * time.Second
	}

	nCtx, cancel := context.WithCancel(ctx)

	service := &CaptureService{
		config:         config,
		sink:           sink,
		fileQueue:      make(chan string, config.FileQueueSize),
		ctx:            nCtx,
		cancel:         cancel,
		metrics:        NewCaptureMetrics(config.FileQueueSize),
		minWorkers:     config.MinWorkers,
		maxWorkers:     config.MaxWorkers,
		currentWorkers: config.MinWorkers,
		seenFiles:      make(map[string]struct{}),
		active:         make(map[string]struct{}),
		offsets:        make(map[string]int64),
	}

	service.workers = make([]*worker, config.MaxWorkers+1)

	return service
}

func (s *CaptureService) Metrics() *CaptureMetrics {
	return s.metrics
}

func (s *CaptureService) Start() {
	log.Infof("Starting capture service: root=%s pattern=%s min workers=%d, max workers=%d, queue size=%d",
		s.config.CaptureRootPath, s.config.Pattern, s.minWorkers, s.maxWorkers, s.config.FileQueueSize)

	for i := 0; i < s.minWorkers; i++ {
		s.startWorker(i)
	}

	s.subServicesWg.Add(1)
	go s.scanner()

	s.subServicesWg.Add(1)
	go s.monitorAndScale()

	s.subServicesWg.Add(1)
	go s.metricsReporter()

	log.Info("Capture service started")
}

func (s *CaptureService) Stop() {
	log.Info("Stopping capture service...")
	s.cancel()

	s.subServicesWg.Wait()

	close(s.fileQueue)
	s.workersWg.Wait()

	log.Info("Capture service stopped")
}

func (s *CaptureService) startWorker(id int) {
	if id >= len(s.workers) || s.workers[id] != nil {
		return
	}

	workerCtx, cancel := context.WithCancel(s.ctx)
	worker := &worker{
		id:     id,
		ctx:    workerCtx,
		cancel: cancel,
	}
	s.workers[id] = worker

	s.workersWg.Add(1)
	go s.worker(worker)

	s.metrics.IncWorkersActive()
	log.Debugf("Worker %d started", id)
}

func (s *CaptureService) stopWorker(id int) {
	if id >= len(s.workers) || s.workers[id] == nil {
		return
	}

	s.workers[id].cancel()
	s.workers[id] = nil

	s.metrics.DecWorkersActive()
	log.Debugf("Worker %d stopped", id)
}

func (s *CaptureService) worker(worker *worker) {
	defer s.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Worker %d panicked: %v", worker.id, r)
		}
	}()

	for {
		select {
		case filePath, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.metrics.DecQueuedFiles()
			s.metrics.IncWorkersBusy()
			s.processFile(worker.ctx, filePath)
			s.metrics.DecWorkersBusy()

		case <-worker.ctx.Done():
			return
		}
	}
}

func (s *CaptureService) processFile(ctx context.Context, filePath string) {
	defer s.release(filePath)
	defer s.metrics.IncFilesProcessed()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("File processing panicked for %s: %v", filePath, r)
			s.metrics.IncFilesFailed()
		}
	}()

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: s.startLocation(filePath),
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		log.Errorf("Failed to tail file %s: %v", filePath, err)
		s.metrics.IncFilesFailed()
		return
	}
	defer t.Cleanup()
	defer t.Kill(nil)

	checkTicker := time.NewTicker(1 * time.Second)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				log.Warnf("Error reading from %s: %v", filePath, line.Err)
				continue
			}

			s.handleLine(filePath, line.Text)
			lastActivity = time.Now()

		case <-checkTicker.C:
			// waking up from blocking line reading to check context status and idle timeout
			if s.config.FileIdleTimeout > 0 && time.Since(lastActivity) > s.config.FileIdleTimeout {
				if offset, err := t.Tell(); err == nil {
					s.saveOffset(filePath, offset)
				}
				log.Debugf("No activity on %s for %s, releasing", filePath, s.config.FileIdleTimeout)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *CaptureService) handleLine(filePath, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.metrics.IncLinesRead()

	event, entry, err := logging.DecodeEntry([]byte(text))
	if err != nil {
		log.WithField("file", filePath).Warnf("Skipping undecodable line: %v", err)
		s.metrics.IncDecodeFailures()
		return
	}

	switch event {
	case logging.EventUpdated:
		s.sink.OnUpdatedEntry(entry)
	default:
		s.sink.OnNewEntry(entry)
	}
	s.metrics.IncEntriesDelivered()
}

func (s *CaptureService) startLocation(filePath string) *tail.SeekInfo {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()

	if offset, ok := s.offsets[filePath]; ok {
		return &tail.SeekInfo{Offset: offset, Whence: io.SeekStart}
	}
	if s.config.FromBeginning {
		return &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
	return &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
}

func (s *CaptureService) saveOffset(filePath string, offset int64) {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	s.offsets[filePath] = offset
}

func (s *CaptureService) release(filePath string) {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	delete(s.active, filePath)
}

func (s *CaptureService) scanner() {
	defer s.subServicesWg.Done()

	s.scanFiles()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()

		case <-s.ctx.Done():
			return
		}
	}
}

// scanFiles queues every matching file that is not already being tailed.
func (s *CaptureService) scanFiles() {
	files, err := s.discoverCaptureFiles()
	if err != nil {
		log.Errorf("Error discovering capture files: %v", err)
		return
	}

	for _, file := range files {
		if !s.claim(file) {
			continue
		}
		select {
		case s.fileQueue <- file:
			s.metrics.IncQueuedFiles()
		case <-s.ctx.Done():
			s.release(file)
			return

		default:
			s.release(file)
			log.Warnf("File queue full (%d/%d), skipping %s",
				len(s.fileQueue), cap(s.fileQueue), file)
		}
	}
}

func (s *CaptureService) claim(file string) bool {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()

	if _, ok := s.seenFiles[file]; !ok {
		s.metrics.IncFilesDiscovered()
		s.seenFiles[file] = struct{}{}
	}
	if _, busy := s.active[file]; busy {
		return false
	}
	s.active[file] = struct{}{}
	return true
}

func (s *CaptureService) monitorAndScale() {
	defer s.subServicesWg.Done()

	ticker := time.NewTicker(s.config.ScaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.adjustWorkers()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *CaptureService) adjustWorkers() {
	stats := s.metrics.Snapshot()

	if s.minWorkers == s.maxWorkers {
		return
	}

	queueUsage := s.metrics.QueueUsage()
	workerUtilization := 0.0
	if s.currentWorkers > 0 {
		workerUtilization = float64(stats.WorkersBusy) / float64(s.currentWorkers)
	}

	if queueUsage > s.config.ScaleUpThreshold &&
		workerUtilization > s.config.ScaleUpThreshold &&
		s.currentWorkers < s.maxWorkers {
		s.scaleUp()
	} else if queueUsage < s.config.ScaleDownThreshold &&
		workerUtilization < s.config.ScaleDownThreshold &&
		s.currentWorkers > s.minWorkers {
		s.scaleDown()
	}
}

func (s *CaptureService) scaleUp() {
	s.scaleMutex.Lock()
	defer s.scaleMutex.Unlock()

	if s.currentWorkers >= s.maxWorkers {
		return
	}

	newWorkerID := s.currentWorkers
	s.currentWorkers++

	s.startWorker(newWorkerID)
	s.metrics.IncScaleUpOperations()

	log.Infof("Scaled up to %d workers (queue usage: %d%%)",
		s.currentWorkers, int(s.metrics.QueueUsage()*100))
}

func (s *CaptureService) scaleDown() {
	s.scaleMutex.Lock()
	defer s.scaleMutex.Unlock()

	if s.currentWorkers <= s.minWorkers {
		return
	}

	workerToStop := s.currentWorkers - 1
	s.currentWorkers--

	s.stopWorker(workerToStop)
	s.metrics.IncScaleDownOperations()

	log.Infof("Scaled down to %d workers (queue usage: %d%%)",
		s.currentWorkers, int(s.metrics.QueueUsage()*100))
}

func (s *CaptureService) metricsReporter() {
	defer s.subServicesWg.Done()

	ticker := time.NewTicker(s.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.metrics.Snapshot()

			log.Infof(
				"Metrics: workers active/max=%d/%d, workers busy=%d, queue status=%d/%d (%d%%), files=%d/%d, lines=%d, decode failures=%d, delivered=%d",
				stats.WorkersActive, s.maxWorkers,
				stats.WorkersBusy,
				stats.QueuedFiles, s.config.FileQueueSize, int(s.metrics.QueueUsage()*100),
				stats.FilesProcessed, stats.FilesDiscovered,
				stats.LinesRead,
				stats.DecodeFailures,
				stats.EntriesDelivered,
			)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *CaptureService) discoverCaptureFiles() ([]string, error) {
	var captureFiles []string

	err := filepath.Walk(s.config.CaptureRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("Error accessing path %s: %v", path, err)
			return nil
		}

		if info.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(s.config.Pattern, info.Name()); ok {
			captureFiles = append(captureFiles, path)
		}
		return nil
	})

	return captureFiles, err
}
