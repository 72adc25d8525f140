package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Chichichkin/LogShipper/internal/logging"
	"github.com/Chichichkin/LogShipper/internal/notify"
)

type MockBackend struct {
	mu          sync.Mutex
	SentBatches [][]*logging.Entry
	Fields      []logging.Field
	ConnectErr  error
	ShouldFail  bool
	Delay       time.Duration

	ConnectCalls int
	ShipCalls    int
	CloseCalls   int
}

func (m *MockBackend) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectCalls++
	return m.ConnectErr
}

func (m *MockBackend) ShipBatch(ctx context.Context, entries []*logging.Entry) error {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShipCalls++

	if m.ShouldFail {
		return fmt.Errorf("mock ship failed")
	}

	m.SentBatches = append(m.SentBatches, entries)
	return nil
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}

func (m *MockBackend) SetFields(fields []logging.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fields = fields
}

func (m *MockBackend) SetShouldFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
}

func (m *MockBackend) GetSentBatches() [][]*logging.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*logging.Entry, len(m.SentBatches))
	copy(out, m.SentBatches)
	return out
}

func (m *MockBackend) GetShipCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ShipCalls
}

func (m *MockBackend) GetCloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}

func (m *MockBackend) TotalSent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.SentBatches {
		total += len(b)
	}
	return total
}

type MockNotifier struct {
	mu    sync.Mutex
	Calls []notify.Notification
}

func (m *MockNotifier) Notify(n notify.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, n)
}

func (m *MockNotifier) GetCalls() []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Notification, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// MockSink records entries handed over by the capture daemon.
type MockSink struct {
	mu      sync.Mutex
	New     []*logging.Entry
	Updated []*logging.Entry
}

func (m *MockSink) OnNewEntry(entry *logging.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.New = append(m.New, entry)
}

func (m *MockSink) OnUpdatedEntry(entry *logging.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updated = append(m.Updated, entry)
}

func (m *MockSink) Counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.New), len(m.Updated)
}

func ProcessedEntry(values map[logging.Field]any) *logging.Entry {
	return logging.NewEntry(logging.StatusProcessed, values)
}

func CreateTempCaptureStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"proxy/session-1.jsonl": `{"event":"new","status":"PROCESSED","fields":{"Request.Method":"GET","Request.URL":"http://example.com/"}}` + "\n",
		"proxy/session-2.jsonl": `{"event":"updated","status":"PROCESSED","fields":{"Response.Status":200}}` + "\n",
		"scanner/active.jsonl":  `{"event":"new","status":"PENDING","fields":{"Request.Method":"POST"}}` + "\n",
		"scanner/notes.txt":     "not a capture file\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
