package gelf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	Address     string
	Port        int
	Protocol    string
	APIToken    string
	Compression bool
	Timeout     time.Duration
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// StatusError is returned when the GELF endpoint answers with anything but 200 or 202.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("graylog returned status code: %d", e.Code)
	}
	return fmt.Sprintf("graylog returned status code: %d: %s", e.Code, e.Body)
}

// Sender ships entries to a Graylog GELF HTTP input, one request per entry.
type Sender struct {
	cfg        Config
	httpClient *http.Client
	resolver   *net.Resolver
	hostname   func() (string, error)
	now        func() time.Time

	mu     sync.RWMutex
	url    string
	fields []logging.Field
}

func NewSender(cfg Config, fields []logging.Field) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "http"
	}
	return &Sender{
		cfg:      cfg,
		resolver: net.DefaultResolver,
		hostname: os.Hostname,
		now:      time.Now,
		fields:   fields,
	}
}

func (s *Sender) SetFields(fields []logging.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
}

func (s *Sender) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Connect resolves the destination, builds the endpoint URL and sends a probe message.
func (s *Sender) Connect(ctx context.Context) error {
	protocol := strings.ToLower(s.cfg.Protocol)
	if protocol != "http" && protocol != "https" {
		return fmt.Errorf("unsupported protocol %q", s.cfg.Protocol)
	}
	if s.cfg.Port <= 0 || s.cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.cfg.Port)
	}

	if _, err := s.resolver.LookupHost(ctx, s.cfg.Address); err != nil {
		return fmt.Errorf("failed to resolve %s: %w", s.cfg.Address, err)
	}

	url := fmt.Sprintf("%s://%s/gelf", protocol, net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port)))
	s.mu.Lock()
	s.url = url
	s.httpClient = &http.Client{
		Transport: s.cfg.Transport,
		Timeout:   s.cfg.Timeout,
	}
	s.mu.Unlock()

	log.Infof("Starting GELF exporter. URL: %s", url)

	return s.testConnection(ctx)
}

func (s *Sender) testConnection(ctx context.Context) error {
	probe := newMessage(s.hostName(), probeMessage, s.now())
	probe["_test"] = true

	if err := s.send(ctx, probe); err != nil {
		log.Errorf("GELF connection test failed: %v", err)
		return fmt.Errorf("failed to connect to graylog: %w", err)
	}
	log.Info("GELF connection test successful")
	return nil
}

// ShipBatch sends every entry in order and stops at the first failure.
func (s *Sender) ShipBatch(ctx context.Context, entries []*logging.Entry) error {
	s.mu.RLock()
	fields := s.fields
	s.mu.RUnlock()

	host := s.hostName()
	for i, entry := range entries {
		msg := BuildMessage(entry, fields, host, s.now())
		if err := s.send(ctx, msg); err != nil {
			log.Errorf("Failed to send entry %d/%d to graylog: %v", i+1, len(entries), err)
			return err
		}
	}
	return nil
}

func (s *Sender) Close() error {
	s.mu.RLock()
	client := s.httpClient
	s.mu.RUnlock()
	if client != nil {
		client.CloseIdleConnections()
	}
	return nil
}

func (s *Sender) hostName() string {
	name, err := s.hostname()
	if err != nil || name == "" {
		return unknownHost
	}
	return name
}

func (s *Sender) send(ctx context.Context, msg Message) error {
	s.mu.RLock()
	url, client := s.url, s.httpClient
	s.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("sender is not connected")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if s.cfg.Compression {
		body, err = compress(body)
		if err != nil {
			return fmt.Errorf("failed to compress message: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Compression {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if token := strings.TrimSpace(s.cfg.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(responseBody))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
