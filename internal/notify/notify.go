package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

type Kind int

const (
	KindStartFailed Kind = iota
	KindCircuitBreak
)

func (k Kind) String() string {
	switch k {
	case KindCircuitBreak:
		return "circuit_break"
	default:
		return "start_failed"
	}
}

// Notification is raised when an exporter stops without the user asking it to.
type Notification struct {
	Kind     Kind
	Exporter string
	Attempts int
	Err      error
}

func (n Notification) Message() string {
	switch n.Kind {
	case KindCircuitBreak:
		return fmt.Sprintf("%s could not connect after %d attempts. Exporter has been shut down.",
			n.Exporter, n.Attempts)
	default:
		return fmt.Sprintf("Could not start %s: %v\nSee the logs for more information.", n.Exporter, n.Err)
	}
}

type Notifier interface {
	Notify(n Notification)
}

type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	log.WithFields(log.Fields{
		"exporter": n.Exporter,
		"kind":     n.Kind.String(),
	}).Error(n.Message())
}

// WebhookNotifier posts {"text": message} to a chat-style webhook.
// Delivery errors are logged and never reach the caller.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) Notify(n Notification) {
	if w.url == "" {
		return
	}
	if err := w.post(n); err != nil {
		log.Errorf("Webhook delivery failed for %s: %v", n.Exporter, err)
		return
	}
	log.Debugf("Webhook delivered for %s (%s)", n.Exporter, n.Kind)
}

func (w *WebhookNotifier) post(n Notification) error {
	body, err := json.Marshal(map[string]string{"text": n.Message()})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}
