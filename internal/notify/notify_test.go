package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []Notification
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, n)
}

func TestNotification_Message(t *testing.T) {
	breaker := Notification{Kind: KindCircuitBreak, Exporter: "Graylog Exporter", Attempts: 5}
	assert.Equal(t, "Graylog Exporter could not connect after 5 attempts. Exporter has been shut down.", breaker.Message())

	start := Notification{Kind: KindStartFailed, Exporter: "Graylog Exporter", Err: errors.New("connection refused")}
	assert.Contains(t, start.Message(), "Could not start Graylog Exporter: connection refused")
}

func TestWebhookNotifier_Posts(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	NewWebhookNotifier(srv.URL, time.Second).Notify(Notification{Kind: KindCircuitBreak, Exporter: "exp", Attempts: 5})

	require.NotNil(t, got)
	assert.Equal(t, "exp could not connect after 5 attempts. Exporter has been shut down.", got["text"])
}

func TestWebhookNotifier_ErrorIsLogged(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	NewWebhookNotifier(srv.URL, time.Second).Notify(Notification{Kind: KindStartFailed, Exporter: "exp"})

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "HTTP 502")
}

func TestWebhookNotifier_EmptyURL(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWebhookNotifier("", 0).Notify(Notification{})
	})
}

func TestLogNotifier(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	LogNotifier{}.Notify(Notification{Kind: KindCircuitBreak, Exporter: "exp", Attempts: 3})

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "exp", hook.LastEntry().Data["exporter"])
	assert.Equal(t, "circuit_break", hook.LastEntry().Data["kind"])
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.Notify(Notification{Exporter: "exp"})

	assert.Len(t, a.calls, 1)
	assert.Len(t, b.calls, 1)
}
