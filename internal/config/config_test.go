package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shipper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func validYAML(captureDir string) string {
	return `
graylog:
  address: graylog.local
  port: 12202
  protocol: HTTPS
  api_token: secret
  compression: false
  delay: 30
  filter: 'Response.Status >= 400'
  fields:
    - Request.Method
    - response.status
capture:
  path: ` + captureDir + `
  scan_interval: 2s
metrics:
  enabled: true
  addr: 127.0.0.1:9200
logging:
  level: debug
  format: json
`
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML(t.TempDir())))
	require.NoError(t, err)

	assert.Equal(t, "graylog.local", cfg.Graylog.Address)
	assert.Equal(t, 12202, cfg.Graylog.Port)
	assert.Equal(t, "https", cfg.Graylog.Protocol)
	assert.False(t, cfg.Graylog.Compression)
	assert.Equal(t, 30*time.Second, cfg.Graylog.Interval())
	assert.Equal(t, 2*time.Second, cfg.Capture.ScanInterval)
	assert.True(t, cfg.Metrics.Enabled)

	fields, err := cfg.Graylog.ExportFields()
	require.NoError(t, err)
	assert.Equal(t, []logging.Field{logging.FieldMethod, logging.FieldStatus}, fields)

	expCfg, err := cfg.Graylog.ExporterConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultExporterName, expCfg.Name)
	assert.Equal(t, "Response.Status >= 400", expCfg.Filter)

	sender := cfg.Graylog.SenderConfig()
	assert.Equal(t, "secret", sender.APIToken)
	assert.Equal(t, 12202, sender.Port)
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, "graylog:\n  address: localhost\ncapture:\n  path: "+dir+"\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Graylog.Port)
	assert.Equal(t, "http", cfg.Graylog.Protocol)
	assert.True(t, cfg.Graylog.Compression)
	assert.True(t, cfg.Graylog.Autostart)
	assert.Equal(t, 10*time.Second, cfg.Graylog.Interval())
	assert.Equal(t, 10000, cfg.Graylog.QueueSize)
	assert.Equal(t, 5, cfg.Graylog.MaxConsecutiveFailures)
	assert.Len(t, cfg.Graylog.Fields, 3)
	assert.Equal(t, "*.jsonl", cfg.Capture.Pattern)
	assert.Equal(t, dir, cfg.Capture.DaemonConfig().CaptureRootPath)
}

func TestLoad_DelayClampedToMinimum(t *testing.T) {
	cfg, err := Load(writeConfig(t, "graylog:\n  address: localhost\n  delay: 3\ncapture:\n  path: "+t.TempDir()+"\n"))
	require.NoError(t, err)

	assert.Equal(t, MinDelaySeconds, cfg.Graylog.Delay)
	assert.Equal(t, 10*time.Second, cfg.Graylog.Interval())
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GRAYLOG_ADDRESS", "env-host")
	t.Setenv("GRAYLOG_PORT", "12300")
	t.Setenv("GRAYLOG_COMPRESSION", "false")
	t.Setenv("GRAYLOG_FIELDS", "Request.URL, Response.RTT")
	t.Setenv("CAPTURE_PATH", dir)
	t.Setenv("CAPTURE_SCAN_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Graylog.Address)
	assert.Equal(t, 12300, cfg.Graylog.Port)
	assert.False(t, cfg.Graylog.Compression)
	assert.Equal(t, []string{"Request.URL", "Response.RTT"}, cfg.Graylog.Fields)
	assert.Equal(t, dir, cfg.Capture.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.ScanInterval)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("GRAYLOG_ADDRESS", "env-host")
	t.Setenv("CAPTURE_PATH", t.TempDir())
	t.Setenv("GRAYLOG_PORT", "not-a-port")

	_, err := Load("")
	assert.ErrorContains(t, err, "GRAYLOG_PORT")
}

func TestLoad_ValidationErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing address": "capture:\n  path: " + dir + "\n",
		"bad port":        "graylog:\n  address: h\n  port: 70000\ncapture:\n  path: " + dir + "\n",
		"bad protocol":    "graylog:\n  address: h\n  protocol: udp\ncapture:\n  path: " + dir + "\n",
		"unknown field":   "graylog:\n  address: h\n  fields: [Request.Nope]\ncapture:\n  path: " + dir + "\n",
		"missing capture": "graylog:\n  address: h\n",
		"absent capture":  "graylog:\n  address: h\ncapture:\n  path: " + filepath.Join(dir, "nope") + "\n",
		"bad log format":  "graylog:\n  address: h\ncapture:\n  path: " + dir + "\nlogging:\n  format: xml\n",
		"bad log level":   "graylog:\n  address: h\ncapture:\n  path: " + dir + "\nlogging:\n  level: loud\n",
		"yaml syntax":     "graylog: [\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOGSHIPPER_TEST_VALUE=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("LOGSHIPPER_TEST_VALUE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-dotenv", os.Getenv("LOGSHIPPER_TEST_VALUE"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestLoggingConfig_Apply(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	require.NoError(t, LoggingConfig{Level: "warn", Format: "json"}.Apply())
	assert.Equal(t, log.WarnLevel, log.GetLevel())

	assert.Error(t, LoggingConfig{Level: "loud"}.Apply())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, validYAML(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { changes <- cfg })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	updated := "graylog:\n  address: reloaded\ncapture:\n  path: " + dir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	select {
	case cfg := <-changes:
		assert.Equal(t, "reloaded", cfg.Graylog.Address)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatch_InvalidReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, validYAML(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 4)
	go func() {
		_ = Watch(ctx, path, func(*Config) { called <- struct{}{} })
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("graylog: [\n"), 0644))

	select {
	case <-called:
		t.Fatal("onChange called for an invalid config")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), func(*Config) {})
	assert.Error(t, err)
}
