package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Chichichkin/LogShipper/internal/config"
	"github.com/Chichichkin/LogShipper/internal/daemon"
	"github.com/Chichichkin/LogShipper/internal/logging/exporter"
	"github.com/Chichichkin/LogShipper/internal/logging/gelf"
	"github.com/Chichichkin/LogShipper/internal/metrics"
	"github.com/Chichichkin/LogShipper/internal/notify"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("LOGSHIPPER_CONFIG"), "path to the YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file loaded before the config")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Logging.Apply(); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shipper := StartShipper(ctx, cfg)

	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, shipper.Reload); err != nil {
				log.Errorf("Config watcher stopped: %v", err)
			}
		}()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shipper.Shutdown()
}

type Shipper struct {
	mu       sync.Mutex
	cfg      *config.Config
	manager  *exporter.Manager
	notifier notify.Notifier
	exporter *exporter.Exporter
	capture  *daemon.CaptureService
}

func StartShipper(ctx context.Context, cfg *config.Config) *Shipper {
	notifier := buildNotifier(cfg.Notify)
	manager := exporter.NewManager(notifier)

	s := &Shipper{
		cfg:      cfg,
		manager:  manager,
		notifier: notifier,
	}

	s.startExporter(ctx, cfg)

	s.capture = daemon.NewCaptureService(ctx, cfg.Capture.DaemonConfig(), manager)
	s.capture.Start()

	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry(metrics.NewCollector(manager, s.capture.Metrics()))
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	return s
}

func buildNotifier(cfg config.NotifyConfig) notify.Notifier {
	notifiers := notify.Multi{notify.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout))
	}
	return notifiers
}

func (s *Shipper) startExporter(ctx context.Context, cfg *config.Config) {
	expCfg, err := cfg.Graylog.ExporterConfig()
	if err != nil {
		log.Errorf("Invalid exporter config: %v", err)
		return
	}

	sender := gelf.NewSender(cfg.Graylog.SenderConfig(), expCfg.Fields)
	exp := exporter.New(expCfg, sender,
		exporter.WithController(s.manager),
		exporter.WithNotifier(s.notifier),
	)
	s.exporter = exp

	if !cfg.Graylog.Autostart {
		log.Infof("%s autostart disabled", expCfg.Name)
		return
	}
	// the manager logs and notifies on failure
	_ = s.manager.EnableExporter(ctx, exp)
}

// Reload restarts the exporter with the new graylog settings.
// Capture settings only take effect after a restart of the process.
func (s *Shipper) Reload(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cfg.Logging.Apply(); err != nil {
		log.Warnf("Ignoring logging config: %v", err)
	}
	if cfg.Capture != s.cfg.Capture {
		log.Warn("Capture settings changed, restart the shipper to apply them")
	}

	if s.exporter != nil && s.manager.Enabled(s.exporter.Name()) {
		if err := s.manager.DisableExporter(s.exporter); err != nil {
			log.Errorf("Error disabling %s: %v", s.exporter.Name(), err)
		}
	}

	s.notifier = buildNotifier(cfg.Notify)
	s.cfg = cfg
	s.startExporter(context.Background(), cfg)
}

func (s *Shipper) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capture.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.manager.StopAll(ctx); err != nil {
		log.Errorf("Error stopping exporters: %v", err)
	}
	log.Info("Shutdown complete")
}
