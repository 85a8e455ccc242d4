package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KafClaw/wagateway/internal/api"
	"github.com/KafClaw/wagateway/internal/bus"
	"github.com/KafClaw/wagateway/internal/channels"
	"github.com/KafClaw/wagateway/internal/config"
	"github.com/KafClaw/wagateway/internal/logging"
	"github.com/KafClaw/wagateway/internal/scheduler"
	"github.com/KafClaw/wagateway/internal/session"
	"github.com/KafClaw/wagateway/internal/sink"
	"github.com/KafClaw/wagateway/internal/timeline"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the WhatsApp HTTP gateway",
	RunE:  runGateway,
}

var gatewaySignalContext = signal.NotifyContext

// newAdapter builds the messaging adapter; tests replace it.
var newAdapter = func(cfg config.WhatsAppConfig, b *bus.EventBus, log *zap.Logger) channels.Adapter {
	return channels.NewWhatsAppAdapter(cfg, b, log)
}

const shutdownTimeout = 10 * time.Second

func runGateway(cmd *cobra.Command, args []string) error {
	printHeader("🌐 WhatsApp Gateway")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := gatewaySignalContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Gateway.Addr())
	if err != nil {
		gw.close()
		return fmt.Errorf("listen %s: %w", cfg.Gateway.Addr(), err)
	}
	fmt.Printf("Listening on http://%s (admin console at /admin)\n", ln.Addr())
	return gw.run(ctx, ln)
}

// gateway owns every long-lived component of a running process.
type gateway struct {
	cfg         *config.Config
	log         *zap.Logger
	bus         *bus.EventBus
	tracker     *session.Tracker
	adapter     channels.Adapter
	timeline    *timeline.Service
	sink        sink.Sink
	handler     *channels.Handler
	reconnector *channels.Reconnector
	jobs        *scheduler.Scheduler
	server      *http.Server
}

func newGateway(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gateway, error) {
	if err := config.EnsureDir(cfg.WhatsApp.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	timeSvc, err := timeline.NewService(cfg.WhatsApp.TimelineDBPath())
	if err != nil {
		return nil, err
	}

	gw := &gateway{
		cfg:      cfg,
		log:      log,
		bus:      bus.NewEventBus(100),
		tracker:  session.NewTracker(),
		timeline: timeSvc,
		sink:     sink.New(cfg.Kafka, log),
	}
	gw.adapter = newAdapter(cfg.WhatsApp, gw.bus, log)
	gw.reconnector = channels.NewReconnector(ctx, channels.Backoff{
		Initial:     cfg.Reconnect.Initial,
		Max:         cfg.Reconnect.Max,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	}, gw.adapter.Initialize, log)

	var qr *channels.QRPresenter
	if cfg.WhatsApp.PrintQR || cfg.WhatsApp.QRFile != "" {
		qr = &channels.QRPresenter{File: cfg.WhatsApp.QRFile}
		if cfg.WhatsApp.PrintQR {
			qr.Out = os.Stdout
		}
	}

	gw.handler = channels.NewHandler(channels.HandlerOptions{
		Bus:         gw.bus,
		Tracker:     gw.tracker,
		Adapter:     gw.adapter,
		Responder:   channels.NewResponder(nil),
		Reconnector: gw.reconnector,
		Timeline:    gw.timeline,
		Sink:        gw.sink,
		QR:          qr,
		Log:         log,
		SendTimeout: cfg.Gateway.SendTimeout,
	})

	gw.jobs = scheduler.New(cfg.WhatsApp.DataDir, time.Minute, log)
	if cfg.Timeline.Retention > 0 {
		if err := gw.jobs.Register(retentionJob(gw.timeline, cfg.Timeline, log)); err != nil {
			_ = timeSvc.Close()
			return nil, err
		}
	}

	srv := api.NewServer(gw.tracker, gw.adapter, api.Options{
		Auth:        api.NewAuthGate(cfg.Gateway.AuthToken, cfg.Gateway.AdminSessionTTL),
		Recorder:    gw.handler,
		SendTimeout: cfg.Gateway.SendTimeout,
		Log:         log,
	})
	gw.server = &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// run serves until ctx is cancelled, then shuts every component down.
func (g *gateway) run(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.handler.Run(ctx); err != nil {
			g.log.Error("event handler stopped", zap.Error(err))
		}
	}()

	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = g.jobs.Run(jobCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.log.Info("initializing messaging client", zap.String("adapter", g.adapter.Name()))
		if err := g.adapter.Initialize(ctx); err != nil {
			g.log.Error("failed to initialize messaging client", zap.Error(err))
			g.reconnector.Schedule()
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		fmt.Println("Shutting down...")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := g.server.Shutdown(shutdownCtx); err != nil {
		g.log.Warn("http shutdown", zap.Error(err))
	}
	g.reconnector.Stop()
	stopJobs()
	g.bus.Close()
	wg.Wait()
	g.close()
	return runErr
}

func (g *gateway) close() {
	if err := g.adapter.Close(); err != nil {
		g.log.Warn("adapter close", zap.Error(err))
	}
	if err := g.sink.Close(); err != nil {
		g.log.Warn("sink close", zap.Error(err))
	}
	if err := g.timeline.Close(); err != nil {
		g.log.Warn("timeline close", zap.Error(err))
	}
}

// retentionJob deletes timeline events older than cfg.Retention.
func retentionJob(tl *timeline.Service, cfg config.TimelineConfig, log *zap.Logger) *scheduler.Job {
	return &scheduler.Job{
		Name:  "timeline-retention",
		Every: cfg.PruneInterval,
		Run: func(_ context.Context, now time.Time) error {
			n, err := tl.Prune(now.Add(-cfg.Retention))
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("pruned timeline", zap.Int64("events", n), zap.Duration("retention", cfg.Retention))
			}
			return nil
		},
	}
}
