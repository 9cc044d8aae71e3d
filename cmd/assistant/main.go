package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"parley/assistant/internal/api"
	"parley/assistant/internal/config"
	"parley/assistant/internal/floor"
	"parley/assistant/internal/health"
	"parley/assistant/internal/logging"
	"parley/assistant/internal/orchestrator"
	"parley/assistant/internal/realtime"
	"parley/assistant/internal/store"
	"parley/assistant/internal/tools"
	"parley/assistant/internal/workerws"
)

const (
	serviceName = "parley.assistant"

	realtimeQueueSize = 256
	// readiness fails once the outbound backlog passes this
	realtimeBacklog = realtimeQueueSize * 3 / 4
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if err := run(cfg, log); err != nil {
		log.Error("assistant stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal := store.New()
	toolbox := tools.NewRegistry()
	if err := tools.RegisterBuiltins(toolbox, log.Named("tools"), nil); err != nil {
		return err
	}
	log.Info("tools registered", zap.Strings("tools", toolbox.Names()))

	mode := floor.Local
	var td *realtime.TurnDetection
	if cfg.Realtime.ServerVAD {
		mode = floor.Server
		td = realtime.ServerVAD()
	}

	client, err := realtime.NewClient(ctx, realtime.Options{
		APIKey:          cfg.RealtimeKey(),
		AzureEndpoint:   cfg.Realtime.AzureEndpoint,
		AzureAPIVersion: cfg.Realtime.AzureAPIVersion,
		Model:           cfg.Realtime.Model,
		Voice:           cfg.Realtime.Voice,
		Instructions:    cfg.Realtime.Instructions,
		Temperature:     cfg.Realtime.Temperature,
		TurnDetection:   td,
		Tools:           toolbox.Definitions(),
		AutoReconnect:   cfg.Realtime.AutoReconnect,
		QueueSize:       realtimeQueueSize,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("realtime client: %w", err)
	}

	devices := workerws.NewRegistry()
	playback := workerws.NewPlayback(devices, 0, log)
	machine := orchestrator.New(orchestrator.Deps{
		Session:  client,
		Playback: playback,
		Tools:    toolbox,
		Journal:  journal,
		Logger:   log,
	}, orchestrator.Options{
		TurnDetection:      mode,
		SilenceTimeout:     cfg.Conversation.SilenceTimeout,
		Greeting:           cfg.Conversation.Greeting,
		MaxConcurrentTools: cfg.Tools.MaxConcurrent,
		ToolTimeout:        cfg.Tools.Timeout,
	})
	wss := workerws.NewServer(cfg, machine, playback, devices, journal, log)
	if cfg.Device.TokenSecret == "" {
		log.Warn("DEVICE_TOKEN_SECRET not set; device endpoint accepts unauthenticated connections")
	}

	probes := []health.Probe{
		health.Ready("realtime", client.Connected, "realtime session not connected"),
		health.Ready("realtime_backlog", func() bool { return client.QueueLen() < realtimeBacklog }, "realtime send queue backed up"),
		health.Ready("device", devices.Connected, "no capture device connected"),
	}
	h := api.NewHandlers(journal, machine, wss.HandleDeviceWS, probes...)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           logMiddleware(log.Named("http"), api.NewRouter(h)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// gRPC health service with keepalive for fast death detection
	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 2 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           10 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	g, gctx := errgroup.WithContext(ctx)
	client.Start()

	g.Go(func() error { return machine.Run(gctx) })
	g.Go(func() error { return machine.PumpRemote(gctx, client.Events()) })
	g.Go(func() error { return playback.Run(gctx) })
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.Stringer("turn_detection", machine.Mode()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		l, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.Info("grpc health listening", zap.String("addr", l.Addr().String()))
		return gs.Serve(l)
	})
	g.Go(func() error {
		watchHealth(gctx, hs, probes, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received; stopping")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		gs.GracefulStop()
		client.Close()
		return nil
	})
	return g.Wait()
}

// watchHealth mirrors the readiness probes into the gRPC health service.
func watchHealth(ctx context.Context, hs *grpchealth.Server, probes []health.Probe, log *zap.Logger) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		st := health.CheckAll(ctx, probes...)
		status := healthpb.HealthCheckResponse_SERVING
		if !st.OK {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status != last {
			log.Info("readiness changed", zap.String("status", status.String()), zap.Stringer("report", st))
			last = status
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(serviceName, status)
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
		}
	}
}

func logMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	})
}
