// openbadge bridges a push-to-talk badge to a paired phone over HFP and
// AVRCP, and serves its status over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openbadge/bridge/internal/config"
	"github.com/openbadge/bridge/internal/control"
	"github.com/openbadge/bridge/internal/orchestrator"
	"github.com/openbadge/bridge/internal/orchestrator/logbook"
	"github.com/openbadge/bridge/internal/server"
	"github.com/openbadge/bridge/internal/transport"
	"github.com/openbadge/bridge/internal/transport/bluez"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	book := logbook.New(cfg.LogBufferSize, orchestrator.LogbookEventBuffer)

	b, err := openBoard(cfg, book)
	if err != nil {
		slog.Error("board unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = b.Close() }()

	var tr transport.Transport
	if cfg.Simulate {
		slog.Info("using simulated phone", "peer", transport.SimulatedPeer)
		tr = transport.NewSimulator(transport.DefaultSimulatorConfig())
	} else {
		tr = bluez.New(bluez.Config{
			Adapter:    cfg.Adapter,
			DeviceName: cfg.DeviceName,
			PIN:        cfg.PairingPIN,
		}, logger)
	}

	orch := orchestrator.New(tr, b, book, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(orch)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	grpcServer := control.NewGRPCServer(orch)
	lis, err := net.Listen("tcp", cfg.ControlAddr)
	if err != nil {
		slog.Error("control listener failed", "addr", cfg.ControlAddr, "error", err)
	} else {
		go func() {
			slog.Info("control server starting", "addr", cfg.ControlAddr)
			if err := grpcServer.Serve(lis); err != nil {
				slog.Error("control server error", "error", err)
			}
		}()
	}

	// Bring-up retries for a while; the status surfaces are already up so a
	// transport that never comes up shows as a disconnected badge.
	if err := orch.Start(ctx); err != nil {
		slog.Error("orchestrator started without transport", "error", err)
	}

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	srv.Close()
	grpcServer.GracefulStop()

	orch.Stop()
	slog.Info("shutdown complete")
}
