package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/qrdx-org/qrdx-trade/internal/api"
	"github.com/qrdx-org/qrdx-trade/internal/config"
	"github.com/qrdx-org/qrdx-trade/internal/controller"
	"github.com/qrdx-org/qrdx-trade/internal/netutil"
	"github.com/qrdx-org/qrdx-trade/internal/notify"
	"github.com/qrdx-org/qrdx-trade/internal/snapshot"
	"github.com/qrdx-org/qrdx-trade/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("chartd config loaded",
		"bind_addr", cfg.BindAddr,
		"surface", cfg.Surface,
		"surface_size", [2]int{cfg.SurfaceWidth, cfg.SurfaceHeight},
		"tick_interval", cfg.TickInterval,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"journal_dir", cfg.JournalDir,
		"snapshot_dir", cfg.SnapshotDir,
		"style_file", cfg.StyleFile,
		"notify_url", cfg.NotifyURL,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	styles, err := config.LoadStyles(cfg.StyleFile)
	if err != nil {
		slog.Error("failed to load line styles", "path", cfg.StyleFile, "error", err)
		os.Exit(1)
	}

	snapStore, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		slog.Error("failed to create snapshot store", "dir", cfg.SnapshotDir, "error", err)
		os.Exit(1)
	}

	surfaces, closeSurfaces, err := openSurfaces(context.Background(), cfg, bindAddr)
	if err != nil {
		slog.Error("failed to set up render surfaces", "surface", cfg.Surface, "error", err)
		os.Exit(1)
	}

	journal := storage.NewJournal(cfg.JournalDir, "chartd", 256, cfg.JournalMaxSizeMB)

	svc := controller.NewService(controller.Options{
		Surfaces:     surfaces,
		Styles:       &styles,
		Journal:      journal,
		Snapshots:    snapStore,
		TickInterval: cfg.TickInterval,
	})
	if err := svc.Start(); err != nil {
		slog.Error("failed to start live feed", "error", err)
		os.Exit(1)
	}

	notifyCtx, stopNotify := context.WithCancel(context.Background())
	defer stopNotify()
	if cfg.NotifyURL != "" {
		go notify.Forward(notifyCtx, svc.Broker(), &http.Client{Timeout: 5 * time.Second}, cfg.NotifyURL)
	}

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc)}

	go func() {
		slog.Info("chartd listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("chartd server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("chartd shutdown failed", "error", err)
	}
	stopNotify()
	svc.Close(ctx)
	closeSurfaces(ctx)
	if err := journal.Close(); err != nil {
		slog.Warn("journal close failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
