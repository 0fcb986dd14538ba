package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/qrdx-org/qrdx-trade/internal/browser"
	"github.com/qrdx-org/qrdx-trade/internal/cdpcontrol"
	"github.com/qrdx-org/qrdx-trade/internal/config"
	"github.com/qrdx-org/qrdx-trade/internal/controller"
)

// openSurfaces builds the surface factory cfg selects. The returned func
// releases whatever the factory holds.
func openSurfaces(ctx context.Context, cfg *config.Config, bindAddr string) (controller.SurfaceFactory, func(context.Context), error) {
	if cfg.Surface == config.SurfaceMemory {
		return controller.MemorySurfaces{Width: cfg.SurfaceWidth, Height: cfg.SurfaceHeight}, func(context.Context) {}, nil
	}

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			Headless:   cfg.BrowserHeadless,
			WindowSize: strconv.Itoa(cfg.SurfaceWidth) + "," + strconv.Itoa(cfg.SurfaceHeight),
		})
		if err := launcher.Launch(ctx); err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}
	}
	stopLauncher := func() {
		if launcher != nil && launcher.Running() {
			launcher.Stop()
		}
	}

	pages, err := browser.Probe(ctx, cfg.CDPURL())
	if err != nil {
		stopLauncher()
		return nil, nil, fmt.Errorf("probe browser: %w", err)
	}
	slog.Info("browser attached", "cdp_url", cfg.CDPURL(), "pages", pages)

	client := cdpcontrol.NewClient(cfg.CDPURL(), "http://"+bindAddr+"/surface", cfg.EvalTimeout())
	if err := client.Connect(ctx); err != nil {
		stopLauncher()
		return nil, nil, fmt.Errorf("connect CDP: %w", err)
	}

	cleanup := func(ctx context.Context) {
		// Every chart is closed by now; anything still listed leaked.
		leaked, err := client.ListSurfaces(ctx)
		if err != nil {
			slog.Debug("surface listing failed", "error", err)
		}
		for _, s := range leaked {
			slog.Warn("closing leaked surface tab", "chart_id", s.ChartID, "target_id", s.TargetID)
			if err := client.CloseSurface(ctx, s.ChartID); err != nil {
				slog.Debug("leaked surface close failed", "chart_id", s.ChartID, "error", err)
			}
		}
		if err := client.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
		stopLauncher()
	}
	return controller.BrowserSurfaces{Client: client, Width: cfg.SurfaceWidth, Height: cfg.SurfaceHeight}, cleanup, nil
}
