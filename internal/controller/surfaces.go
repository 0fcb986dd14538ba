package controller

import (
	"context"

	"github.com/qrdx-org/qrdx-trade/internal/cdpcontrol"
	"github.com/qrdx-org/qrdx-trade/internal/chart"
	"github.com/qrdx-org/qrdx-trade/internal/chart/memsurface"
)

// SurfaceFactory opens and releases the render surface of one chart.
type SurfaceFactory interface {
	Open(ctx context.Context, chartID string) (chart.Surface, error)
	// Release frees what Open allocated. The chart has already destroyed
	// its drawing by then.
	Release(ctx context.Context, chartID string, s chart.Surface) error
}

// screenshotter is implemented by surfaces that can render to an image.
type screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// resizable is implemented by surfaces whose container size is set
// directly.
type resizable interface {
	SetSize(width, height int)
}

// MemorySurfaces opens in-process surfaces of a fixed size.
type MemorySurfaces struct {
	Width  int
	Height int
}

func (f MemorySurfaces) Open(context.Context, string) (chart.Surface, error) {
	return memsurface.New(f.Width, f.Height), nil
}

func (MemorySurfaces) Release(context.Context, string, chart.Surface) error { return nil }

// BrowserSurfaces opens one Chromium tab per chart.
type BrowserSurfaces struct {
	Client *cdpcontrol.Client
	Width  int
	Height int
}

func (f BrowserSurfaces) Open(ctx context.Context, chartID string) (chart.Surface, error) {
	s, err := f.Client.NewSurface(ctx, chartID, f.Width, f.Height)
	if err != nil {
		return nil, chart.NewError(chart.CodeSurfaceFailure, "open browser surface", err)
	}
	return s, nil
}

func (f BrowserSurfaces) Release(ctx context.Context, _ string, s chart.Surface) error {
	bs, ok := s.(*cdpcontrol.Surface)
	if !ok {
		return nil
	}
	return bs.Close(ctx)
}
