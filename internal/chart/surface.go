package chart

import (
	"context"
	"fmt"
	"log/slog"
)

// SeriesID identifies a data series on a surface.
type SeriesID string

// PrimitiveID identifies a drawn price line on a surface.
type PrimitiveID string

// PriceScale selects the axis a series is measured against.
type PriceScale string

const (
	ScaleRight PriceScale = "right"
	ScaleLeft  PriceScale = "left"
)

// SurfaceOptions configure a freshly created surface.
type SurfaceOptions struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	LeftScale bool   `json:"left_scale"`
	Watermark string `json:"watermark,omitempty"`
}

// SeriesSpec describes a series to add to a surface.
type SeriesSpec struct {
	Type        ChartType  `json:"type"`
	Scale       PriceScale `json:"scale"`
	Title       string     `json:"title,omitempty"`
	Color       string     `json:"color,omitempty"`
	UpColor     string     `json:"up_color,omitempty"`
	DownColor   string     `json:"down_color,omitempty"`
	TopColor    string     `json:"top_color,omitempty"`
	BottomColor string     `json:"bottom_color,omitempty"`
	LineWidth   int        `json:"line_width,omitempty"`
}

// Point is a single value of a close-only series.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// PriceLine is a horizontal line request.
type PriceLine struct {
	Price float64 `json:"price"`
	LineStyle
}

// Surface is a chart rendering backend. Implementations own the canvas and
// the series; SurfaceManager is the only caller.
type Surface interface {
	// Size reports the container size. Zero means not yet laid out.
	Size(ctx context.Context) (width, height int, err error)
	Create(ctx context.Context, opts SurfaceOptions) error
	AddSeries(ctx context.Context, spec SeriesSpec) (SeriesID, error)
	SetBars(ctx context.Context, series SeriesID, bars []Bar) error
	SetPoints(ctx context.Context, series SeriesID, points []Point) error
	UpdateBar(ctx context.Context, series SeriesID, bar Bar) error
	UpdatePoint(ctx context.Context, series SeriesID, point Point) error
	FitContent(ctx context.Context) error
	CreatePriceLine(ctx context.Context, series SeriesID, line PriceLine) (PrimitiveID, error)
	RemovePriceLine(ctx context.Context, series SeriesID, id PrimitiveID) error
	// CoordinateToPrice returns ok=false when y is outside the rendered range.
	CoordinateToPrice(ctx context.Context, series SeriesID, y float64) (price float64, ok bool, err error)
	PriceToCoordinate(ctx context.Context, series SeriesID, price float64) (y float64, ok bool, err error)
	Destroy(ctx context.Context) error
}

// Handle is an opaque reference to a drawn primitive. It is tied to the
// surface generation it was drawn on.
type Handle struct {
	gen    uint64
	series SeriesID
	id     PrimitiveID
}

// Drawn reports whether the handle refers to a primitive at all.
func (h Handle) Drawn() bool { return h.id != "" }

// RenderRequest is everything a rebuild needs.
type RenderRequest struct {
	Bars           []Bar
	ChartType      ChartType
	OverlayVisible bool
	ReferencePrice float64
	Watermark      string
}

const (
	overlaySupply   = 1_000_000
	watermarkText   = "QRDX"
	overlayColor    = "#f59e0b"
	primaryLineTint = "#9333ea"
)

// SurfaceManager owns the surface lifecycle and every primitive drawn on it.
type SurfaceManager struct {
	surface   Surface
	gen       uint64
	live      bool
	primary   SeriesID
	overlay   SeriesID
	chartType ChartType
	ref       float64
	hasData   bool
	height    int
	prims     map[PrimitiveID]Handle
	deferred  *RenderRequest
	replayers []func(ctx context.Context) error
}

// NewSurfaceManager wraps s. Nothing is drawn until the first Rebuild.
func NewSurfaceManager(s Surface) *SurfaceManager {
	return &SurfaceManager{surface: s, prims: make(map[PrimitiveID]Handle)}
}

// OnRebuild registers fn to redraw owned primitives after every rebuild.
// Replayers run in registration order.
func (m *SurfaceManager) OnRebuild(fn func(ctx context.Context) error) {
	m.replayers = append(m.replayers, fn)
}

// Live reports whether a surface currently exists.
func (m *SurfaceManager) Live() bool { return m.live }

// HasData reports whether the primary series has at least one bar.
func (m *SurfaceManager) HasData() bool { return m.live && m.hasData }

// Height is the container height the live surface was laid out with.
func (m *SurfaceManager) Height() int { return m.height }

// PrimitiveCount returns the number of primitives drawn on the live surface.
func (m *SurfaceManager) PrimitiveCount() int { return len(m.prims) }

// Rebuild tears down the current surface and renders req on a new one.
// It returns false without error when the container has no size yet; the
// request is kept and completed by the next Resize.
func (m *SurfaceManager) Rebuild(ctx context.Context, req RenderRequest) (bool, error) {
	if err := m.teardown(ctx); err != nil {
		return false, err
	}

	w, h, err := m.surface.Size(ctx)
	if err != nil {
		return false, NewError(CodeSurfaceFailure, "read container size", err)
	}
	if w <= 0 || h <= 0 {
		slog.Debug("chart surface creation deferred", "width", w, "height", h)
		r := req
		m.deferred = &r
		return false, nil
	}
	m.deferred = nil

	if err := m.surface.Create(ctx, SurfaceOptions{Width: w, Height: h, LeftScale: req.OverlayVisible, Watermark: req.Watermark}); err != nil {
		return false, NewError(CodeSurfaceFailure, "create surface", err)
	}
	m.gen++
	m.height = h
	m.chartType = req.ChartType
	m.ref = req.ReferencePrice
	if err := m.populate(ctx, req.Bars, req.OverlayVisible); err != nil {
		m.primary, m.overlay, m.hasData = "", "", false
		if derr := m.surface.Destroy(ctx); derr != nil {
			slog.Debug("chart partial surface destroy failed", "error", derr)
		}
		return false, err
	}
	m.live = true

	if err := m.surface.FitContent(ctx); err != nil {
		slog.Debug("chart fit content failed", "error", err)
	}

	for _, replay := range m.replayers {
		if err := replay(ctx); err != nil {
			return true, fmt.Errorf("replay order lines: %w", err)
		}
	}
	slog.Debug("chart surface rebuilt", "generation", m.gen, "chart_type", req.ChartType, "bars", len(req.Bars), "primitives", len(m.prims))
	return true, nil
}

// Resize completes a deferred rebuild once the container has a size. A live
// surface only picks up the new height.
func (m *SurfaceManager) Resize(ctx context.Context) (bool, error) {
	if m.deferred == nil {
		if m.live {
			_, h, err := m.surface.Size(ctx)
			if err != nil {
				return true, NewError(CodeSurfaceFailure, "read container size", err)
			}
			m.height = h
		}
		return m.live, nil
	}
	return m.Rebuild(ctx, *m.deferred)
}

// Destroy removes every primitive and the surface itself.
func (m *SurfaceManager) Destroy(ctx context.Context) error {
	m.deferred = nil
	return m.teardown(ctx)
}

// AddPrimitive draws a price line on the primary series. Without a live
// surface it draws nothing and returns an empty handle; the owner redraws
// on the next rebuild.
func (m *SurfaceManager) AddPrimitive(ctx context.Context, style LineStyle, price float64) (Handle, error) {
	if !m.live {
		return Handle{}, nil
	}
	id, err := m.surface.CreatePriceLine(ctx, m.primary, PriceLine{Price: price, LineStyle: style})
	if err != nil {
		return Handle{}, NewError(CodeSurfaceFailure, "create price line", err)
	}
	h := Handle{gen: m.gen, series: m.primary, id: id}
	m.prims[id] = h
	return h, nil
}

// RemovePrimitive erases h. Handles from an earlier surface generation are
// already gone and are ignored.
func (m *SurfaceManager) RemovePrimitive(ctx context.Context, h Handle) error {
	if !h.Drawn() {
		return nil
	}
	if !m.live || h.gen != m.gen {
		slog.Debug("chart stale primitive ignored", "primitive", h.id, "handle_generation", h.gen, "generation", m.gen)
		return nil
	}
	if _, ok := m.prims[h.id]; !ok {
		return nil
	}
	delete(m.prims, h.id)
	if err := m.surface.RemovePriceLine(ctx, h.series, h.id); err != nil {
		return NewError(CodeSurfaceFailure, "remove price line", err)
	}
	return nil
}

// UpdateLastBar pushes a live tick without rebuilding.
func (m *SurfaceManager) UpdateLastBar(ctx context.Context, b Bar) error {
	if !m.live {
		return nil
	}
	var err error
	if m.chartType.closeOnly() {
		err = m.surface.UpdatePoint(ctx, m.primary, Point{Time: b.Time, Value: b.Close})
	} else {
		err = m.surface.UpdateBar(ctx, m.primary, b)
	}
	if err != nil {
		return NewError(CodeSurfaceFailure, "update primary series", err)
	}
	m.hasData = true
	if m.overlay != "" {
		if err := m.surface.UpdatePoint(ctx, m.overlay, Point{Time: b.Time, Value: m.marketCap(b.Close)}); err != nil {
			return NewError(CodeSurfaceFailure, "update overlay series", err)
		}
	}
	return nil
}

// SetSeries replaces the primary and overlay data, for when the series window
// has shifted and a single-bar update cannot express the change.
func (m *SurfaceManager) SetSeries(ctx context.Context, bars []Bar) error {
	if !m.live {
		return nil
	}
	if err := m.setPrimaryData(ctx, bars); err != nil {
		return err
	}
	m.hasData = len(bars) > 0
	if m.overlay != "" {
		return m.setOverlayData(ctx, bars)
	}
	return nil
}

// populate adds the series of a freshly created surface and loads bars.
func (m *SurfaceManager) populate(ctx context.Context, bars []Bar, overlay bool) error {
	primary, err := m.surface.AddSeries(ctx, primarySpec(m.chartType))
	if err != nil {
		return NewError(CodeSurfaceFailure, "add primary series", err)
	}
	m.primary = primary
	if err := m.setPrimaryData(ctx, bars); err != nil {
		return err
	}
	m.hasData = len(bars) > 0

	m.overlay = ""
	if !overlay {
		return nil
	}
	id, err := m.surface.AddSeries(ctx, SeriesSpec{Type: ChartLine, Scale: ScaleLeft, Title: "Market Cap", Color: overlayColor, LineWidth: 2})
	if err != nil {
		return NewError(CodeSurfaceFailure, "add overlay series", err)
	}
	m.overlay = id
	return m.setOverlayData(ctx, bars)
}

func (m *SurfaceManager) teardown(ctx context.Context) error {
	if !m.live {
		return nil
	}
	for id, h := range m.prims {
		if err := m.surface.RemovePriceLine(ctx, h.series, id); err != nil {
			slog.Debug("chart primitive teardown failed", "primitive", id, "error", err)
		}
		delete(m.prims, id)
	}
	m.live = false
	m.hasData = false
	m.primary = ""
	m.overlay = ""
	if err := m.surface.Destroy(ctx); err != nil {
		return NewError(CodeSurfaceFailure, "destroy surface", err)
	}
	return nil
}

func (m *SurfaceManager) setPrimaryData(ctx context.Context, bars []Bar) error {
	var err error
	if m.chartType.closeOnly() {
		points := make([]Point, len(bars))
		for i, b := range bars {
			points[i] = Point{Time: b.Time, Value: b.Close}
		}
		err = m.surface.SetPoints(ctx, m.primary, points)
	} else {
		err = m.surface.SetBars(ctx, m.primary, bars)
	}
	if err != nil {
		return NewError(CodeSurfaceFailure, "set primary data", err)
	}
	return nil
}

func (m *SurfaceManager) setOverlayData(ctx context.Context, bars []Bar) error {
	points := make([]Point, len(bars))
	for i, b := range bars {
		points[i] = Point{Time: b.Time, Value: m.marketCap(b.Close)}
	}
	if err := m.surface.SetPoints(ctx, m.overlay, points); err != nil {
		return NewError(CodeSurfaceFailure, "set overlay data", err)
	}
	return nil
}

// marketCap restates a close as market cap against a fixed supply.
func (m *SurfaceManager) marketCap(closePx float64) float64 {
	if m.ref <= 0 {
		return 0
	}
	return m.ref * overlaySupply * (closePx / m.ref)
}

func primarySpec(t ChartType) SeriesSpec {
	switch t {
	case ChartLine:
		return SeriesSpec{Type: ChartLine, Scale: ScaleRight, Color: primaryLineTint, LineWidth: 2}
	case ChartArea:
		return SeriesSpec{Type: ChartArea, Scale: ScaleRight, Color: primaryLineTint, TopColor: "rgba(147, 51, 234, 0.4)", BottomColor: "rgba(147, 51, 234, 0.0)", LineWidth: 2}
	case ChartBar:
		return SeriesSpec{Type: ChartBar, Scale: ScaleRight, UpColor: "#22c55e", DownColor: "#ef4444"}
	default:
		return SeriesSpec{Type: ChartCandlestick, Scale: ScaleRight, UpColor: "#22c55e", DownColor: "#ef4444"}
	}
}
