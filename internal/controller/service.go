package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
	"github.com/qrdx-org/qrdx-trade/internal/relay"
	"github.com/qrdx-org/qrdx-trade/internal/snapshot"
	"github.com/qrdx-org/qrdx-trade/internal/storage"
)

const (
	CodeSnapshotNotFound = "SNAPSHOT_NOT_FOUND"

	tickBudget = 2 * time.Second
)

// Event types published on the broker.
const (
	EventChartCreated      = "chart_created"
	EventChartClosed       = "chart_closed"
	EventParamsChanged     = "params_changed"
	EventBar               = "bar"
	EventOrderConfirmed    = "order_confirmed"
	EventLineDragCommitted = "line_drag_committed"
	EventShared            = "chart_shared"
)

// BarEvent is the payload of a live tick.
type BarEvent struct {
	ChartID string    `json:"chart_id"`
	Bar     chart.Bar `json:"bar"`
}

// ShareInfo is returned when a chart enters share mode.
type ShareInfo struct {
	ChartID  string                 `json:"chart_id"`
	ShareURL string                 `json:"share_url"`
	EmbedURL string                 `json:"embed_url"`
	Snapshot *snapshot.SnapshotMeta `json:"snapshot,omitempty"`
}

// Options wire a Service.
type Options struct {
	Surfaces  SurfaceFactory
	Styles    *chart.StyleSet
	Broker    *relay.Broker
	Journal   *storage.Journal
	Snapshots *snapshot.Store
	// ShareBase is the public page shared charts link to.
	ShareBase    string
	TickInterval time.Duration
	// NewGenerator returns the bar generator of a new chart. Defaults to a
	// clock-seeded one.
	NewGenerator func() *chart.Generator
	Now          func() time.Time
}

type entry struct {
	id      string
	inst    *chart.Instance
	window  *chart.Window
	surface chart.Surface
	created time.Time
}

// Service owns every chart instance of the process.
type Service struct {
	opts Options
	now  func() time.Time
	cron *cron.Cron

	mu     sync.RWMutex
	charts map[string]*entry
}

func NewService(opts Options) *Service {
	if opts.Surfaces == nil {
		opts.Surfaces = MemorySurfaces{Width: 1200, Height: 600}
	}
	if opts.Broker == nil {
		opts.Broker = relay.NewBroker()
	}
	if opts.NewGenerator == nil {
		opts.NewGenerator = func() *chart.Generator { return chart.NewGenerator(nil) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ShareBase == "" {
		opts.ShareBase = "https://trade.qrdx.org"
	}
	return &Service{
		opts:   opts,
		now:    opts.Now,
		cron:   newCron(),
		charts: make(map[string]*entry),
	}
}

// Broker returns the event broker the service publishes on.
func (s *Service) Broker() *relay.Broker { return s.opts.Broker }

// Start schedules the live feed. A zero TickInterval disables it.
func (s *Service) Start() error {
	if s.opts.TickInterval <= 0 {
		return nil
	}
	return s.startTicker(s.opts.TickInterval)
}

// Close stops the live feed and closes every chart.
func (s *Service) Close(ctx context.Context) {
	if s.opts.TickInterval > 0 {
		s.stopTicker()
	}
	for _, e := range s.snapshotCharts() {
		if err := s.CloseChart(ctx, e.id); err != nil {
			slog.Warn("chart close on shutdown failed", "chart_id", e.id, "error", err)
		}
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &chart.CodedError{Code: chart.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) lookup(id string) (*entry, error) {
	id = strings.TrimSpace(id)
	if err := s.requireNonEmpty(id, "chart_id"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e := s.charts[id]
	s.mu.RUnlock()
	if e == nil {
		return nil, &chart.CodedError{Code: chart.CodeChartNotFound, Message: "chart not found: " + id}
	}
	return e, nil
}

func (s *Service) snapshotCharts() []*entry {
	s.mu.RLock()
	out := make([]*entry, 0, len(s.charts))
	for _, e := range s.charts {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].created.Equal(out[j].created) {
			return out[i].id < out[j].id
		}
		return out[i].created.Before(out[j].created)
	})
	return out
}

func (s *Service) publish(typ, chartID string, payload any) {
	if err := s.opts.Broker.PublishJSON(typ, chartID, payload); err != nil {
		slog.Warn("event publish failed", "type", typ, "chart_id", chartID, "error", err)
	}
}

func (s *Service) journal(stream, typ, chartID string, data any) {
	if s.opts.Journal == nil {
		return
	}
	s.opts.Journal.Record(stream, typ, chartID, data)
}

func (s *Service) callbacks() chart.Callbacks {
	confirmed := func(c chart.OrderConfirmation) {
		slog.Info("order confirmed", "chart_id", c.ChartID, "side", c.Side, "price", c.Price)
		s.journal(storage.StreamOrders, EventOrderConfirmed, c.ChartID, c)
		s.publish(EventOrderConfirmed, c.ChartID, c)
	}
	return chart.Callbacks{
		BuyConfirmed:  confirmed,
		SellConfirmed: confirmed,
		LineDragCommitted: func(c chart.LineDragCommit) {
			slog.Debug("line drag committed", "chart_id", c.ChartID, "line_id", c.LineID, "price", c.Price)
			s.journal(storage.StreamDrags, EventLineDragCommitted, c.ChartID, c)
			s.publish(EventLineDragCommitted, c.ChartID, c)
		},
	}
}

// CreateChart opens a surface and renders a new chart for params.
func (s *Service) CreateChart(ctx context.Context, params chart.Params) (chart.State, error) {
	params.Symbol = strings.TrimSpace(params.Symbol)
	if err := s.requireNonEmpty(params.Symbol, "symbol"); err != nil {
		return chart.State{}, err
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return chart.State{}, err
	}

	id := uuid.NewString()
	surface, err := s.opts.Surfaces.Open(ctx, id)
	if err != nil {
		return chart.State{}, err
	}
	window := chart.NewWindow()
	inst, err := chart.NewInstance(ctx, chart.InstanceConfig{
		ID:        id,
		Surface:   surface,
		Window:    window,
		Callbacks: s.callbacks(),
		Generator: s.opts.NewGenerator(),
		Styles:    s.opts.Styles,
		Now:       s.now,
	}, params)
	if err != nil {
		if relErr := s.opts.Surfaces.Release(ctx, id, surface); relErr != nil {
			slog.Debug("surface release after failed create", "chart_id", id, "error", relErr)
		}
		return chart.State{}, err
	}

	s.mu.Lock()
	s.charts[id] = &entry{id: id, inst: inst, window: window, surface: surface, created: s.now()}
	s.mu.Unlock()

	st, err := inst.State()
	if err != nil {
		return chart.State{}, err
	}
	slog.Info("chart created", "chart_id", id, "symbol", params.Symbol, "timeframe", params.Timeframe, "chart_type", params.ChartType)
	s.journal(storage.StreamCharts, EventChartCreated, id, params)
	s.publish(EventChartCreated, id, st)
	return st, nil
}

// ListCharts returns the state of every open chart, oldest first.
func (s *Service) ListCharts() []chart.State {
	entries := s.snapshotCharts()
	out := make([]chart.State, 0, len(entries))
	for _, e := range entries {
		st, err := e.inst.State()
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

func (s *Service) GetChart(id string) (chart.State, error) {
	e, err := s.lookup(id)
	if err != nil {
		return chart.State{}, err
	}
	return e.inst.State()
}

// CloseChart destroys the chart and releases its surface.
func (s *Service) CloseChart(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.requireNonEmpty(id, "chart_id"); err != nil {
		return err
	}
	s.mu.Lock()
	e := s.charts[id]
	delete(s.charts, id)
	s.mu.Unlock()
	if e == nil {
		return &chart.CodedError{Code: chart.CodeChartNotFound, Message: "chart not found: " + id}
	}

	closeErr := e.inst.Close(ctx)
	if err := s.opts.Surfaces.Release(ctx, e.id, e.surface); err != nil {
		slog.Warn("surface release failed", "chart_id", e.id, "error", err)
	}
	slog.Info("chart closed", "chart_id", e.id)
	s.journal(storage.StreamCharts, EventChartClosed, e.id, nil)
	s.publish(EventChartClosed, e.id, map[string]string{"chart_id": e.id})
	return closeErr
}

// SetParams applies new display parameters and returns the new state.
func (s *Service) SetParams(ctx context.Context, id string, params chart.Params) (chart.State, error) {
	e, err := s.lookup(id)
	if err != nil {
		return chart.State{}, err
	}
	params.Symbol = strings.TrimSpace(params.Symbol)
	if err := s.requireNonEmpty(params.Symbol, "symbol"); err != nil {
		return chart.State{}, err
	}
	if err := e.inst.SetParams(ctx, params); err != nil {
		return chart.State{}, err
	}
	st, err := e.inst.State()
	if err != nil {
		return chart.State{}, err
	}
	s.publish(EventParamsChanged, e.id, st.Params)
	return st, nil
}

func (s *Service) Bars(id string) ([]chart.Bar, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.inst.Bars()
}

// Resize sets the container size of a chart whose surface supports it and
// completes any deferred rebuild.
func (s *Service) Resize(ctx context.Context, id string, width, height int) (chart.State, error) {
	e, err := s.lookup(id)
	if err != nil {
		return chart.State{}, err
	}
	if width < 0 || height < 0 {
		return chart.State{}, chart.NewError(chart.CodeValidation, "width and height must not be negative", nil)
	}
	if rs, ok := e.surface.(resizable); ok {
		rs.SetSize(width, height)
	}
	if err := e.inst.Resize(ctx); err != nil {
		return chart.State{}, err
	}
	return e.inst.State()
}

func (s *Service) ToggleMode(id string, mode chart.DrawingMode) (chart.DrawingMode, error) {
	e, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return e.inst.ToggleMode(mode)
}

// Click is a canvas press at row y. It returns the id of the placed line or
// "" when nothing was placed.
func (s *Service) Click(ctx context.Context, id string, y float64) (string, error) {
	e, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return e.inst.Click(ctx, y)
}

func (s *Service) BeginDrag(id, lineID string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := s.requireNonEmpty(lineID, "line_id"); err != nil {
		return err
	}
	return e.inst.BeginDrag(strings.TrimSpace(lineID))
}

// PointerMove delivers a window pointer move to the chart's listeners.
func (s *Service) PointerMove(ctx context.Context, id string, y float64) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.window.DispatchMove(ctx, y)
	return nil
}

// PointerUp delivers a window pointer release to the chart's listeners.
func (s *Service) PointerUp(ctx context.Context, id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.window.DispatchUp(ctx)
	return nil
}

func (s *Service) PriceToPixel(ctx context.Context, id string, price float64) (float64, bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return 0, false, err
	}
	return e.inst.PriceToPixel(ctx, price)
}

func (s *Service) AddLine(ctx context.Context, id string, kind chart.LineKind, price float64) (string, error) {
	e, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return e.inst.AddLine(ctx, kind, price)
}

func (s *Service) SetLinePrice(ctx context.Context, id, lineID string, price float64) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.inst.SetLinePrice(ctx, strings.TrimSpace(lineID), price)
}

func (s *Service) RemoveLine(ctx context.Context, id, lineID string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.inst.RemoveLine(ctx, strings.TrimSpace(lineID))
}

func (s *Service) ClearLines(ctx context.Context, id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.inst.ClearAll(ctx)
}

func (s *Service) AddStopLoss(ctx context.Context, id string) (string, error) {
	e, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return e.inst.AddStopLoss(ctx)
}

func (s *Service) AddTakeProfit(ctx context.Context, id string) (string, error) {
	e, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return e.inst.AddTakeProfit(ctx)
}

// ConfirmOrder confirms the pending order. The callbacks publish and
// journal it before this returns.
func (s *Service) ConfirmOrder(ctx context.Context, id string) (*chart.OrderConfirmation, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.inst.ConfirmOrder(ctx)
}

// SetExternal mirrors the order-entry panel limit prices.
func (s *Service) SetExternal(ctx context.Context, id string, buy, sell *float64) (chart.State, error) {
	e, err := s.lookup(id)
	if err != nil {
		return chart.State{}, err
	}
	if err := e.inst.SetExternalLimits(ctx, buy, sell); err != nil {
		return chart.State{}, err
	}
	return e.inst.State()
}

// Share turns on share mode (watermark) and returns the share links. With a
// snapshot store and an image-capable surface it also stores a snapshot.
func (s *Service) Share(ctx context.Context, id string) (ShareInfo, error) {
	e, err := s.lookup(id)
	if err != nil {
		return ShareInfo{}, err
	}
	st, err := e.inst.State()
	if err != nil {
		return ShareInfo{}, err
	}
	if !st.Params.Share {
		p := st.Params
		p.Share = true
		if err := e.inst.SetParams(ctx, p); err != nil {
			return ShareInfo{}, err
		}
		st.Params = p
	}
	info := ShareInfo{
		ChartID:  e.id,
		ShareURL: s.shareURL(e.id, st.Params),
		EmbedURL: strings.TrimRight(s.opts.ShareBase, "/") + "/embed/" + url.PathEscape(e.id),
	}
	if _, ok := e.surface.(screenshotter); ok && s.opts.Snapshots != nil {
		meta, err := s.TakeSnapshot(ctx, e.id)
		if err != nil {
			slog.Warn("share snapshot failed", "chart_id", e.id, "error", err)
		} else {
			info.Snapshot = &meta
		}
	}
	s.publish(EventShared, e.id, info)
	return info, nil
}

func (s *Service) shareURL(id string, p chart.Params) string {
	q := url.Values{}
	q.Set("chart", id)
	q.Set("symbol", p.Symbol)
	q.Set("tf", string(p.Timeframe))
	q.Set("type", string(p.ChartType))
	return strings.TrimRight(s.opts.ShareBase, "/") + "/share?" + q.Encode()
}

// TakeSnapshot captures the chart surface into the snapshot store.
func (s *Service) TakeSnapshot(ctx context.Context, id string) (snapshot.SnapshotMeta, error) {
	e, err := s.lookup(id)
	if err != nil {
		return snapshot.SnapshotMeta{}, err
	}
	if s.opts.Snapshots == nil {
		return snapshot.SnapshotMeta{}, &chart.CodedError{Code: chart.CodeAPIUnavailable, Message: "snapshot store not configured"}
	}
	shooter, ok := e.surface.(screenshotter)
	if !ok {
		return snapshot.SnapshotMeta{}, &chart.CodedError{Code: chart.CodeAPIUnavailable, Message: "surface cannot capture images"}
	}
	st, err := e.inst.State()
	if err != nil {
		return snapshot.SnapshotMeta{}, err
	}
	img, err := shooter.Screenshot(ctx)
	if err != nil {
		return snapshot.SnapshotMeta{}, chart.NewError(chart.CodeSurfaceFailure, "capture surface", err)
	}
	w, h, err := e.surface.Size(ctx)
	if err != nil {
		slog.Debug("snapshot size unavailable", "chart_id", e.id, "error", err)
	}
	meta := snapshot.SnapshotMeta{
		ID:             snapshot.NewID(),
		ChartID:        e.id,
		Format:         "png",
		Width:          w,
		Height:         h,
		CreatedAt:      s.now().UTC(),
		Symbol:         st.Params.Symbol,
		Timeframe:      string(st.Params.Timeframe),
		ChartType:      string(st.Params.ChartType),
		ReferencePrice: st.Params.ReferencePrice,
		ShareURL:       s.shareURL(e.id, st.Params),
	}
	if err := s.opts.Snapshots.Save(meta, img); err != nil {
		return snapshot.SnapshotMeta{}, chart.NewError(chart.CodeSurfaceFailure, fmt.Sprintf("save snapshot: %v", err), nil)
	}
	meta.SizeBytes = len(img)
	slog.Info("snapshot saved", "chart_id", e.id, "snapshot_id", meta.ID, "bytes", meta.SizeBytes)
	return meta, nil
}

func (s *Service) snapshots() (*snapshot.Store, error) {
	if s.opts.Snapshots == nil {
		return nil, &chart.CodedError{Code: chart.CodeAPIUnavailable, Message: "snapshot store not configured"}
	}
	return s.opts.Snapshots, nil
}

func snapshotErr(err error) error {
	if errors.Is(err, snapshot.ErrNotFound) {
		return &chart.CodedError{Code: CodeSnapshotNotFound, Message: err.Error()}
	}
	return &chart.CodedError{Code: chart.CodeValidation, Message: err.Error()}
}

func (s *Service) ListSnapshots(chartID string) ([]snapshot.SnapshotMeta, error) {
	store, err := s.snapshots()
	if err != nil {
		return nil, err
	}
	return store.List(strings.TrimSpace(chartID))
}

func (s *Service) GetSnapshot(id string) (snapshot.SnapshotMeta, error) {
	store, err := s.snapshots()
	if err != nil {
		return snapshot.SnapshotMeta{}, err
	}
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return snapshot.SnapshotMeta{}, err
	}
	meta, err := store.Get(strings.TrimSpace(id))
	if err != nil {
		return snapshot.SnapshotMeta{}, snapshotErr(err)
	}
	return meta, nil
}

func (s *Service) ReadSnapshotImage(id string) ([]byte, string, error) {
	store, err := s.snapshots()
	if err != nil {
		return nil, "", err
	}
	data, format, err := store.ReadImage(strings.TrimSpace(id))
	if err != nil {
		return nil, "", snapshotErr(err)
	}
	return data, format, nil
}

func (s *Service) DeleteSnapshot(id string) error {
	store, err := s.snapshots()
	if err != nil {
		return err
	}
	if err := store.Delete(strings.TrimSpace(id)); err != nil {
		return snapshotErr(err)
	}
	return nil
}
