package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	stopLossOffset   = 0.03
	takeProfitOffset = 0.05
	statsBand        = 0.05
)

// OrderConfirmation is the payload of a confirmed order.
type OrderConfirmation struct {
	ChartID    string   `json:"chart_id"`
	Side       string   `json:"side"`
	Price      float64  `json:"price"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

// LineDragCommit is the payload sent when a dragged line is released.
type LineDragCommit struct {
	ChartID     string   `json:"chart_id"`
	LineID      string   `json:"line_id"`
	Kind        LineKind `json:"kind"`
	Price       float64  `json:"price"`
	OriginPrice float64  `json:"origin_price"`
}

// Callbacks are the outbound notifications of an instance. They run after
// the instance lock is released, in the order they were raised. Nil fields
// are skipped.
type Callbacks struct {
	BuyConfirmed      func(OrderConfirmation)
	SellConfirmed     func(OrderConfirmation)
	LineDragCommitted func(LineDragCommit)
}

// InstanceConfig wires an Instance to its collaborators.
type InstanceConfig struct {
	ID        string
	Surface   Surface
	Window    *Window
	Callbacks Callbacks
	Generator *Generator
	Styles    *StyleSet
	Now       func() time.Time
}

// Instance is one chart with its order overlay. All methods are safe for
// concurrent use and are applied one at a time.
type Instance struct {
	id       string
	cb       Callbacks
	gen      *Generator
	now      func() time.Time
	window   *Window
	unlisten []func()
	manager  *SurfaceManager
	mapper   *Mapper
	registry *Registry
	modes    *DrawingModes
	drag     *DragController
	external *ExternalSync
	mu       sync.Mutex
	params   Params
	series   *Series
	rendered bool
	closed   bool
	outbox   []func()
}

// NewInstance generates the initial series for params and renders it.
func NewInstance(ctx context.Context, cfg InstanceConfig, params Params) (*Instance, error) {
	if cfg.Surface == nil {
		return nil, NewError(CodeValidation, "surface is required", nil)
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	styles := DefaultStyles()
	if cfg.Styles != nil {
		styles = *cfg.Styles
	}
	if cfg.Generator == nil {
		cfg.Generator = NewGenerator(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Window == nil {
		cfg.Window = NewWindow()
	}

	manager := NewSurfaceManager(cfg.Surface)
	mapper := newMapper(cfg.Surface, manager)
	registry := newRegistry(manager, styles)
	in := &Instance{
		id:       cfg.ID,
		cb:       cfg.Callbacks,
		gen:      cfg.Generator,
		now:      cfg.Now,
		window:   cfg.Window,
		manager:  manager,
		mapper:   mapper,
		registry: registry,
		modes:    newDrawingModes(mapper, registry),
		drag:     newDragController(mapper, registry),
		external: newExternalSync(manager, styles),
		params:   params,
	}
	in.series = in.gen.Generate(params.Timeframe, params.ReferencePrice, params.ChangePercent, in.now())
	if err := in.rebuild(ctx); err != nil {
		_ = manager.Destroy(ctx)
		return nil, err
	}
	in.unlisten = append(in.unlisten,
		cfg.Window.OnPointerMove(in.pointerMove),
		cfg.Window.OnPointerUp(in.pointerUp),
	)
	slog.Debug("chart instance created", "chart_id", in.id, "symbol", params.Symbol, "timeframe", params.Timeframe, "chart_type", params.ChartType, "rendered", in.rendered)
	return in, nil
}

func (in *Instance) ID() string { return in.id }

// do runs fn under the instance lock, then delivers queued callbacks.
func (in *Instance) do(fn func() error) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return NewError(CodeChartClosed, fmt.Sprintf("chart %q is closed", in.id), nil)
	}
	err := fn()
	outbox := in.outbox
	in.outbox = nil
	in.mu.Unlock()
	for _, deliver := range outbox {
		deliver()
	}
	return err
}

func (in *Instance) rebuild(ctx context.Context) error {
	req := RenderRequest{
		Bars:           in.series.Bars(),
		ChartType:      in.params.ChartType,
		OverlayVisible: in.params.OverlayVisible,
		ReferencePrice: in.params.ReferencePrice,
	}
	if in.params.Share {
		req.Watermark = watermarkText
	}
	rendered, err := in.manager.Rebuild(ctx, req)
	in.rendered = rendered
	return err
}

// SetParams applies new display parameters. Data-affecting changes
// regenerate the series; every change rebuilds the surface.
func (in *Instance) SetParams(ctx context.Context, p Params) error {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	return in.do(func() error {
		prev := in.params
		in.params = p
		if prev.Timeframe != p.Timeframe || prev.ChartType != p.ChartType ||
			prev.ReferencePrice != p.ReferencePrice || prev.ChangePercent != p.ChangePercent {
			in.series = in.gen.Generate(p.Timeframe, p.ReferencePrice, p.ChangePercent, in.now())
		}
		// a rebuild invalidates the row a drag was tracking
		in.drag.Cancel()
		return in.rebuild(ctx)
	})
}

// Resize completes a surface creation deferred by a zero-size container.
func (in *Instance) Resize(ctx context.Context) error {
	return in.do(func() error {
		rendered, err := in.manager.Resize(ctx)
		in.rendered = rendered
		return err
	})
}

// ToggleMode arms mode or disarms it when already armed.
func (in *Instance) ToggleMode(mode DrawingMode) (DrawingMode, error) {
	var out DrawingMode
	err := in.do(func() error {
		var err error
		out, err = in.modes.Toggle(mode)
		return err
	})
	return out, err
}

// Click handles a canvas press at row y and returns the placed line id, if
// any.
func (in *Instance) Click(ctx context.Context, y float64) (string, error) {
	var id string
	err := in.do(func() error {
		var err error
		id, err = in.modes.Click(ctx, y)
		return err
	})
	return id, err
}

// BeginDrag is pointer-down on the row of line id.
func (in *Instance) BeginDrag(id string) error {
	return in.do(func() error { return in.drag.Begin(id) })
}

func (in *Instance) pointerMove(ctx context.Context, y float64) {
	err := in.do(func() error { return in.drag.Move(ctx, y) })
	if err != nil && !isClosed(err) {
		slog.Warn("chart pointer move failed", "chart_id", in.id, "y", y, "error", err)
	}
}

func (in *Instance) pointerUp(ctx context.Context) {
	_ = in.do(func() error {
		line, origin, ok := in.drag.End()
		if !ok || in.cb.LineDragCommitted == nil {
			return nil
		}
		commit := LineDragCommit{ChartID: in.id, LineID: line.ID, Kind: line.Kind, Price: line.Price, OriginPrice: origin}
		fn := in.cb.LineDragCommitted
		in.outbox = append(in.outbox, func() { fn(commit) })
		return nil
	})
}

// PriceToPixel returns the row price is drawn at on the primary series.
func (in *Instance) PriceToPixel(ctx context.Context, price float64) (float64, bool, error) {
	var (
		y  float64
		ok bool
	)
	err := in.do(func() error {
		var err error
		y, ok, err = in.mapper.PriceToPixel(ctx, price)
		return err
	})
	return y, ok, err
}

// AddLine places a line of kind at price.
func (in *Instance) AddLine(ctx context.Context, kind LineKind, price float64) (string, error) {
	var id string
	err := in.do(func() error {
		var err error
		id, err = in.registry.AddLine(ctx, kind, roundPrice(price))
		return err
	})
	return id, err
}

// SetLinePrice moves line id to price without a drag commit.
func (in *Instance) SetLinePrice(ctx context.Context, id string, price float64) error {
	return in.do(func() error {
		return in.registry.UpdateLinePrice(ctx, id, roundPrice(price))
	})
}

// RemoveLine deletes line id.
func (in *Instance) RemoveLine(ctx context.Context, id string) error {
	return in.do(func() error {
		if st := in.drag.Active(); st != nil && st.LineID == id {
			in.drag.Cancel()
		}
		return in.registry.RemoveLine(ctx, id)
	})
}

// ClearAll removes every user line.
func (in *Instance) ClearAll(ctx context.Context) error {
	return in.do(func() error {
		in.drag.Cancel()
		return in.registry.ClearAll(ctx)
	})
}

// AddStopLoss places a stop-loss 3% adverse to the pending entry. It returns
// an empty id when the slot is taken or nothing is pending.
func (in *Instance) AddStopLoss(ctx context.Context) (string, error) {
	return in.addProtective(ctx, KindStopLoss, 1-stopLossOffset, 1+stopLossOffset)
}

// AddTakeProfit places a take-profit 5% favorable to the pending entry.
func (in *Instance) AddTakeProfit(ctx context.Context) (string, error) {
	return in.addProtective(ctx, KindTakeProfit, 1+takeProfitOffset, 1-takeProfitOffset)
}

func (in *Instance) addProtective(ctx context.Context, kind LineKind, buyFactor, sellFactor float64) (string, error) {
	var id string
	err := in.do(func() error {
		if in.registry.has(kind) {
			return nil
		}
		pending := in.registry.Pending()
		var price float64
		switch {
		case pending.Buy != nil:
			price = *pending.Buy * buyFactor
		case pending.Sell != nil:
			price = *pending.Sell * sellFactor
		default:
			return nil
		}
		var err error
		id, err = in.registry.AddLine(ctx, kind, roundPrice(price))
		return err
	})
	return id, err
}

// ConfirmOrder sends the pending order out and clears the overlay. The
// returned confirmation is nil when neither buy nor sell was pending.
func (in *Instance) ConfirmOrder(ctx context.Context) (*OrderConfirmation, error) {
	var out *OrderConfirmation
	err := in.do(func() error {
		pending := in.registry.Pending()
		var conf *OrderConfirmation
		var fn func(OrderConfirmation)
		switch {
		case pending.Buy != nil:
			if pending.Sell != nil {
				slog.Warn("chart confirm with both buy and sell pending, buy wins", "chart_id", in.id, "buy", *pending.Buy, "sell", *pending.Sell)
			}
			conf = &OrderConfirmation{ChartID: in.id, Side: SideBuy, Price: *pending.Buy}
			fn = in.cb.BuyConfirmed
		case pending.Sell != nil:
			conf = &OrderConfirmation{ChartID: in.id, Side: SideSell, Price: *pending.Sell}
			fn = in.cb.SellConfirmed
		}
		if conf != nil {
			conf.StopLoss = pending.StopLoss
			conf.TakeProfit = pending.TakeProfit
			if fn != nil {
				c := *conf
				in.outbox = append(in.outbox, func() { fn(c) })
			}
		}
		in.drag.Cancel()
		in.modes.Reset()
		out = conf
		return in.registry.ClearAll(ctx)
	})
	return out, err
}

// SetExternalLimits mirrors both panel limit prices. nil clears a side.
func (in *Instance) SetExternalLimits(ctx context.Context, buy, sell *float64) error {
	return in.do(func() error {
		if err := in.external.SetBuyLimit(ctx, buy); err != nil {
			return err
		}
		return in.external.SetSellLimit(ctx, sell)
	})
}

// SetExternalBuy mirrors the panel buy limit.
func (in *Instance) SetExternalBuy(ctx context.Context, price *float64) error {
	return in.do(func() error { return in.external.SetBuyLimit(ctx, price) })
}

// SetExternalSell mirrors the panel sell limit.
func (in *Instance) SetExternalSell(ctx context.Context, price *float64) error {
	return in.do(func() error { return in.external.SetSellLimit(ctx, price) })
}

// Tick advances the live series. ok is false for timeframes without a live
// feed.
func (in *Instance) Tick(ctx context.Context, now time.Time) (Bar, bool, error) {
	var (
		bar Bar
		ok  bool
	)
	err := in.do(func() error {
		b, appended, live := in.gen.Tick(in.series, in.params.ReferencePrice, now)
		if !live {
			return nil
		}
		bar, ok = b, true
		if appended && in.series.Full() {
			return in.manager.SetSeries(ctx, in.series.Bars())
		}
		return in.manager.UpdateLastBar(ctx, b)
	})
	return bar, ok, err
}

// Bars returns a copy of the current series.
func (in *Instance) Bars() ([]Bar, error) {
	var bars []Bar
	err := in.do(func() error {
		bars = in.series.Bars()
		return nil
	})
	return bars, err
}

// State returns a snapshot of the instance.
func (in *Instance) State() (State, error) {
	var st State
	err := in.do(func() error {
		ref := in.params.ReferencePrice
		st = State{
			ID:         in.id,
			Params:     in.params,
			Mode:       in.modes.Mode(),
			Drag:       in.drag.Active(),
			Lines:      in.registry.Lines(),
			Reserved:   in.external.Lines(),
			Pending:    in.registry.Pending(),
			Bars:       in.series.Len(),
			Primitives: in.manager.PrimitiveCount(),
			Rendered:   in.rendered,
			Stats: Stats{
				High:        roundPrice(ref * (1 + statsBand)),
				Low:         roundPrice(ref * (1 - statsBand)),
				ActiveLines: in.registry.Len(),
			},
		}
		return nil
	})
	return st, err
}

// Close deregisters the window listeners and destroys the surface. Later
// calls on the instance fail with CHART_CLOSED.
func (in *Instance) Close(ctx context.Context) error {
	return in.do(func() error {
		for _, off := range in.unlisten {
			off()
		}
		in.unlisten = nil
		in.drag.Cancel()
		in.closed = true
		in.rendered = false
		slog.Debug("chart instance closed", "chart_id", in.id)
		return in.manager.Destroy(ctx)
	})
}

func isClosed(err error) bool {
	var ce *CodedError
	return errors.As(err, &ce) && ce.Code == CodeChartClosed
}
