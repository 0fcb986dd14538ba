package chart_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
	"github.com/qrdx-org/qrdx-trade/internal/chart/memsurface"
)

// linearSurface maps row y to price 3000-y so clicks land on exact prices.
type linearSurface struct {
	*memsurface.Surface
}

func (s linearSurface) CoordinateToPrice(_ context.Context, _ chart.SeriesID, y float64) (float64, bool, error) {
	_, h, _ := s.Size(context.Background())
	if y < 0 || y > float64(h) {
		return 0, false, nil
	}
	return 3000 - y, true, nil
}

func (s linearSurface) PriceToCoordinate(_ context.Context, _ chart.SeriesID, price float64) (float64, bool, error) {
	return 3000 - price, true, nil
}

// unboundedSurface maps every row, even ones below the container.
type unboundedSurface struct {
	linearSurface
}

func (unboundedSurface) CoordinateToPrice(_ context.Context, _ chart.SeriesID, y float64) (float64, bool, error) {
	return 3000 - y, true, nil
}

// flakySurface rejects new series while failAdd is set.
type flakySurface struct {
	linearSurface
	failAdd *bool
}

func (s flakySurface) AddSeries(ctx context.Context, spec chart.SeriesSpec) (chart.SeriesID, error) {
	if *s.failAdd {
		return "", errors.New("series rejected")
	}
	return s.linearSurface.AddSeries(ctx, spec)
}

type recorder struct {
	buys    []chart.OrderConfirmation
	sells   []chart.OrderConfirmation
	commits []chart.LineDragCommit
}

func (r *recorder) callbacks() chart.Callbacks {
	return chart.Callbacks{
		BuyConfirmed:      func(c chart.OrderConfirmation) { r.buys = append(r.buys, c) },
		SellConfirmed:     func(c chart.OrderConfirmation) { r.sells = append(r.sells, c) },
		LineDragCommitted: func(c chart.LineDragCommit) { r.commits = append(r.commits, c) },
	}
}

type fixture struct {
	inst   *chart.Instance
	mem    *memsurface.Surface
	window *chart.Window
	rec    *recorder
}

func newFixture(t *testing.T, mem *memsurface.Surface, params chart.Params) *fixture {
	t.Helper()
	f := &fixture{mem: mem, window: chart.NewWindow(), rec: &recorder{}}
	inst, err := chart.NewInstance(context.Background(), chart.InstanceConfig{
		ID:        "test-chart",
		Surface:   linearSurface{mem},
		Window:    f.window,
		Callbacks: f.rec.callbacks(),
		Generator: chart.NewGenerator(rand.New(rand.NewSource(1))),
		Now:       func() time.Time { return fixedNow },
	}, params)
	require.NoError(t, err)
	f.inst = inst
	return f
}

func defaultParams() chart.Params {
	return chart.Params{Symbol: "QRDX", ReferencePrice: 2800, Timeframe: chart.Timeframe1h, ChartType: chart.ChartCandlestick}
}

func (f *fixture) state(t *testing.T) chart.State {
	t.Helper()
	st, err := f.inst.State()
	require.NoError(t, err)
	return st
}

func (f *fixture) assertNoLeaks(t *testing.T) {
	t.Helper()
	st := f.state(t)
	assert.Equal(t, len(st.Lines)+len(st.Reserved), f.mem.LineCount())
	assert.Equal(t, f.mem.LineCount(), st.Primitives)
}

func TestBuyClickPlacesLineAndDisarms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())

	mode, err := f.inst.ToggleMode(chart.ModeBuy)
	require.NoError(t, err)
	assert.Equal(t, chart.ModeBuy, mode)

	id, err := f.inst.Click(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, "buy-1", id)

	st := f.state(t)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, chart.KindBuy, st.Lines[0].Kind)
	assert.Equal(t, 2800.0, st.Lines[0].Price)
	assert.Equal(t, chart.ModeNone, st.Mode)
	require.NotNil(t, st.Pending.Buy)
	assert.Equal(t, 2800.0, *st.Pending.Buy)
	f.assertNoLeaks(t)
}

func TestUnmappedClickKeepsModeArmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	_, err := f.inst.ToggleMode(chart.ModeSell)
	require.NoError(t, err)

	id, err := f.inst.Click(ctx, 900)
	require.NoError(t, err)
	assert.Empty(t, id)

	st := f.state(t)
	assert.Empty(t, st.Lines)
	assert.Equal(t, chart.ModeSell, st.Mode)
}

func TestToggleSameModeDisarms(t *testing.T) {
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	mode, err := f.inst.ToggleMode(chart.ModeHorizontal)
	require.NoError(t, err)
	assert.Equal(t, chart.ModeHorizontal, mode)

	mode, err = f.inst.ToggleMode(chart.ModeHorizontal)
	require.NoError(t, err)
	assert.Equal(t, chart.ModeNone, mode)

	_, err = f.inst.ToggleMode("lasso")
	var ce *chart.CodedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, chart.CodeValidation, ce.Code)
}

func TestHorizontalAndTrendlineClicks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())

	_, _ = f.inst.ToggleMode(chart.ModeHorizontal)
	id, err := f.inst.Click(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "annotation-1", id)

	_, _ = f.inst.ToggleMode(chart.ModeTrendline)
	id, err = f.inst.Click(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, id)

	st := f.state(t)
	assert.Len(t, st.Lines, 1)
	assert.Equal(t, chart.ModeTrendline, st.Mode)
	assert.Nil(t, st.Pending.Buy)
}

func TestPrimitivesTrackRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	rng := rand.New(rand.NewSource(99))
	kinds := []chart.LineKind{chart.KindBuy, chart.KindSell, chart.KindStopLoss, chart.KindTakeProfit, chart.KindAnnotation}

	var ids []string
	for step := 0; step < 200; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			id, err := f.inst.AddLine(ctx, kinds[rng.Intn(len(kinds))], 2500+rng.Float64()*500)
			require.NoError(t, err)
			ids = append(ids, id)
		case op == 1:
			require.NoError(t, f.inst.SetLinePrice(ctx, ids[rng.Intn(len(ids))], 2500+rng.Float64()*500))
		default:
			i := rng.Intn(len(ids))
			require.NoError(t, f.inst.RemoveLine(ctx, ids[i]))
			ids = append(ids[:i], ids[i+1:]...)
		}
		f.assertNoLeaks(t)
	}
	require.NoError(t, f.inst.ClearAll(ctx))
	assert.Zero(t, f.mem.LineCount())
}

func TestLineIDsAreNeverReused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	a, err := f.inst.AddLine(ctx, chart.KindBuy, 2700)
	require.NoError(t, err)
	require.NoError(t, f.inst.RemoveLine(ctx, a))
	b, err := f.inst.AddLine(ctx, chart.KindBuy, 2700)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	err = f.inst.RemoveLine(ctx, a)
	var ce *chart.CodedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, chart.CodeLineNotFound, ce.Code)
}

func TestRebuildReplaysLinesAtSamePrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	_, err := f.inst.AddLine(ctx, chart.KindBuy, 2790.5)
	require.NoError(t, err)
	_, err = f.inst.AddLine(ctx, chart.KindAnnotation, 2850)
	require.NoError(t, err)
	require.NoError(t, f.inst.SetExternalBuy(ctx, ptr(2750)))
	before := f.state(t)

	p := defaultParams()
	p.Timeframe = chart.Timeframe5m
	p.ChartType = chart.ChartArea
	p.OverlayVisible = true
	require.NoError(t, f.inst.SetParams(ctx, p))

	after := f.state(t)
	require.Len(t, after.Lines, len(before.Lines))
	for i := range before.Lines {
		assert.Equal(t, before.Lines[i].ID, after.Lines[i].ID)
		assert.Equal(t, before.Lines[i].Kind, after.Lines[i].Kind)
		assert.Equal(t, before.Lines[i].Price, after.Lines[i].Price)
	}
	assert.Equal(t, before.Reserved, after.Reserved)
	assert.Equal(t, 288, after.Bars)
	assert.Equal(t, 1, f.mem.Destroys())
	f.assertNoLeaks(t)

	prices := map[float64]bool{}
	for _, l := range f.mem.PriceLines() {
		prices[l.Price] = true
	}
	assert.True(t, prices[2790.5])
	assert.True(t, prices[2850])
	assert.True(t, prices[2750])
}

func TestOverlayAndShareWatermark(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	assert.Len(t, f.mem.SeriesSpecs(), 1)
	assert.Empty(t, f.mem.Options().Watermark)

	p := defaultParams()
	p.OverlayVisible = true
	p.Share = true
	require.NoError(t, f.inst.SetParams(ctx, p))

	specs := f.mem.SeriesSpecs()
	require.Len(t, specs, 2)
	opts := f.mem.Options()
	assert.True(t, opts.LeftScale)
	assert.Equal(t, "QRDX", opts.Watermark)

	var overlay *chart.SeriesSpec
	for i := range specs {
		if specs[i].Scale == chart.ScaleLeft {
			overlay = &specs[i]
		}
	}
	require.NotNil(t, overlay)
	assert.Equal(t, "Market Cap", overlay.Title)
}

func TestDragIsSingleSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	a, err := f.inst.AddLine(ctx, chart.KindBuy, 2800)
	require.NoError(t, err)
	b, err := f.inst.AddLine(ctx, chart.KindSell, 2900)
	require.NoError(t, err)

	require.NoError(t, f.inst.BeginDrag(b))
	err = f.inst.BeginDrag(a)
	var ce *chart.CodedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, chart.CodeValidation, ce.Code)

	f.window.DispatchMove(ctx, 150)
	f.window.DispatchMove(ctx, 1000) // outside the canvas, ignored
	st := f.state(t)
	require.NotNil(t, st.Drag)
	assert.Equal(t, b, st.Drag.LineID)
	assert.Equal(t, 2900.0, st.Drag.OriginPrice)

	f.window.DispatchUp(ctx)
	require.Len(t, f.rec.commits, 1)
	assert.Equal(t, chart.LineDragCommit{ChartID: "test-chart", LineID: b, Kind: chart.KindSell, Price: 2850, OriginPrice: 2900}, f.rec.commits[0])

	st = f.state(t)
	assert.Nil(t, st.Drag)
	require.NotNil(t, st.Pending.Sell)
	assert.Equal(t, 2850.0, *st.Pending.Sell)
	line := st.Lines[1]
	assert.Equal(t, b, line.ID)
	f.assertNoLeaks(t)

	f.window.DispatchUp(ctx)
	assert.Len(t, f.rec.commits, 1)
}

func TestReservedLinesAreNotDraggable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	require.NoError(t, f.inst.SetExternalBuy(ctx, ptr(2750)))
	err := f.inst.BeginDrag("buy-limit")
	var ce *chart.CodedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, chart.CodeLineNotFound, ce.Code)
}

func TestExternalLimitReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())

	require.NoError(t, f.inst.SetExternalBuy(ctx, ptr(2750)))
	require.NoError(t, f.inst.SetExternalBuy(ctx, ptr(2760)))
	st := f.state(t)
	require.Len(t, st.Reserved, 1)
	assert.Equal(t, chart.ReservedLine{Side: chart.SideBuy, Price: 2760}, st.Reserved[0])
	assert.Nil(t, st.Pending.Buy)
	assert.Equal(t, 1, f.mem.LineCount())
	line := f.mem.PriceLines()[0]
	assert.True(t, line.Dashed)
	assert.Equal(t, "📈 Buy Limit", line.Title)

	require.NoError(t, f.inst.SetExternalBuy(ctx, nil))
	assert.Empty(t, f.state(t).Reserved)
	assert.Zero(t, f.mem.LineCount())

	require.NoError(t, f.inst.SetExternalLimits(ctx, ptr(2700), ptr(2900)))
	require.NoError(t, f.inst.SetExternalSell(ctx, ptr(-1)))
	st = f.state(t)
	require.Len(t, st.Reserved, 1)
	assert.Equal(t, chart.SideBuy, st.Reserved[0].Side)
	f.assertNoLeaks(t)
}

func TestStopLossAndTakeProfitFromBuy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	_, _ = f.inst.ToggleMode(chart.ModeBuy)
	_, err := f.inst.Click(ctx, 200)
	require.NoError(t, err)

	sl, err := f.inst.AddStopLoss(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stop-loss-2", sl)
	tp, err := f.inst.AddTakeProfit(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tp)

	st := f.state(t)
	require.NotNil(t, st.Pending.StopLoss)
	require.NotNil(t, st.Pending.TakeProfit)
	assert.Equal(t, 2716.0, *st.Pending.StopLoss)
	assert.Equal(t, 2940.0, *st.Pending.TakeProfit)

	again, err := f.inst.AddStopLoss(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, f.state(t).Lines, 3)
}

func TestStopLossAndTakeProfitFromSell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	_, err := f.inst.AddLine(ctx, chart.KindSell, 2800)
	require.NoError(t, err)
	_, err = f.inst.AddStopLoss(ctx)
	require.NoError(t, err)
	_, err = f.inst.AddTakeProfit(ctx)
	require.NoError(t, err)

	st := f.state(t)
	assert.Equal(t, 2884.0, *st.Pending.StopLoss)
	assert.Equal(t, 2660.0, *st.Pending.TakeProfit)
}

func TestStopLossWithoutEntryIsNoop(t *testing.T) {
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	id, err := f.inst.AddStopLoss(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, f.state(t).Lines)
}

func TestConfirmOrderFiresOnceAndClears(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	_, err := f.inst.AddLine(ctx, chart.KindBuy, 2800)
	require.NoError(t, err)
	_, err = f.inst.AddStopLoss(ctx)
	require.NoError(t, err)
	_, err = f.inst.AddTakeProfit(ctx)
	require.NoError(t, err)
	require.NoError(t, f.inst.SetExternalSell(ctx, ptr(2950)))
	_, _ = f.inst.ToggleMode(chart.ModeSell)

	conf, err := f.inst.ConfirmOrder(ctx)
	require.NoError(t, err)
	require.NotNil(t, conf)

	require.Len(t, f.rec.buys, 1)
	assert.Empty(t, f.rec.sells)
	got := f.rec.buys[0]
	assert.Equal(t, chart.SideBuy, got.Side)
	assert.Equal(t, 2800.0, got.Price)
	assert.Equal(t, 2716.0, *got.StopLoss)
	assert.Equal(t, 2940.0, *got.TakeProfit)

	st := f.state(t)
	assert.Empty(t, st.Lines)
	assert.Equal(t, chart.PendingOrder{}, st.Pending)
	assert.Equal(t, chart.ModeNone, st.Mode)
	assert.Len(t, st.Reserved, 1)
	f.assertNoLeaks(t)
}

func TestConfirmWithBothSidesPrefersBuy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	_, err := f.inst.AddLine(ctx, chart.KindSell, 2900)
	require.NoError(t, err)
	_, err = f.inst.AddLine(ctx, chart.KindBuy, 2700)
	require.NoError(t, err)

	_, err = f.inst.ConfirmOrder(ctx)
	require.NoError(t, err)
	require.Len(t, f.rec.buys, 1)
	assert.Empty(t, f.rec.sells)
	assert.Nil(t, f.rec.buys[0].StopLoss)
}

func TestConfirmWithoutEntryOnlyClears(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	_, err := f.inst.AddLine(ctx, chart.KindAnnotation, 2900)
	require.NoError(t, err)

	conf, err := f.inst.ConfirmOrder(ctx)
	require.NoError(t, err)
	assert.Nil(t, conf)
	assert.Empty(t, f.rec.buys)
	assert.Empty(t, f.state(t).Lines)
}

func TestCloseDeregistersListeners(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	id, err := f.inst.AddLine(ctx, chart.KindBuy, 2800)
	require.NoError(t, err)
	require.NoError(t, f.inst.BeginDrag(id))
	assert.Equal(t, 2, f.window.ListenerCount())

	require.NoError(t, f.inst.Close(ctx))
	assert.Zero(t, f.window.ListenerCount())
	assert.False(t, f.mem.Created())

	f.window.DispatchMove(ctx, 100)
	f.window.DispatchUp(ctx)
	assert.Empty(t, f.rec.commits)

	_, err = f.inst.State()
	var ce *chart.CodedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, chart.CodeChartClosed, ce.Code)
}

func TestZeroSizeContainerDefersCreation(t *testing.T) {
	ctx := context.Background()
	mem := memsurface.New(0, 0)
	f := newFixture(t, mem, defaultParams())

	st := f.state(t)
	assert.False(t, st.Rendered)
	assert.False(t, mem.Created())

	_, err := f.inst.AddLine(ctx, chart.KindBuy, 2800)
	require.NoError(t, err)
	require.NoError(t, f.inst.SetExternalSell(ctx, ptr(2900)))
	assert.Zero(t, mem.LineCount())

	id, err := f.inst.Click(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, id)

	mem.SetSize(800, 600)
	require.NoError(t, f.inst.Resize(ctx))
	st = f.state(t)
	assert.True(t, st.Rendered)
	assert.True(t, mem.Created())
	assert.Equal(t, 2, mem.LineCount())
	f.assertNoLeaks(t)
}

func TestLiveTickUpdatesSubHourCharts(t *testing.T) {
	ctx := context.Background()
	p := defaultParams()
	p.Timeframe = chart.Timeframe1m
	f := newFixture(t, memsurface.New(800, 600), p)

	bar, ok, err := f.inst.Tick(ctx, fixedNow.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fixedNow.Unix()+60, bar.Time)
	bars, err := f.inst.Bars()
	require.NoError(t, err)
	assert.Len(t, bars, 360)
	assert.Equal(t, bar, bars[len(bars)-1])

	p.Timeframe = chart.Timeframe1D
	require.NoError(t, f.inst.SetParams(ctx, p))
	_, ok, err = f.inst.Tick(ctx, fixedNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLiveTickPastCapKeepsSurfaceBounded(t *testing.T) {
	ctx := context.Background()
	p := defaultParams()
	p.Timeframe = chart.Timeframe1m
	p.OverlayVisible = true
	mem := memsurface.New(800, 600)
	f := newFixture(t, mem, p)

	for i := 1; i <= 100; i++ {
		_, ok, err := f.inst.Tick(ctx, fixedNow.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, ok, err := f.inst.Tick(ctx, fixedNow.Add(100*time.Minute+10*time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	bars, err := f.inst.Bars()
	require.NoError(t, err)
	require.Len(t, bars, chart.Timeframe1m.BarCount())
	assert.Equal(t, fixedNow.Unix()+100*60, bars[len(bars)-1].Time)
	assert.Equal(t, len(bars), mem.DataLen(chart.ScaleRight))
	assert.Equal(t, len(bars), mem.DataLen(chart.ScaleLeft))
}

func TestClickBelowSurfaceMapsNothing(t *testing.T) {
	ctx := context.Background()
	mem := memsurface.New(800, 600)
	inst, err := chart.NewInstance(ctx, chart.InstanceConfig{
		ID:        "test-chart",
		Surface:   unboundedSurface{linearSurface{mem}},
		Generator: chart.NewGenerator(rand.New(rand.NewSource(1))),
		Now:       func() time.Time { return fixedNow },
	}, defaultParams())
	require.NoError(t, err)
	_, err = inst.ToggleMode(chart.ModeBuy)
	require.NoError(t, err)

	id, err := inst.Click(ctx, 650)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Zero(t, mem.LineCount())

	mem.SetSize(800, 700)
	require.NoError(t, inst.Resize(ctx))
	id, err = inst.Click(ctx, 650)
	require.NoError(t, err)
	assert.Equal(t, "buy-1", id)
	st, err := inst.State()
	require.NoError(t, err)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 2350.0, st.Lines[0].Price)
}

func TestFailedRebuildLeavesNoLiveSurface(t *testing.T) {
	ctx := context.Background()
	mem := memsurface.New(800, 600)
	failAdd := false
	inst, err := chart.NewInstance(ctx, chart.InstanceConfig{
		ID:        "test-chart",
		Surface:   flakySurface{linearSurface{mem}, &failAdd},
		Generator: chart.NewGenerator(rand.New(rand.NewSource(1))),
		Now:       func() time.Time { return fixedNow },
	}, defaultParams())
	require.NoError(t, err)

	failAdd = true
	p := defaultParams()
	p.ChartType = chart.ChartLine
	err = inst.SetParams(ctx, p)
	var ce *chart.CodedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, chart.CodeSurfaceFailure, ce.Code)
	assert.False(t, mem.Created())

	_, err = inst.AddLine(ctx, chart.KindBuy, 2800)
	require.NoError(t, err)
	assert.Zero(t, mem.LineCount())
	_, err = inst.ToggleMode(chart.ModeSell)
	require.NoError(t, err)
	id, err := inst.Click(ctx, 200)
	require.NoError(t, err)
	assert.Empty(t, id)
	st, err := inst.State()
	require.NoError(t, err)
	assert.False(t, st.Rendered)
	assert.Zero(t, st.Primitives)

	failAdd = false
	p.ChartType = chart.ChartArea
	require.NoError(t, inst.SetParams(ctx, p))
	st, err = inst.State()
	require.NoError(t, err)
	assert.True(t, st.Rendered)
	assert.Equal(t, 1, mem.LineCount())
}

func TestStateStats(t *testing.T) {
	f := newFixture(t, memsurface.New(800, 600), defaultParams())
	st := f.state(t)
	assert.Equal(t, 2940.0, st.Stats.High)
	assert.Equal(t, 2660.0, st.Stats.Low)
	assert.Equal(t, 168, st.Bars)
}

func ptr(v float64) *float64 { return &v }
