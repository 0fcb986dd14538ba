package chart

import (
	"fmt"
	"math"
)

const (
	CodeValidation     = "VALIDATION"
	CodeChartNotFound  = "CHART_NOT_FOUND"
	CodeLineNotFound   = "LINE_NOT_FOUND"
	CodeChartClosed    = "CHART_CLOSED"
	CodeSurfaceFailure = "SURFACE_FAILURE"
	CodeAPIUnavailable = "API_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Timeframe is a bar interval selection as shown on the chart toolbar.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1"
	Timeframe5m  Timeframe = "5"
	Timeframe15m Timeframe = "15"
	Timeframe1h  Timeframe = "60"
	Timeframe4h  Timeframe = "240"
	Timeframe1D  Timeframe = "D"
	Timeframe1W  Timeframe = "W"
)

type timeframeSpec struct {
	interval int64
	bars     int
}

var timeframes = map[Timeframe]timeframeSpec{
	Timeframe1m:  {interval: 60, bars: 360},
	Timeframe5m:  {interval: 300, bars: 288},
	Timeframe15m: {interval: 900, bars: 192},
	Timeframe1h:  {interval: 3600, bars: 168},
	Timeframe4h:  {interval: 14400, bars: 120},
	Timeframe1D:  {interval: 86400, bars: 90},
	Timeframe1W:  {interval: 604800, bars: 52},
}

// Valid reports whether tf is a known timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := timeframes[tf]
	return ok
}

// Interval returns the bar width in seconds.
func (tf Timeframe) Interval() int64 { return timeframes[tf].interval }

// BarCount returns the fixed number of bars generated for tf.
func (tf Timeframe) BarCount() int { return timeframes[tf].bars }

// Live reports whether tf receives simulated live ticks (sub-hour only).
func (tf Timeframe) Live() bool {
	return tf == Timeframe1m || tf == Timeframe5m || tf == Timeframe15m
}

// ChartType selects how the primary series is drawn.
type ChartType string

const (
	ChartCandlestick ChartType = "candlestick"
	ChartBar         ChartType = "bar"
	ChartLine        ChartType = "line"
	ChartArea        ChartType = "area"
)

func (t ChartType) Valid() bool {
	switch t {
	case ChartCandlestick, ChartBar, ChartLine, ChartArea:
		return true
	}
	return false
}

// closeOnly reports whether the series plots only close prices.
func (t ChartType) closeOnly() bool { return t == ChartLine || t == ChartArea }

// LineKind is the role of an order line.
type LineKind string

const (
	KindBuy        LineKind = "buy"
	KindSell       LineKind = "sell"
	KindStopLoss   LineKind = "stop-loss"
	KindTakeProfit LineKind = "take-profit"
	KindAnnotation LineKind = "annotation"
)

func (k LineKind) Valid() bool {
	switch k {
	case KindBuy, KindSell, KindStopLoss, KindTakeProfit, KindAnnotation:
		return true
	}
	return false
}

// DrawingMode is the placement tool armed for the next chart click.
type DrawingMode string

const (
	ModeNone       DrawingMode = "none"
	ModeBuy        DrawingMode = "buy"
	ModeSell       DrawingMode = "sell"
	ModeHorizontal DrawingMode = "horizontal"
	ModeTrendline  DrawingMode = "trendline"
	ModeFibonacci  DrawingMode = "fibonacci"
)

func (m DrawingMode) Valid() bool {
	switch m {
	case ModeNone, ModeBuy, ModeSell, ModeHorizontal, ModeTrendline, ModeFibonacci:
		return true
	}
	return false
}

// Bar is one OHLC bar. Time is unix seconds.
type Bar struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// OrderLine is a user-placed horizontal marker owned by the Registry.
type OrderLine struct {
	ID     string   `json:"id"`
	Kind   LineKind `json:"kind"`
	Price  float64  `json:"price"`
	handle Handle
	seq    int
}

// ReservedLine is a line mirrored from the external order-entry panel.
type ReservedLine struct {
	Side  string  `json:"side"`
	Price float64 `json:"price"`
}

// PendingOrder is derived from the user lines at the moment it is read.
type PendingOrder struct {
	Buy        *float64 `json:"buy,omitempty"`
	Sell       *float64 `json:"sell,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

// DragState is the single active drag, if any.
type DragState struct {
	LineID      string  `json:"line_id"`
	OriginPrice float64 `json:"origin_price"`
}

// Params are the display parameters a chart instance renders from.
type Params struct {
	Symbol         string    `json:"symbol"`
	ReferencePrice float64   `json:"reference_price"`
	ChangePercent  float64   `json:"change_percent"`
	Timeframe      Timeframe `json:"timeframe"`
	ChartType      ChartType `json:"chart_type"`
	OverlayVisible bool      `json:"overlay_visible"`
	Share          bool      `json:"share"`
}

// WithDefaults fills an empty timeframe and chart type.
func (p Params) WithDefaults() Params {
	if p.Timeframe == "" {
		p.Timeframe = Timeframe1h
	}
	if p.ChartType == "" {
		p.ChartType = ChartCandlestick
	}
	return p
}

// Validate rejects parameters the generator cannot render.
func (p Params) Validate() error {
	if !p.Timeframe.Valid() {
		return NewError(CodeValidation, fmt.Sprintf("unknown timeframe %q", p.Timeframe), nil)
	}
	if !p.ChartType.Valid() {
		return NewError(CodeValidation, fmt.Sprintf("unknown chart type %q", p.ChartType), nil)
	}
	if !validPrice(p.ReferencePrice) {
		return NewError(CodeValidation, "reference_price must be a positive number", nil)
	}
	if math.IsNaN(p.ChangePercent) || math.IsInf(p.ChangePercent, 0) {
		return NewError(CodeValidation, "change_percent must be finite", nil)
	}
	return nil
}

// Stats are the 24h figures shown under the chart.
type Stats struct {
	High        float64 `json:"high_24h"`
	Low         float64 `json:"low_24h"`
	ActiveLines int     `json:"active_lines"`
}

// State is a point-in-time view of a chart instance.
type State struct {
	ID         string         `json:"id"`
	Params     Params         `json:"params"`
	Mode       DrawingMode    `json:"mode"`
	Drag       *DragState     `json:"drag,omitempty"`
	Lines      []OrderLine    `json:"lines"`
	Reserved   []ReservedLine `json:"reserved"`
	Pending    PendingOrder   `json:"pending"`
	Bars       int            `json:"bars"`
	Primitives int            `json:"primitives"`
	Rendered   bool           `json:"rendered"`
	Stats      Stats          `json:"stats"`
}

const pricePrecision = 100

// roundPrice snaps p to the chart's two-decimal price grid.
func roundPrice(p float64) float64 {
	return math.Round(p*pricePrecision) / pricePrecision
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func floatPtr(v float64) *float64 { return &v }
