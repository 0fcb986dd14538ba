// Package memsurface is an in-process chart.Surface. It keeps series data and
// price lines in memory and maps rows to prices the way a price scale with
// the default margins does.
package memsurface

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
)

const (
	marginTop    = 0.2
	marginBottom = 0.1
)

var errNoSurface = errors.New("surface not created")

type series struct {
	spec   chart.SeriesSpec
	bars   []chart.Bar
	points []chart.Point
	lines  map[chart.PrimitiveID]chart.PriceLine
}

// Surface is safe for concurrent use.
type Surface struct {
	mu       sync.Mutex
	width    int
	height   int
	created  bool
	opts     chart.SurfaceOptions
	nextID   int
	series   map[chart.SeriesID]*series
	destroys int
}

// New returns a surface whose container is width x height. Zero sizes model
// a container that is not laid out yet.
func New(width, height int) *Surface {
	return &Surface{width: width, height: height, series: make(map[chart.SeriesID]*series)}
}

// SetSize changes the container size. Call Instance.Resize afterwards.
func (s *Surface) SetSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

func (s *Surface) Size(context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height, nil
}

func (s *Surface) Create(_ context.Context, opts chart.SurfaceOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return errors.New("surface already created")
	}
	s.created = true
	s.opts = opts
	s.series = make(map[chart.SeriesID]*series)
	return nil
}

func (s *Surface) AddSeries(_ context.Context, spec chart.SeriesSpec) (chart.SeriesID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return "", errNoSurface
	}
	s.nextID++
	id := chart.SeriesID(fmt.Sprintf("series-%d", s.nextID))
	s.series[id] = &series{spec: spec, lines: make(map[chart.PrimitiveID]chart.PriceLine)}
	return id, nil
}

func (s *Surface) SetBars(_ context.Context, id chart.SeriesID, bars []chart.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, err := s.lookup(id)
	if err != nil {
		return err
	}
	sr.bars = append([]chart.Bar(nil), bars...)
	sr.points = nil
	return nil
}

func (s *Surface) SetPoints(_ context.Context, id chart.SeriesID, points []chart.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, err := s.lookup(id)
	if err != nil {
		return err
	}
	sr.points = append([]chart.Point(nil), points...)
	sr.bars = nil
	return nil
}

// UpdateBar replaces the last bar when times match and appends otherwise.
func (s *Surface) UpdateBar(_ context.Context, id chart.SeriesID, bar chart.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, err := s.lookup(id)
	if err != nil {
		return err
	}
	if n := len(sr.bars); n > 0 {
		switch {
		case sr.bars[n-1].Time == bar.Time:
			sr.bars[n-1] = bar
			return nil
		case sr.bars[n-1].Time > bar.Time:
			return fmt.Errorf("cannot update oldest data, last time=%d, new time=%d", sr.bars[n-1].Time, bar.Time)
		}
	}
	sr.bars = append(sr.bars, bar)
	return nil
}

func (s *Surface) UpdatePoint(_ context.Context, id chart.SeriesID, p chart.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, err := s.lookup(id)
	if err != nil {
		return err
	}
	if n := len(sr.points); n > 0 {
		switch {
		case sr.points[n-1].Time == p.Time:
			sr.points[n-1] = p
			return nil
		case sr.points[n-1].Time > p.Time:
			return fmt.Errorf("cannot update oldest data, last time=%d, new time=%d", sr.points[n-1].Time, p.Time)
		}
	}
	sr.points = append(sr.points, p)
	return nil
}

func (s *Surface) FitContent(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return errNoSurface
	}
	return nil
}

func (s *Surface) CreatePriceLine(_ context.Context, id chart.SeriesID, line chart.PriceLine) (chart.PrimitiveID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	s.nextID++
	pid := chart.PrimitiveID(fmt.Sprintf("line-%d", s.nextID))
	sr.lines[pid] = line
	return pid, nil
}

func (s *Surface) RemovePriceLine(_ context.Context, id chart.SeriesID, pid chart.PrimitiveID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, err := s.lookup(id)
	if err != nil {
		return err
	}
	if _, ok := sr.lines[pid]; !ok {
		return fmt.Errorf("price line %s not found", pid)
	}
	delete(sr.lines, pid)
	return nil
}

func (s *Surface) CoordinateToPrice(_ context.Context, id chart.SeriesID, y float64) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, err := s.lookup(id)
	if err != nil {
		return 0, false, err
	}
	lo, hi, ok := sr.priceRange()
	if !ok || y < 0 || y > float64(s.height) {
		return 0, false, nil
	}
	top, span := s.band()
	return hi - (y-top)/span*(hi-lo), true, nil
}

func (s *Surface) PriceToCoordinate(_ context.Context, id chart.SeriesID, price float64) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, err := s.lookup(id)
	if err != nil {
		return 0, false, err
	}
	lo, hi, ok := sr.priceRange()
	if !ok {
		return 0, false, nil
	}
	top, span := s.band()
	y := top + (hi-price)/(hi-lo)*span
	return y, y >= 0 && y <= float64(s.height), nil
}

func (s *Surface) Destroy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return errNoSurface
	}
	s.created = false
	s.series = make(map[chart.SeriesID]*series)
	s.destroys++
	return nil
}

// Created reports whether a surface currently exists.
func (s *Surface) Created() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Options returns the options of the current surface.
func (s *Surface) Options() chart.SurfaceOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Destroys counts completed Destroy calls.
func (s *Surface) Destroys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroys
}

// SeriesSpecs returns the specs of every live series.
func (s *Surface) SeriesSpecs() []chart.SeriesSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chart.SeriesSpec, 0, len(s.series))
	for _, sr := range s.series {
		out = append(out, sr.spec)
	}
	return out
}

// PriceLines returns every drawn price line across all series.
func (s *Surface) PriceLines() []chart.PriceLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chart.PriceLine
	for _, sr := range s.series {
		for _, l := range sr.lines {
			out = append(out, l)
		}
	}
	return out
}

// LineCount returns the number of drawn price lines.
func (s *Surface) LineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sr := range s.series {
		n += len(sr.lines)
	}
	return n
}

// DataLen returns the number of bars or points held by the series on scale,
// or -1 when no series uses that scale.
func (s *Surface) DataLen(scale chart.PriceScale) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sr := range s.series {
		if sr.spec.Scale == scale {
			return len(sr.bars) + len(sr.points)
		}
	}
	return -1
}

func (s *Surface) lookup(id chart.SeriesID) (*series, error) {
	if !s.created {
		return nil, errNoSurface
	}
	sr, ok := s.series[id]
	if !ok {
		return nil, fmt.Errorf("series %s not found", id)
	}
	return sr, nil
}

// band returns the top row and height of the area the price range fills.
func (s *Surface) band() (top, span float64) {
	h := float64(s.height)
	return h * marginTop, h * (1 - marginTop - marginBottom)
}

func (sr *series) priceRange() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, b := range sr.bars {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.High)
	}
	for _, p := range sr.points {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, 0, false
	}
	if hi == lo {
		pad := math.Max(math.Abs(hi)*0.01, 0.01)
		lo, hi = lo-pad, hi+pad
	}
	return lo, hi, true
}
