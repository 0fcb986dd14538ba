package chart

import (
	"math"
	"math/rand"
	"time"
)

const (
	startDiscount  = 0.95
	barVolatility  = 0.015
	wickFraction   = 0.3
	tickVolatility = 0.001
)

// Series is a bounded, time-ordered run of bars. Once it holds cap bars,
// each push evicts the oldest.
type Series struct {
	tf   Timeframe
	cap  int
	bars []Bar
}

func newSeries(tf Timeframe, capacity int) *Series {
	return &Series{tf: tf, cap: capacity, bars: make([]Bar, 0, capacity)}
}

// Bars returns a copy of the bars, oldest first.
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

func (s *Series) Len() int { return len(s.bars) }

// Full reports whether the next push evicts the oldest bar.
func (s *Series) Full() bool { return s.cap > 0 && len(s.bars) >= s.cap }

// Last returns the most recent bar.
func (s *Series) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

func (s *Series) Timeframe() Timeframe { return s.tf }

func (s *Series) push(b Bar) {
	s.bars = append(s.bars, b)
	if s.cap > 0 && len(s.bars) > s.cap {
		s.bars = append(s.bars[:0], s.bars[len(s.bars)-s.cap:]...)
	}
}

func (s *Series) amendLast(b Bar) {
	if len(s.bars) == 0 {
		s.bars = append(s.bars, b)
		return
	}
	s.bars[len(s.bars)-1] = b
}

// Generator produces synthetic OHLC series. It is not safe for concurrent
// use; each chart instance owns one.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator drawing from rng. A nil rng is seeded
// from the clock.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng}
}

// Generate builds tf.BarCount() bars ending at now that drift by roughly
// changePct percent of ref over the whole span.
func (g *Generator) Generate(tf Timeframe, ref, changePct float64, now time.Time) *Series {
	n := tf.BarCount()
	interval := tf.Interval()
	s := newSeries(tf, n)
	if n == 0 || ref <= 0 {
		return s
	}

	end := now.Unix() - now.Unix()%interval
	volatility := ref * barVolatility
	drift := changePct / 100 * ref / float64(n)
	price := roundPrice(ref * startDiscount)

	for i := 0; i < n; i++ {
		open := price
		closePx := roundPrice(math.Max(0, open+(g.rng.Float64()-0.5)*volatility+drift))
		s.push(g.bar(end-int64(n-1-i)*interval, open, closePx, volatility))
		price = closePx
	}
	return s
}

// Tick advances a live series by one simulated trade at now. It amends the
// last bar while now is inside its interval and appends a new bar otherwise.
// appended is false for an amend; ok is false when tf is not live.
func (g *Generator) Tick(s *Series, ref float64, now time.Time) (bar Bar, appended bool, ok bool) {
	if s == nil || !s.tf.Live() {
		return Bar{}, false, false
	}
	last, has := s.Last()
	if !has {
		return Bar{}, false, false
	}

	interval := s.tf.Interval()
	delta := (g.rng.Float64() - 0.5) * ref * tickVolatility
	ts := now.Unix()

	if ts < last.Time+interval {
		closePx := roundPrice(math.Max(0, last.Close+delta))
		last.Close = closePx
		last.High = math.Max(last.High, closePx)
		last.Low = math.Min(last.Low, closePx)
		s.amendLast(last)
		return last, false, true
	}

	steps := (ts - last.Time) / interval
	open := last.Close
	closePx := roundPrice(math.Max(0, open+delta))
	next := Bar{
		Time:  last.Time + steps*interval,
		Open:  open,
		High:  math.Max(open, closePx),
		Low:   math.Min(open, closePx),
		Close: closePx,
	}
	s.push(next)
	return next, true, true
}

func (g *Generator) bar(ts int64, open, closePx, volatility float64) Bar {
	high := roundPrice(math.Max(open, closePx) + g.rng.Float64()*volatility*wickFraction)
	low := roundPrice(math.Max(0, math.Min(open, closePx)-g.rng.Float64()*volatility*wickFraction))
	// open and close sit on the cent grid, so rounding cannot cross them;
	// the clamps only guard the zero floor.
	high = math.Max(high, math.Max(open, closePx))
	low = math.Min(low, math.Min(open, closePx))
	return Bar{Time: ts, Open: open, High: high, Low: low, Close: closePx}
}
