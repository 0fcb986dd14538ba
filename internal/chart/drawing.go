package chart

import (
	"context"
	"fmt"
	"log/slog"
)

// DrawingModes is the armed placement tool. Exactly one mode is active.
type DrawingModes struct {
	mode     DrawingMode
	mapper   *Mapper
	registry *Registry
}

func newDrawingModes(mapper *Mapper, registry *Registry) *DrawingModes {
	return &DrawingModes{mode: ModeNone, mapper: mapper, registry: registry}
}

func (d *DrawingModes) Mode() DrawingMode { return d.mode }

// Toggle arms mode, or disarms it when it is already armed.
func (d *DrawingModes) Toggle(mode DrawingMode) (DrawingMode, error) {
	if !mode.Valid() {
		return d.mode, NewError(CodeValidation, fmt.Sprintf("unknown drawing mode %q", mode), nil)
	}
	if mode == ModeNone || d.mode == mode {
		d.mode = ModeNone
	} else {
		d.mode = mode
	}
	return d.mode, nil
}

// Reset disarms any mode.
func (d *DrawingModes) Reset() { d.mode = ModeNone }

// Click handles a press on the chart canvas at row y. placed is the id of
// the created line, empty when nothing was placed.
func (d *DrawingModes) Click(ctx context.Context, y float64) (placed string, err error) {
	var kind LineKind
	switch d.mode {
	case ModeBuy:
		kind = KindBuy
	case ModeSell:
		kind = KindSell
	case ModeHorizontal:
		kind = KindAnnotation
	default:
		// trendline and fibonacci stay armed without placing anything
		return "", nil
	}

	price, ok, err := d.mapper.PixelToPrice(ctx, y)
	if err != nil {
		return "", err
	}
	if !ok {
		slog.Debug("chart click ignored", "y", y, "mode", d.mode)
		return "", nil
	}
	id, err := d.registry.AddLine(ctx, kind, price)
	if err != nil {
		return "", err
	}
	d.mode = ModeNone
	return id, nil
}
