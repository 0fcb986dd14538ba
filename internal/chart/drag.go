package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DragController holds the single active line drag.
type DragController struct {
	state    *DragState
	mapper   *Mapper
	registry *Registry
}

func newDragController(mapper *Mapper, registry *Registry) *DragController {
	return &DragController{mapper: mapper, registry: registry}
}

// Active returns a copy of the drag state, nil when idle.
func (d *DragController) Active() *DragState {
	if d.state == nil {
		return nil
	}
	s := *d.state
	return &s
}

// Begin arms a drag of the user line id.
func (d *DragController) Begin(id string) error {
	if d.state != nil {
		return NewError(CodeValidation, fmt.Sprintf("line %q is already being dragged", d.state.LineID), nil)
	}
	line, ok := d.registry.Line(id)
	if !ok {
		return NewError(CodeLineNotFound, fmt.Sprintf("line %q not found", id), nil)
	}
	d.state = &DragState{LineID: id, OriginPrice: line.Price}
	slog.Debug("line drag started", "line_id", id, "price", line.Price)
	return nil
}

// Move follows the pointer to row y. Unmappable rows are ignored.
func (d *DragController) Move(ctx context.Context, y float64) error {
	if d.state == nil {
		return nil
	}
	price, ok, err := d.mapper.PixelToPrice(ctx, y)
	if err != nil || !ok {
		return err
	}
	if err := d.registry.UpdateLinePrice(ctx, d.state.LineID, price); err != nil {
		var ce *CodedError
		if errors.As(err, &ce) && ce.Code == CodeLineNotFound {
			// the line was removed mid-drag
			d.state = nil
			return nil
		}
		return err
	}
	return nil
}

// End clears the drag. committed is false when no drag was active or the
// line no longer exists.
func (d *DragController) End() (line OrderLine, origin float64, committed bool) {
	st := d.state
	d.state = nil
	if st == nil {
		return OrderLine{}, 0, false
	}
	line, ok := d.registry.Line(st.LineID)
	if !ok {
		return OrderLine{}, 0, false
	}
	slog.Debug("line drag committed", "line_id", line.ID, "origin_price", st.OriginPrice, "price", line.Price)
	return line, st.OriginPrice, true
}

// Cancel drops the drag without a commit.
func (d *DragController) Cancel() { d.state = nil }
