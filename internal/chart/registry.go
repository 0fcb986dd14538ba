package chart

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Registry owns every user-placed order line and the primitive drawn for it.
type Registry struct {
	surface *SurfaceManager
	styles  StyleSet
	lines   map[string]*OrderLine
	seq     int
}

func newRegistry(m *SurfaceManager, styles StyleSet) *Registry {
	r := &Registry{surface: m, styles: styles, lines: make(map[string]*OrderLine)}
	m.OnRebuild(r.replay)
	return r
}

// AddLine draws a new line of kind at price and returns its id.
func (r *Registry) AddLine(ctx context.Context, kind LineKind, price float64) (string, error) {
	if !kind.Valid() {
		return "", NewError(CodeValidation, fmt.Sprintf("unknown line kind %q", kind), nil)
	}
	if !validPrice(price) {
		return "", NewError(CodeValidation, "price must be a positive number", nil)
	}
	h, err := r.surface.AddPrimitive(ctx, r.styles.For(kind), price)
	if err != nil {
		return "", err
	}
	r.seq++
	line := &OrderLine{ID: fmt.Sprintf("%s-%d", kind, r.seq), Kind: kind, Price: price, handle: h, seq: r.seq}
	r.lines[line.ID] = line
	slog.Debug("order line added", "line_id", line.ID, "kind", kind, "price", price)
	return line.ID, nil
}

// UpdateLinePrice replaces the primitive of id with one at price. The id and
// kind are unchanged.
func (r *Registry) UpdateLinePrice(ctx context.Context, id string, price float64) error {
	line, ok := r.lines[id]
	if !ok {
		return NewError(CodeLineNotFound, fmt.Sprintf("line %q not found", id), nil)
	}
	if !validPrice(price) {
		return NewError(CodeValidation, "price must be a positive number", nil)
	}
	if err := r.surface.RemovePrimitive(ctx, line.handle); err != nil {
		return err
	}
	line.handle = Handle{}
	h, err := r.surface.AddPrimitive(ctx, r.styles.For(line.Kind), price)
	if err != nil {
		return err
	}
	line.handle = h
	line.Price = price
	return nil
}

// RemoveLine erases id from the surface and the registry.
func (r *Registry) RemoveLine(ctx context.Context, id string) error {
	line, ok := r.lines[id]
	if !ok {
		return NewError(CodeLineNotFound, fmt.Sprintf("line %q not found", id), nil)
	}
	if err := r.surface.RemovePrimitive(ctx, line.handle); err != nil {
		return err
	}
	delete(r.lines, id)
	slog.Debug("order line removed", "line_id", id, "kind", line.Kind)
	return nil
}

// ClearAll removes every line. Pending bookkeeping is empty afterwards.
func (r *Registry) ClearAll(ctx context.Context) error {
	var firstErr error
	for id, line := range r.lines {
		if err := r.surface.RemovePrimitive(ctx, line.handle); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.lines, id)
	}
	return firstErr
}

// Line returns a copy of the line with id.
func (r *Registry) Line(id string) (OrderLine, bool) {
	line, ok := r.lines[id]
	if !ok {
		return OrderLine{}, false
	}
	return *line, true
}

// Lines returns every line in placement order.
func (r *Registry) Lines() []OrderLine {
	out := make([]OrderLine, 0, len(r.lines))
	for _, line := range r.lines {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Registry) Len() int { return len(r.lines) }

// Pending derives the order slots from the newest line of each kind.
func (r *Registry) Pending() PendingOrder {
	newest := make(map[LineKind]*OrderLine)
	for _, line := range r.lines {
		if cur, ok := newest[line.Kind]; !ok || line.seq > cur.seq {
			newest[line.Kind] = line
		}
	}
	var p PendingOrder
	if l, ok := newest[KindBuy]; ok {
		p.Buy = floatPtr(l.Price)
	}
	if l, ok := newest[KindSell]; ok {
		p.Sell = floatPtr(l.Price)
	}
	if l, ok := newest[KindStopLoss]; ok {
		p.StopLoss = floatPtr(l.Price)
	}
	if l, ok := newest[KindTakeProfit]; ok {
		p.TakeProfit = floatPtr(l.Price)
	}
	return p
}

func (r *Registry) has(kind LineKind) bool {
	for _, line := range r.lines {
		if line.Kind == kind {
			return true
		}
	}
	return false
}

// replay redraws every line after a surface rebuild.
func (r *Registry) replay(ctx context.Context) error {
	for _, line := range r.Lines() {
		h, err := r.surface.AddPrimitive(ctx, r.styles.For(line.Kind), line.Price)
		if err != nil {
			return err
		}
		r.lines[line.ID].handle = h
	}
	return nil
}
