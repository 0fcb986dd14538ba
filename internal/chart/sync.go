package chart

import (
	"context"
	"log/slog"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

type reservedSlot struct {
	price  float64
	handle Handle
}

// ExternalSync mirrors the order-entry panel's limit prices onto the chart.
// Its lines are separate from the Registry and never take part in pending
// order bookkeeping or drags.
type ExternalSync struct {
	surface *SurfaceManager
	styles  StyleSet
	buy     *reservedSlot
	sell    *reservedSlot
}

func newExternalSync(m *SurfaceManager, styles StyleSet) *ExternalSync {
	s := &ExternalSync{surface: m, styles: styles}
	m.OnRebuild(s.replay)
	return s
}

// SetBuyLimit mirrors the panel's buy limit. nil or non-positive clears it.
func (s *ExternalSync) SetBuyLimit(ctx context.Context, price *float64) error {
	return s.set(ctx, &s.buy, s.styles.BuyLimit, SideBuy, price)
}

// SetSellLimit mirrors the panel's sell limit. nil or non-positive clears it.
func (s *ExternalSync) SetSellLimit(ctx context.Context, price *float64) error {
	return s.set(ctx, &s.sell, s.styles.SellLimit, SideSell, price)
}

func (s *ExternalSync) set(ctx context.Context, slot **reservedSlot, style LineStyle, side string, price *float64) error {
	if cur := *slot; cur != nil {
		if err := s.surface.RemovePrimitive(ctx, cur.handle); err != nil {
			return err
		}
		*slot = nil
	}
	if price == nil || !validPrice(*price) {
		slog.Debug("reserved line cleared", "side", side)
		return nil
	}
	h, err := s.surface.AddPrimitive(ctx, style, *price)
	if err != nil {
		return err
	}
	*slot = &reservedSlot{price: *price, handle: h}
	slog.Debug("reserved line set", "side", side, "price", *price)
	return nil
}

// Lines returns the live reserved lines, buy first.
func (s *ExternalSync) Lines() []ReservedLine {
	out := make([]ReservedLine, 0, 2)
	if s.buy != nil {
		out = append(out, ReservedLine{Side: SideBuy, Price: s.buy.price})
	}
	if s.sell != nil {
		out = append(out, ReservedLine{Side: SideSell, Price: s.sell.price})
	}
	return out
}

func (s *ExternalSync) replay(ctx context.Context) error {
	if s.buy != nil {
		h, err := s.surface.AddPrimitive(ctx, s.styles.BuyLimit, s.buy.price)
		if err != nil {
			return err
		}
		s.buy.handle = h
	}
	if s.sell != nil {
		h, err := s.surface.AddPrimitive(ctx, s.styles.SellLimit, s.sell.price)
		if err != nil {
			return err
		}
		s.sell.handle = h
	}
	return nil
}
