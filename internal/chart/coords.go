package chart

import "context"

// Mapper converts between pixel rows and prices on the primary series.
type Mapper struct {
	surface Surface
	m       *SurfaceManager
}

func newMapper(s Surface, m *SurfaceManager) *Mapper {
	return &Mapper{surface: s, m: m}
}

// PixelToPrice maps y to a price on the two-decimal grid. ok is false when
// there is no data yet or y falls outside the rendered range.
func (mp *Mapper) PixelToPrice(ctx context.Context, y float64) (float64, bool, error) {
	if !mp.m.HasData() || y < 0 || y > float64(mp.m.Height()) {
		return 0, false, nil
	}
	price, ok, err := mp.surface.CoordinateToPrice(ctx, mp.m.primary, y)
	if err != nil {
		return 0, false, NewError(CodeSurfaceFailure, "coordinate to price", err)
	}
	if !ok || !validPrice(price) {
		return 0, false, nil
	}
	return roundPrice(price), true, nil
}

// PriceToPixel is the inverse of PixelToPrice.
func (mp *Mapper) PriceToPixel(ctx context.Context, price float64) (float64, bool, error) {
	if !mp.m.HasData() || !validPrice(price) {
		return 0, false, nil
	}
	y, ok, err := mp.surface.PriceToCoordinate(ctx, mp.m.primary, price)
	if err != nil {
		return 0, false, NewError(CodeSurfaceFailure, "price to coordinate", err)
	}
	return y, ok, nil
}
