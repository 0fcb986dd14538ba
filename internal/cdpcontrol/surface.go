package cdpcontrol

import (
	"context"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
)

// Surface renders one chart in its browser tab. It implements chart.Surface.
type Surface struct {
	client  *Client
	chartID string
}

// NewSurface opens the tab for chartID and returns its surface.
func (c *Client) NewSurface(ctx context.Context, chartID string, width, height int) (*Surface, error) {
	if _, err := c.OpenSurface(ctx, chartID, width, height); err != nil {
		return nil, err
	}
	return &Surface{client: c, chartID: chartID}, nil
}

func (s *Surface) ChartID() string { return s.chartID }

// Close closes the tab. The chart must already have destroyed the surface.
func (s *Surface) Close(ctx context.Context) error {
	return s.client.CloseSurface(ctx, s.chartID)
}

// Screenshot captures the tab as PNG.
func (s *Surface) Screenshot(ctx context.Context) ([]byte, error) {
	return s.client.Screenshot(ctx, s.chartID)
}

func (s *Surface) Size(ctx context.Context) (int, int, error) {
	var out struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := s.client.evalOnSurface(ctx, s.chartID, jsSize(), &out); err != nil {
		return 0, 0, err
	}
	return out.Width, out.Height, nil
}

func (s *Surface) Create(ctx context.Context, opts chart.SurfaceOptions) error {
	return s.client.evalOnSurface(ctx, s.chartID, jsCreate(opts), nil)
}

func (s *Surface) AddSeries(ctx context.Context, spec chart.SeriesSpec) (chart.SeriesID, error) {
	var id chart.SeriesID
	if err := s.client.evalOnSurface(ctx, s.chartID, jsAddSeries(spec), &id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Surface) SetBars(ctx context.Context, series chart.SeriesID, bars []chart.Bar) error {
	return s.client.evalOnSurface(ctx, s.chartID, jsSetBars(series, bars), nil)
}

func (s *Surface) SetPoints(ctx context.Context, series chart.SeriesID, points []chart.Point) error {
	return s.client.evalOnSurface(ctx, s.chartID, jsSetPoints(series, points), nil)
}

func (s *Surface) UpdateBar(ctx context.Context, series chart.SeriesID, bar chart.Bar) error {
	return s.client.evalOnSurface(ctx, s.chartID, jsUpdateBar(series, bar), nil)
}

func (s *Surface) UpdatePoint(ctx context.Context, series chart.SeriesID, p chart.Point) error {
	return s.client.evalOnSurface(ctx, s.chartID, jsUpdatePoint(series, p), nil)
}

func (s *Surface) FitContent(ctx context.Context) error {
	return s.client.evalOnSurface(ctx, s.chartID, jsFitContent(), nil)
}

func (s *Surface) CreatePriceLine(ctx context.Context, series chart.SeriesID, line chart.PriceLine) (chart.PrimitiveID, error) {
	var id chart.PrimitiveID
	if err := s.client.evalOnSurface(ctx, s.chartID, jsCreatePriceLine(series, line), &id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Surface) RemovePriceLine(ctx context.Context, series chart.SeriesID, id chart.PrimitiveID) error {
	return s.client.evalOnSurface(ctx, s.chartID, jsRemovePriceLine(series, id), nil)
}

type mapped struct {
	Value *float64 `json:"value"`
}

func (s *Surface) CoordinateToPrice(ctx context.Context, series chart.SeriesID, y float64) (float64, bool, error) {
	var out mapped
	if err := s.client.evalOnSurface(ctx, s.chartID, jsCoordinateToPrice(series, y), &out); err != nil {
		return 0, false, err
	}
	if out.Value == nil {
		return 0, false, nil
	}
	return *out.Value, true, nil
}

func (s *Surface) PriceToCoordinate(ctx context.Context, series chart.SeriesID, price float64) (float64, bool, error) {
	var out mapped
	if err := s.client.evalOnSurface(ctx, s.chartID, jsPriceToCoordinate(series, price), &out); err != nil {
		return 0, false, err
	}
	if out.Value == nil {
		return 0, false, nil
	}
	return *out.Value, true, nil
}

func (s *Surface) Destroy(ctx context.Context) error {
	return s.client.evalOnSurface(ctx, s.chartID, jsDestroy(), nil)
}
