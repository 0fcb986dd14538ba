package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
)

type chartIDInput struct {
	ChartID string `path:"chart_id"`
}

type chartStateOutput struct {
	Body chart.State
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func newStatus(status string) *statusOutput {
	out := &statusOutput{}
	out.Body.Status = status
	return out
}

func registerChartHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "create-chart", Method: http.MethodPost, Path: "/api/v1/charts", Summary: "Create chart instance", Tags: []string{"Charts"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Symbol         string          `json:"symbol" example:"QRDX/USDT"`
				ReferencePrice float64         `json:"reference_price" doc:"Last traded price the series is anchored on" example:"3000"`
				ChangePercent  float64         `json:"change_percent,omitempty" doc:"24h change in percent"`
				Timeframe      chart.Timeframe `json:"timeframe,omitempty" doc:"Bar interval" enum:"1,5,15,60,240,D,W"`
				ChartType      chart.ChartType `json:"chart_type,omitempty" enum:"candlestick,bar,line,area"`
				OverlayVisible bool            `json:"overlay_visible,omitempty" doc:"Show the comparison overlay line"`
			}
		}) (*chartStateOutput, error) {
			st, err := svc.CreateChart(ctx, chart.Params{
				Symbol:         input.Body.Symbol,
				ReferencePrice: input.Body.ReferencePrice,
				ChangePercent:  input.Body.ChangePercent,
				Timeframe:      input.Body.Timeframe,
				ChartType:      input.Body.ChartType,
				OverlayVisible: input.Body.OverlayVisible,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &chartStateOutput{Body: st}, nil
		})

	type listChartsOutput struct {
		Body struct {
			Charts []chart.State `json:"charts"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-charts", Method: http.MethodGet, Path: "/api/v1/charts", Summary: "List chart instances", Tags: []string{"Charts"}},
		func(ctx context.Context, input *struct{}) (*listChartsOutput, error) {
			out := &listChartsOutput{}
			out.Body.Charts = svc.ListCharts()
			if out.Body.Charts == nil {
				out.Body.Charts = []chart.State{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-chart", Method: http.MethodGet, Path: "/api/v1/charts/{chart_id}", Summary: "Get chart state", Tags: []string{"Charts"}},
		func(ctx context.Context, input *chartIDInput) (*chartStateOutput, error) {
			st, err := svc.GetChart(input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &chartStateOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "close-chart", Method: http.MethodDelete, Path: "/api/v1/charts/{chart_id}", Summary: "Close chart instance", Tags: []string{"Charts"}},
		func(ctx context.Context, input *chartIDInput) (*statusOutput, error) {
			if err := svc.CloseChart(ctx, input.ChartID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("closed"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-params", Method: http.MethodPut, Path: "/api/v1/charts/{chart_id}/params", Summary: "Change display parameters", Description: "Omitted fields keep their current value. Any change regenerates the series and cancels an active drag.", Tags: []string{"Charts"}},
		func(ctx context.Context, input *struct {
			ChartID string `path:"chart_id"`
			Body    struct {
				Symbol         *string          `json:"symbol,omitempty"`
				ReferencePrice *float64         `json:"reference_price,omitempty"`
				ChangePercent  *float64         `json:"change_percent,omitempty"`
				Timeframe      *chart.Timeframe `json:"timeframe,omitempty" enum:"1,5,15,60,240,D,W"`
				ChartType      *chart.ChartType `json:"chart_type,omitempty" enum:"candlestick,bar,line,area"`
				OverlayVisible *bool            `json:"overlay_visible,omitempty"`
			}
		}) (*chartStateOutput, error) {
			cur, err := svc.GetChart(input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			p := cur.Params
			b := input.Body
			if b.Symbol != nil {
				p.Symbol = *b.Symbol
			}
			if b.ReferencePrice != nil {
				p.ReferencePrice = *b.ReferencePrice
			}
			if b.ChangePercent != nil {
				p.ChangePercent = *b.ChangePercent
			}
			if b.Timeframe != nil {
				p.Timeframe = *b.Timeframe
			}
			if b.ChartType != nil {
				p.ChartType = *b.ChartType
			}
			if b.OverlayVisible != nil {
				p.OverlayVisible = *b.OverlayVisible
			}
			st, err := svc.SetParams(ctx, input.ChartID, p)
			if err != nil {
				return nil, mapErr(err)
			}
			return &chartStateOutput{Body: st}, nil
		})

	type barsOutput struct {
		Body struct {
			ChartID string      `json:"chart_id"`
			Bars    []chart.Bar `json:"bars"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-bars", Method: http.MethodGet, Path: "/api/v1/charts/{chart_id}/bars", Summary: "Get the generated series", Tags: []string{"Charts"}},
		func(ctx context.Context, input *chartIDInput) (*barsOutput, error) {
			bars, err := svc.Bars(input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &barsOutput{}
			out.Body.ChartID = input.ChartID
			out.Body.Bars = bars
			if out.Body.Bars == nil {
				out.Body.Bars = []chart.Bar{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "resize-chart", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/resize", Summary: "Resize the render surface", Description: "A chart whose surface was zero-sized renders once it gets a non-zero size.", Tags: []string{"Charts"}},
		func(ctx context.Context, input *struct {
			ChartID string `path:"chart_id"`
			Body    struct {
				Width  int `json:"width" minimum:"0"`
				Height int `json:"height" minimum:"0"`
			}
		}) (*chartStateOutput, error) {
			st, err := svc.Resize(ctx, input.ChartID, input.Body.Width, input.Body.Height)
			if err != nil {
				return nil, mapErr(err)
			}
			return &chartStateOutput{Body: st}, nil
		})

	type pixelOutput struct {
		Body struct {
			Price  float64 `json:"price"`
			Y      float64 `json:"y"`
			InView bool    `json:"in_view"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "price-to-pixel", Method: http.MethodGet, Path: "/api/v1/charts/{chart_id}/pixel", Summary: "Map a price to a surface row", Tags: []string{"Charts"}},
		func(ctx context.Context, input *struct {
			ChartID string  `path:"chart_id"`
			Price   float64 `query:"price" required:"true"`
		}) (*pixelOutput, error) {
			y, ok, err := svc.PriceToPixel(ctx, input.ChartID, input.Price)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pixelOutput{}
			out.Body.Price = input.Price
			out.Body.Y = y
			out.Body.InView = ok
			return out, nil
		})
}
