package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
)

type lineIDInput struct {
	ChartID string `path:"chart_id"`
	LineID  string `path:"line_id"`
}

type lineOutput struct {
	Body struct {
		ChartID string `json:"chart_id"`
		LineID  string `json:"line_id"`
	}
}

func newLineOutput(chartID, lineID string) *lineOutput {
	out := &lineOutput{}
	out.Body.ChartID = chartID
	out.Body.LineID = lineID
	return out
}

// registerInputHandlers covers the pointer surface: tool selection, canvas
// clicks and line drags.
func registerInputHandlers(api huma.API, svc Service) {
	type modeOutput struct {
		Body struct {
			ChartID string            `json:"chart_id"`
			Mode    chart.DrawingMode `json:"mode"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "toggle-mode", Method: http.MethodPut, Path: "/api/v1/charts/{chart_id}/mode", Summary: "Toggle drawing mode", Description: "Selecting the armed mode again disarms it.", Tags: []string{"Input"}},
		func(ctx context.Context, input *struct {
			ChartID string `path:"chart_id"`
			Body    struct {
				Mode chart.DrawingMode `json:"mode" enum:"none,buy,sell,horizontal,trendline,fibonacci"`
			}
		}) (*modeOutput, error) {
			mode, err := svc.ToggleMode(input.ChartID, input.Body.Mode)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &modeOutput{}
			out.Body.ChartID = input.ChartID
			out.Body.Mode = mode
			return out, nil
		})

	type clickOutput struct {
		Body struct {
			ChartID string `json:"chart_id"`
			Placed  bool   `json:"placed"`
			LineID  string `json:"line_id,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "chart-click", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/click", Summary: "Click the chart canvas", Tags: []string{"Input"}},
		func(ctx context.Context, input *struct {
			ChartID string `path:"chart_id"`
			Body    struct {
				Y float64 `json:"y" doc:"Row in surface pixels"`
			}
		}) (*clickOutput, error) {
			id, err := svc.Click(ctx, input.ChartID, input.Body.Y)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &clickOutput{}
			out.Body.ChartID = input.ChartID
			out.Body.Placed = id != ""
			out.Body.LineID = id
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "begin-drag", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/lines/{line_id}/drag", Summary: "Press on a line row", Tags: []string{"Input"}},
		func(ctx context.Context, input *lineIDInput) (*statusOutput, error) {
			if err := svc.BeginDrag(input.ChartID, input.LineID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("dragging"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "pointer-move", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/pointer/move", Summary: "Window pointer move", Tags: []string{"Input"}},
		func(ctx context.Context, input *struct {
			ChartID string `path:"chart_id"`
			Body    struct {
				Y float64 `json:"y"`
			}
		}) (*statusOutput, error) {
			if err := svc.PointerMove(ctx, input.ChartID, input.Body.Y); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("ok"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "pointer-up", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/pointer/up", Summary: "Window pointer release", Tags: []string{"Input"}},
		func(ctx context.Context, input *chartIDInput) (*statusOutput, error) {
			if err := svc.PointerUp(ctx, input.ChartID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("ok"), nil
		})
}

func registerLineHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "add-line", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/lines", Summary: "Add order line", Tags: []string{"Lines"}},
		func(ctx context.Context, input *struct {
			ChartID string `path:"chart_id"`
			Body    struct {
				Kind  chart.LineKind `json:"kind" enum:"buy,sell,stop-loss,take-profit,annotation"`
				Price float64        `json:"price"`
			}
		}) (*lineOutput, error) {
			id, err := svc.AddLine(ctx, input.ChartID, input.Body.Kind, input.Body.Price)
			if err != nil {
				return nil, mapErr(err)
			}
			return newLineOutput(input.ChartID, id), nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-line-price", Method: http.MethodPut, Path: "/api/v1/charts/{chart_id}/lines/{line_id}", Summary: "Move order line", Tags: []string{"Lines"}},
		func(ctx context.Context, input *struct {
			ChartID string `path:"chart_id"`
			LineID  string `path:"line_id"`
			Body    struct {
				Price float64 `json:"price"`
			}
		}) (*lineOutput, error) {
			if err := svc.SetLinePrice(ctx, input.ChartID, input.LineID, input.Body.Price); err != nil {
				return nil, mapErr(err)
			}
			return newLineOutput(input.ChartID, input.LineID), nil
		})

	huma.Register(api, huma.Operation{OperationID: "remove-line", Method: http.MethodDelete, Path: "/api/v1/charts/{chart_id}/lines/{line_id}", Summary: "Remove order line", Tags: []string{"Lines"}},
		func(ctx context.Context, input *lineIDInput) (*statusOutput, error) {
			if err := svc.RemoveLine(ctx, input.ChartID, input.LineID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("removed"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-lines", Method: http.MethodDelete, Path: "/api/v1/charts/{chart_id}/lines", Summary: "Remove all order lines", Tags: []string{"Lines"}},
		func(ctx context.Context, input *chartIDInput) (*statusOutput, error) {
			if err := svc.ClearLines(ctx, input.ChartID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("cleared"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "add-stop-loss", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/stop-loss", Summary: "Add stop-loss from the entry line", Tags: []string{"Orders"}},
		func(ctx context.Context, input *chartIDInput) (*lineOutput, error) {
			id, err := svc.AddStopLoss(ctx, input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			return newLineOutput(input.ChartID, id), nil
		})

	huma.Register(api, huma.Operation{OperationID: "add-take-profit", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/take-profit", Summary: "Add take-profit from the entry line", Tags: []string{"Orders"}},
		func(ctx context.Context, input *chartIDInput) (*lineOutput, error) {
			id, err := svc.AddTakeProfit(ctx, input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			return newLineOutput(input.ChartID, id), nil
		})

	type confirmOutput struct {
		Body struct {
			ChartID   string                   `json:"chart_id"`
			Confirmed bool                     `json:"confirmed"`
			Order     *chart.OrderConfirmation `json:"order,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "confirm-order", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/confirm", Summary: "Confirm pending order", Description: "Emits the order and clears every user line. Without an entry line nothing happens.", Tags: []string{"Orders"}},
		func(ctx context.Context, input *chartIDInput) (*confirmOutput, error) {
			conf, err := svc.ConfirmOrder(ctx, input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &confirmOutput{}
			out.Body.ChartID = input.ChartID
			out.Body.Confirmed = conf != nil
			out.Body.Order = conf
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-external-limits", Method: http.MethodPut, Path: "/api/v1/charts/{chart_id}/external", Summary: "Mirror order-entry limit prices", Description: "An omitted or non-positive limit clears that side.", Tags: []string{"Orders"}},
		func(ctx context.Context, input *struct {
			ChartID string `path:"chart_id"`
			Body    struct {
				BuyLimit  *float64 `json:"buy_limit,omitempty"`
				SellLimit *float64 `json:"sell_limit,omitempty"`
			}
		}) (*chartStateOutput, error) {
			st, err := svc.SetExternal(ctx, input.ChartID, input.Body.BuyLimit, input.Body.SellLimit)
			if err != nil {
				return nil, mapErr(err)
			}
			return &chartStateOutput{Body: st}, nil
		})
}
