package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qrdx-org/qrdx-trade/internal/cdpcontrol"
	"github.com/qrdx-org/qrdx-trade/internal/chart"
	"github.com/qrdx-org/qrdx-trade/internal/controller"
	"github.com/qrdx-org/qrdx-trade/internal/relay"
	"github.com/qrdx-org/qrdx-trade/internal/snapshot"
)

// Service is the chart engine the HTTP layer drives.
type Service interface {
	Broker() *relay.Broker

	CreateChart(ctx context.Context, params chart.Params) (chart.State, error)
	ListCharts() []chart.State
	GetChart(id string) (chart.State, error)
	CloseChart(ctx context.Context, id string) error
	SetParams(ctx context.Context, id string, params chart.Params) (chart.State, error)
	Bars(id string) ([]chart.Bar, error)
	Resize(ctx context.Context, id string, width, height int) (chart.State, error)

	ToggleMode(id string, mode chart.DrawingMode) (chart.DrawingMode, error)
	Click(ctx context.Context, id string, y float64) (string, error)
	BeginDrag(id, lineID string) error
	PointerMove(ctx context.Context, id string, y float64) error
	PointerUp(ctx context.Context, id string) error
	PriceToPixel(ctx context.Context, id string, price float64) (float64, bool, error)

	AddLine(ctx context.Context, id string, kind chart.LineKind, price float64) (string, error)
	SetLinePrice(ctx context.Context, id, lineID string, price float64) error
	RemoveLine(ctx context.Context, id, lineID string) error
	ClearLines(ctx context.Context, id string) error
	AddStopLoss(ctx context.Context, id string) (string, error)
	AddTakeProfit(ctx context.Context, id string) (string, error)
	ConfirmOrder(ctx context.Context, id string) (*chart.OrderConfirmation, error)
	SetExternal(ctx context.Context, id string, buy, sell *float64) (chart.State, error)

	Share(ctx context.Context, id string) (controller.ShareInfo, error)
	TakeSnapshot(ctx context.Context, id string) (snapshot.SnapshotMeta, error)
	ListSnapshots(chartID string) ([]snapshot.SnapshotMeta, error)
	GetSnapshot(id string) (snapshot.SnapshotMeta, error)
	ReadSnapshotImage(id string) ([]byte, string, error)
	DeleteSnapshot(id string) error
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("qrdx-trade chart API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/surface", cdpcontrol.ServeSurfacePage)
	router.Get("/events", relay.SSEHandler(svc.Broker()))
	router.Get("/events/ws", relay.WSHandler(svc.Broker()))

	registerHealthHandlers(api, svc)
	registerChartHandlers(api, svc)
	registerInputHandlers(api, svc)
	registerLineHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status  string `json:"status"`
			Charts  int    `json:"charts"`
			Clients int    `json:"event_clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Charts = len(svc.ListCharts())
			out.Body.Clients = svc.Broker().ClientCount()
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *chart.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case chart.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case chart.CodeChartNotFound, chart.CodeLineNotFound, controller.CodeSnapshotNotFound:
			return huma.Error404NotFound(coded.Message)
		case chart.CodeChartClosed:
			return huma.Error409Conflict(coded.Message)
		case chart.CodeAPIUnavailable:
			return huma.Error502BadGateway(coded.Message)
		case chart.CodeSurfaceFailure:
			// The surface error usually wraps the browser failure; surface that.
			if mapped := mapCDPErr(coded.Cause); mapped != nil {
				return mapped
			}
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	if mapped := mapCDPErr(err); mapped != nil {
		return mapped
	}
	return huma.Error500InternalServerError(err.Error())
}

func mapCDPErr(err error) error {
	var coded *cdpcontrol.CodedError
	if !errors.As(err, &coded) {
		return nil
	}
	switch coded.Code {
	case cdpcontrol.CodeValidation:
		return huma.Error400BadRequest(coded.Message)
	case cdpcontrol.CodeSurfaceNotFound:
		return huma.Error404NotFound(coded.Message)
	case cdpcontrol.CodeEvalTimeout:
		return huma.Error504GatewayTimeout(coded.Message)
	case cdpcontrol.CodeAPIUnavailable, cdpcontrol.CodeCDPUnavailable, cdpcontrol.CodeEvalFailure:
		return huma.Error502BadGateway(coded.Message)
	default:
		return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
	}
}
