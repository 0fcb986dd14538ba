package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/qrdx-org/qrdx-trade/internal/controller"
	"github.com/qrdx-org/qrdx-trade/internal/snapshot"
)

func snapshotImageURL(id string) string {
	return "/api/v1/snapshots/" + id + "/image"
}

func registerSnapshotHandlers(api huma.API, svc Service) {
	type shareOutput struct {
		Body struct {
			controller.ShareInfo
			ImageURL string `json:"image_url,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "share-chart", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/share", Summary: "Share chart", Description: "Turns on the share watermark and returns share and embed links.", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *chartIDInput) (*shareOutput, error) {
			info, err := svc.Share(ctx, input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &shareOutput{}
			out.Body.ShareInfo = info
			if info.Snapshot != nil {
				out.Body.ImageURL = snapshotImageURL(info.Snapshot.ID)
			}
			return out, nil
		})

	type takeSnapshotOutput struct {
		Body struct {
			Snapshot snapshot.SnapshotMeta `json:"snapshot"`
			URL      string                `json:"url"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "take-snapshot", Method: http.MethodPost, Path: "/api/v1/charts/{chart_id}/snapshot", Summary: "Take chart snapshot", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *chartIDInput) (*takeSnapshotOutput, error) {
			meta, err := svc.TakeSnapshot(ctx, input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &takeSnapshotOutput{}
			out.Body.Snapshot = meta
			out.Body.URL = snapshotImageURL(meta.ID)
			return out, nil
		})

	type listSnapshotsOutput struct {
		Body struct {
			Snapshots []snapshot.SnapshotMeta `json:"snapshots"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-snapshots", Method: http.MethodGet, Path: "/api/v1/snapshots", Summary: "List snapshots", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *struct {
			ChartID string `query:"chart_id" doc:"Only snapshots of this chart"`
		}) (*listSnapshotsOutput, error) {
			metas, err := svc.ListSnapshots(input.ChartID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listSnapshotsOutput{}
			out.Body.Snapshots = metas
			if out.Body.Snapshots == nil {
				out.Body.Snapshots = []snapshot.SnapshotMeta{}
			}
			return out, nil
		})

	type snapshotIDInput struct {
		SnapshotID string `path:"snapshot_id"`
	}
	type getSnapshotOutput struct {
		Body snapshot.SnapshotMeta
	}
	huma.Register(api, huma.Operation{OperationID: "get-snapshot-metadata", Method: http.MethodGet, Path: "/api/v1/snapshots/{snapshot_id}/metadata", Summary: "Get snapshot metadata", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*getSnapshotOutput, error) {
			meta, err := svc.GetSnapshot(input.SnapshotID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &getSnapshotOutput{Body: meta}, nil
		})

	type snapshotImageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/snapshots/{snapshot_id}/image",
		Summary:     "Get snapshot image",
		Tags:        []string{"Snapshots"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Snapshot image",
				Content: map[string]*huma.MediaType{
					"image/png": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *snapshotIDInput) (*snapshotImageOutput, error) {
		data, format, err := svc.ReadSnapshotImage(input.SnapshotID)
		if err != nil {
			return nil, mapErr(err)
		}
		ct := "image/png"
		if format == "jpeg" {
			ct = "image/jpeg"
		}
		return &snapshotImageOutput{ContentType: ct, Body: data}, nil
	})

	huma.Register(api, huma.Operation{OperationID: "delete-snapshot", Method: http.MethodDelete, Path: "/api/v1/snapshots/{snapshot_id}", Summary: "Delete snapshot", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*statusOutput, error) {
			if err := svc.DeleteSnapshot(input.SnapshotID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("deleted"), nil
		})
}
