package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func withDefaultHTTPClient(t *testing.T, transport http.RoundTripper) {
	t.Helper()
	origClient := http.DefaultClient
	t.Cleanup(func() {
		http.DefaultClient = origClient
	})
	http.DefaultClient = &http.Client{
		Transport: transport,
	}
}

// connectedClient returns a client whose CDP connection is one end of a pipe.
func connectedClient(t *testing.T, tabs map[string]*surfaceTab) *Client {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	c := NewClient("http://example.com", "http://example.com/surface", time.Second)
	c.cdp = newRawCDP("http://example.com")
	c.cdp.conn = local
	for id, tab := range tabs {
		c.tabs[id] = tab
	}
	return c
}

func TestListSurfacesWrapsListTargetsError(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/json/list" {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader(`oops`)),
			}, nil
		}
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(``))}, nil
	}))

	c := connectedClient(t, nil)
	_, err := c.ListSurfaces(context.Background())
	if err == nil {
		t.Fatal("expected ListSurfaces() to fail")
	}

	var codedErr *CodedError
	if !errors.As(err, &codedErr) {
		t.Fatalf("expected *CodedError, got %T", err)
	}
	if codedErr.Code != CodeCDPUnavailable {
		t.Fatalf("error code = %s; want %s", codedErr.Code, CodeCDPUnavailable)
	}
	if !strings.Contains(codedErr.Message, "failed to list targets") {
		t.Fatalf("error message = %q; want to contain %q", codedErr.Message, "failed to list targets")
	}
}

func TestListSurfacesPrunesVanishedTabs(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		payload, _ := json.Marshal([]map[string]any{
			{"id": "target-1", "type": "page", "url": "http://example.com/surface?chart=c1", "title": "qrdx surface"},
			{"id": "worker-1", "type": "service_worker", "url": "", "title": ""},
		})
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(string(payload)))}, nil
	}))

	c := connectedClient(t, map[string]*surfaceTab{
		"c1": {info: SurfaceInfo{ChartID: "c1", TargetID: "target-1"}},
		"c2": {info: SurfaceInfo{ChartID: "c2", TargetID: "target-2"}},
	})

	got, err := c.ListSurfaces(context.Background())
	if err != nil {
		t.Fatalf("ListSurfaces() = %v", err)
	}
	if len(got) != 1 || got[0].ChartID != "c1" || got[0].Title != "qrdx surface" {
		t.Fatalf("ListSurfaces() = %+v, want only c1", got)
	}
	if _, ok := c.tabs["c2"]; ok {
		t.Fatal("vanished tab c2 still tracked")
	}
}

func TestEvalOnUnknownSurface(t *testing.T) {
	c := NewClient("http://example.com", "http://example.com/surface", time.Second)
	err := c.evalOnSurface(context.Background(), "missing", jsSize(), nil)
	var codedErr *CodedError
	if !errors.As(err, &codedErr) || codedErr.Code != CodeSurfaceNotFound {
		t.Fatalf("evalOnSurface() = %v, want %s", err, CodeSurfaceNotFound)
	}
}

func TestShouldRetry(t *testing.T) {
	c := &Client{}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"cdp unavailable", newError(CodeCDPUnavailable, "x", nil), true},
		{"transient eval", newError(CodeEvalFailure, "x", errors.New("websocket: close 1006")), true},
		{"eval without cause", newError(CodeEvalFailure, "x", nil), false},
		{"script error", newError(CodeEvalFailure, "x", errors.New("TypeError: q is undefined")), false},
		{"timeout", newError(CodeEvalTimeout, "x", context.DeadlineExceeded), false},
		{"plain error", errors.New("eof"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.shouldRetry(tt.err); got != tt.want {
				t.Fatalf("shouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
