package cdpcontrol

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestDetachAllLockedLogsDetachFailure(t *testing.T) {
	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	tab := &surfaceTab{sessionID: "session-1", info: SurfaceInfo{ChartID: "c1", TargetID: "target-1"}}
	client := &Client{
		cdp:  &rawCDP{},
		tabs: map[string]*surfaceTab{"c1": tab},
	}
	client.detachAllLocked()

	if !strings.Contains(buf.String(), "detach cleanup failed") {
		t.Fatalf("expected detach cleanup debug log, got %q", buf.String())
	}
	if tab.sessionID != "" {
		t.Fatalf("sessionID = %q, want cleared", tab.sessionID)
	}
}

func TestForgetSessionClearsOnlyMatchingTab(t *testing.T) {
	a := &surfaceTab{sessionID: "s-a", info: SurfaceInfo{ChartID: "a"}}
	b := &surfaceTab{sessionID: "s-b", info: SurfaceInfo{ChartID: "b"}}
	client := &Client{tabs: map[string]*surfaceTab{"a": a, "b": b}}

	client.forgetSession("s-b")

	if a.sessionID != "s-a" {
		t.Fatalf("tab a sessionID = %q, want s-a", a.sessionID)
	}
	if b.sessionID != "" {
		t.Fatalf("tab b sessionID = %q, want cleared", b.sessionID)
	}
}

func TestSurfaceURL(t *testing.T) {
	c := NewClient("http://127.0.0.1:9220", "http://127.0.0.1:8188/surface/", 0)
	if got := c.SurfaceURL("a b"); got != "http://127.0.0.1:8188/surface?chart=a+b" {
		t.Fatalf("SurfaceURL = %q", got)
	}
}
