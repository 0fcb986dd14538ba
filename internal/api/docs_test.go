package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(newTestService(t))
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if !strings.Contains(body, "/events/ws") {
		t.Fatalf("docs missing event stream hint")
	}
}

func TestSurfacePageServed(t *testing.T) {
	h := NewServer(newTestService(t))
	req := httptest.NewRequest(http.MethodGet, "/surface?chart=abc", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "window.__qrdx") {
		t.Fatalf("surface page missing bridge")
	}
}
