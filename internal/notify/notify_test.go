package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
	"github.com/qrdx-org/qrdx-trade/internal/controller"
	"github.com/qrdx-org/qrdx-trade/internal/relay"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
	}
}

func TestSendPostsMessage(t *testing.T) {
	ctx := context.Background()

	var receivedMethod string
	var receivedPath string
	var receivedBody string
	var receivedContentType string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			receivedMethod = r.Method
			receivedPath = r.URL.Path
			receivedContentType = r.Header.Get("Content-Type")
			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			receivedBody = string(rawBody)
			return okResponse(), nil
		}),
	}

	if err := Send(ctx, client, "http://example.com/orders", "BUY 2800.00"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got, want := receivedMethod, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := receivedPath, "/orders"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if got, want := receivedContentType, "text/plain"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if got, want := receivedBody, "BUY 2800.00"; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	ctx := context.Background()

	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := Send(ctx, client, "http://example.com/orders", "x")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	err := Send(ctx, http.DefaultClient, "", "x")
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestOrderMessage(t *testing.T) {
	sl, tp := 2716.0, 2940.0
	got := OrderMessage(chart.OrderConfirmation{ChartID: "c1", Side: chart.SideBuy, Price: 2800, StopLoss: &sl, TakeProfit: &tp})
	if want := "BUY 2800.00 on chart c1, SL 2716.00, TP 2940.00"; got != want {
		t.Fatalf("OrderMessage() = %q; want %q", got, want)
	}

	got = OrderMessage(chart.OrderConfirmation{ChartID: "c2", Side: chart.SideSell, Price: 3100.5})
	if want := "SELL 3100.50 on chart c2"; got != want {
		t.Fatalf("OrderMessage() = %q; want %q", got, want)
	}
}

func TestForwardSendsOnlyConfirmedOrders(t *testing.T) {
	broker := relay.NewBroker()
	bodies := make(chan string, 4)
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(r.Body)
			bodies <- string(raw)
			return okResponse(), nil
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Forward(ctx, broker, client, "http://example.com/orders")
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for broker.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("forwarder never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	broker.Publish(relay.Event{Type: "bar", ChartID: "c1", Payload: `{}`})
	broker.Publish(relay.Event{Type: controller.EventOrderConfirmed, ChartID: "c1", Payload: `{"chart_id":"c1","side":"sell","price":3100}`})

	select {
	case body := <-bodies:
		if want := "SELL 3100.00 on chart c1"; body != want {
			t.Fatalf("body = %q; want %q", body, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
	}

	cancel()
	<-done
	if n := broker.ClientCount(); n != 0 {
		t.Fatalf("ClientCount() = %d after stop; want 0", n)
	}
	select {
	case body := <-bodies:
		t.Fatalf("unexpected extra notification %q", body)
	default:
	}
}
