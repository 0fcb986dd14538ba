package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
	"github.com/qrdx-org/qrdx-trade/internal/controller"
	"github.com/qrdx-org/qrdx-trade/internal/relay"
)

// Send sends a message to the requested ntfy-style endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "qrdx-trade order")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// OrderMessage renders a confirmed order as one line of text.
func OrderMessage(o chart.OrderConfirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.2f on chart %s", strings.ToUpper(o.Side), o.Price, o.ChartID)
	if o.StopLoss != nil {
		fmt.Fprintf(&b, ", SL %.2f", *o.StopLoss)
	}
	if o.TakeProfit != nil {
		fmt.Fprintf(&b, ", TP %.2f", *o.TakeProfit)
	}
	return b.String()
}

// Forward posts every confirmed order published on broker to endpoint until
// ctx is done. Delivery failures are logged and skipped.
func Forward(ctx context.Context, broker *relay.Broker, client *http.Client, endpoint string) {
	id, events := broker.Subscribe()
	defer broker.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type != controller.EventOrderConfirmed {
				continue
			}
			var order chart.OrderConfirmation
			if err := json.Unmarshal([]byte(evt.Payload), &order); err != nil {
				slog.Warn("order notification decode failed", "chart_id", evt.ChartID, "error", err)
				continue
			}
			if err := Send(ctx, client, endpoint, OrderMessage(order)); err != nil {
				slog.Warn("order notification failed", "chart_id", evt.ChartID, "endpoint", endpoint, "error", err)
				continue
			}
			slog.Debug("order notification sent", "chart_id", evt.ChartID, "side", order.Side)
		}
	}
}
