package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFanOutAndUnsubscribe(t *testing.T) {
	b := NewBroker()
	id1, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	assert.Equal(t, 2, b.ClientCount())

	require.NoError(t, b.PublishJSON("bar", "c1", map[string]float64{"close": 2800}))
	for _, ch := range []<-chan Event{ch1, ch2} {
		evt := <-ch
		assert.Equal(t, "bar", evt.Type)
		assert.Equal(t, "c1", evt.ChartID)
		assert.JSONEq(t, `{"close":2800}`, evt.Payload)
	}

	b.Unsubscribe(id1)
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, 1, b.ClientCount())
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	_, ch := b.Subscribe()
	for i := 0; i < subscriberBufSize+5; i++ {
		b.Publish(Event{Type: "bar"})
	}
	assert.Len(t, ch, subscriberBufSize)
	assert.Equal(t, int64(5), b.Dropped())
}

func TestPublishJSONRejectsUnencodable(t *testing.T) {
	b := NewBroker()
	err := b.PublishJSON("bar", "c1", func() {})
	require.Error(t, err)
}

func TestFilterMatch(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events?charts=a,+b&types=bar", nil)
	f := FilterFromRequest(req)

	assert.True(t, f.Match(Event{Type: "bar", ChartID: "a"}))
	assert.True(t, f.Match(Event{Type: "bar", ChartID: "b"}))
	assert.False(t, f.Match(Event{Type: "bar", ChartID: "c"}))
	assert.False(t, f.Match(Event{Type: "order_confirmed", ChartID: "a"}))

	all := FilterFromRequest(httptest.NewRequest(http.MethodGet, "/events?charts=,", nil))
	assert.True(t, all.Match(Event{Type: "anything", ChartID: "x"}))
}

func waitForClients(t *testing.T, b *Broker, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestSSEHandlerStreamsFilteredEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?charts=c1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	waitForClients(t, b, 1)
	b.Publish(Event{Type: "bar", ChartID: "c2", Payload: `{"skip":true}`})
	b.Publish(Event{Type: "order_confirmed", ChartID: "c1", Payload: `{"price":2800}`})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 3 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, []string{"event: order_confirmed", "id: c1", `data: {"price":2800}`}, lines)
}

func TestWSHandlerStreamsEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(WSHandler(b))
	defer srv.Close()

	conn, _, _, err := ws.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"?types=line_drag_committed")
	require.NoError(t, err)
	defer conn.Close()

	waitForClients(t, b, 1)
	b.Publish(Event{Type: "bar", ChartID: "c1", Payload: `{}`})
	b.Publish(Event{Type: "line_drag_committed", ChartID: "c1", Payload: `{"line_id":"buy-1","price":2850}`})

	data, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)
	var got struct {
		Type    string          `json:"type"`
		ChartID string          `json:"chart_id"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "line_drag_committed", got.Type)
	assert.Equal(t, "c1", got.ChartID)
	assert.JSONEq(t, `{"line_id":"buy-1","price":2850}`, string(got.Data))

	require.NoError(t, conn.Close())
	waitForClients(t, b, 0)
}
