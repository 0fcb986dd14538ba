package relay

import (
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSHandler streams chart events over a websocket as JSON text frames
// {type, chart_id, data}. It takes the same query filters as SSEHandler.
func WSHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := FilterFromRequest(r)
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("relay websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		// Client frames are discarded; a read error means the peer left.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !filter.Match(evt) {
					continue
				}
				frame, err := evt.wire()
				if err != nil {
					slog.Warn("relay event encode failed", "type", evt.Type, "error", err)
					continue
				}
				if err := wsutil.WriteServerText(conn, frame); err != nil {
					slog.Debug("relay websocket write failed", "error", err)
					return
				}
			}
		}
	}
}
