package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// PublishJSON marshals v and publishes it as an event of type typ.
func (b *Broker) PublishJSON(typ, chartID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("relay: marshal %s event: %w", typ, err)
	}
	b.Publish(Event{Type: typ, ChartID: chartID, Payload: string(data)})
	return nil
}

// Filter selects events by chart id and type. Empty sets accept everything.
type Filter struct {
	Charts map[string]bool
	Types  map[string]bool
}

// FilterFromRequest reads ?charts=a,b and ?types=x,y.
func FilterFromRequest(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{Charts: splitSet(q.Get("charts")), Types: splitSet(q.Get("types"))}
}

// Match reports whether evt passes the filter.
func (f Filter) Match(evt Event) bool {
	if f.Charts != nil && !f.Charts[evt.ChartID] {
		return false
	}
	if f.Types != nil && !f.Types[evt.Type] {
		return false
	}
	return true
}

func splitSet(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			set[part] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// wireEvent is the envelope streamed over the websocket.
type wireEvent struct {
	Type    string          `json:"type"`
	ChartID string          `json:"chart_id"`
	Data    json.RawMessage `json:"data"`
}

func (evt Event) wire() ([]byte, error) {
	return json.Marshal(wireEvent{Type: evt.Type, ChartID: evt.ChartID, Data: json.RawMessage(evt.Payload)})
}
