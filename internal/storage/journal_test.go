package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestJournalWritesStreamsByDate(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "run-1", 16, 1)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	j.Record(StreamOrders, "order_confirmed", "c1", map[string]any{"side": "buy", "price": 2800.0})
	j.Record(StreamOrders, "order_confirmed", "c1", map[string]any{"side": "sell", "price": 2900.0})
	j.Record(StreamDrags, "line_drag_committed", "c2", map[string]any{"line_id": "buy-1"})
	require.NoError(t, j.Close())

	date := time.Now().UTC().Format("2006-01-02")
	orders := readLines(t, filepath.Join(dir, date, StreamOrders, "run-1.jsonl"))
	require.Len(t, orders, 2)
	assert.Equal(t, "order_confirmed", orders[0].Type)
	assert.Equal(t, "c1", orders[0].ChartID)
	assert.True(t, fixed.Equal(orders[0].Time))

	drags := readLines(t, filepath.Join(dir, date, StreamDrags, "run-1.jsonl"))
	require.Len(t, drags, 1)
	assert.Equal(t, "c2", drags[0].ChartID)
}

func TestJournalIgnoresRecordsAfterClose(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "", 4, 1)
	require.NoError(t, j.Close())
	j.Record(StreamCharts, "chart_created", "c1", nil)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJSONLWriterRejectsAfterClose(t *testing.T) {
	w := NewJSONLWriter(t.TempDir(), "orders", "", 1, 1)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.Write(map[string]int{"a": 1}))
}
