package storage

import (
	"log/slog"
	"sync"
	"time"
)

// Journal streams.
const (
	StreamOrders = "orders"
	StreamDrags  = "drags"
	StreamCharts = "charts"
)

// Entry is one journal line.
type Entry struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	ChartID string    `json:"chart_id"`
	Data    any       `json:"data,omitempty"`
}

// Journal is the append-only record of outbound chart callbacks, one
// JSONLWriter per stream. It is never read back.
type Journal struct {
	baseDir    string
	fileBase   string
	maxSizeMB  int
	bufferSize int
	now        func() time.Time

	writers map[string]*JSONLWriter
	mu      sync.Mutex
	closed  bool
}

// NewJournal creates a journal rooted at baseDir. fileBase names the files
// inside each stream directory, typically the process start time.
func NewJournal(baseDir, fileBase string, bufferSize, maxSizeMB int) *Journal {
	return &Journal{
		baseDir:    baseDir,
		fileBase:   fileBase,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		now:        time.Now,
		writers:    make(map[string]*JSONLWriter),
	}
}

// Record appends an entry to stream. Failures are logged, never returned:
// the journal must not block or fail a chart operation.
func (j *Journal) Record(stream, typ, chartID string, data any) {
	w := j.writer(stream)
	if w == nil {
		return
	}
	entry := Entry{Time: j.now().UTC(), Type: typ, ChartID: chartID, Data: data}
	if err := w.Write(entry); err != nil {
		slog.Warn("journal record dropped", "stream", stream, "type", typ, "chart_id", chartID, "error", err)
	}
}

func (j *Journal) writer(stream string) *JSONLWriter {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if w, ok := j.writers[stream]; ok {
		return w
	}
	w := NewJSONLWriter(j.baseDir, stream, j.fileBase, j.bufferSize, j.maxSizeMB)
	j.writers[stream] = w
	slog.Debug("journal stream opened", "stream", stream)
	return w
}

// Close flushes and closes every stream writer.
func (j *Journal) Close() error {
	j.mu.Lock()
	j.closed = true
	writers := j.writers
	j.writers = make(map[string]*JSONLWriter)
	j.mu.Unlock()

	var firstErr error
	for stream, w := range writers {
		if err := w.Close(); err != nil {
			slog.Error("journal stream close failed", "stream", stream, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
