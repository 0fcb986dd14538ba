package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// JSONLWriter handles async writing of JSON lines to date-organized files:
// <baseDir>/<YYYY-MM-DD>/<stream>/<fileBase>.jsonl
type JSONLWriter struct {
	baseDir     string
	stream      string
	fileBase    string
	maxSizeMB   int
	writeCh     chan any
	done        chan struct{}
	closed      atomic.Bool
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
}

// NewJSONLWriter creates a new async JSONL writer for stream.
func NewJSONLWriter(baseDir, stream, fileBase string, bufferSize, maxSizeMB int) *JSONLWriter {
	if fileBase == "" {
		fileBase = "journal"
	}
	w := &JSONLWriter{
		baseDir:   baseDir,
		stream:    stream,
		fileBase:  fileBase,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w
}

// Write queues a record for async writing
func (w *JSONLWriter) Write(record any) error {
	if w.closed.Load() {
		return fmt.Errorf("writer is closed")
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		// Channel full, log warning but don't block
		slog.Warn("JSONL write buffer full, dropping record",
			"stream", w.stream)
		return fmt.Errorf("buffer full")
	}
}

// Close shuts down the writer and flushes pending data
func (w *JSONLWriter) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.done)
	w.wg.Wait()

	// Drain remaining items with timeout
	timeout := time.After(5 * time.Second)
drain:
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-timeout:
			slog.Warn("JSONL writer close timeout, some records may be lost",
				"stream", w.stream)
			break drain
		default:
			break drain
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal record",
			"error", err,
			"stream", w.stream)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	currentDate := time.Now().UTC().Format("2006-01-02")
	if currentDate != w.currentDate || w.logger == nil {
		if err := w.rotateForDate(currentDate); err != nil {
			slog.Error("Failed to open JSONL file", "error", err, "stream", w.stream)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write record",
			"error", err,
			"stream", w.stream)
	}
}

func (w *JSONLWriter) rotateForDate(date string) error {
	if w.logger != nil {
		if err := w.logger.Close(); err != nil {
			slog.Debug("JSONL file close failed", "error", err, "stream", w.stream)
		}
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date, w.stream)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	filename := filepath.Join(dir, w.fileBase+".jsonl")

	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	w.currentDate = date
	slog.Info("Opened new JSONL file",
		"file", filename,
		"stream", w.stream)
	return nil
}
