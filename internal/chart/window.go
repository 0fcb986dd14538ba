package chart

import (
	"context"
	"sync"
)

// MoveListener receives pointer-move events anywhere in the window.
type MoveListener func(ctx context.Context, y float64)

// UpListener receives pointer-up events anywhere in the window.
type UpListener func(ctx context.Context)

// Window dispatches window-level pointer events to registered listeners.
// Listeners run on the dispatching goroutine without the window lock held.
type Window struct {
	mu     sync.Mutex
	nextID int
	moves  map[int]MoveListener
	ups    map[int]UpListener
}

func NewWindow() *Window {
	return &Window{moves: make(map[int]MoveListener), ups: make(map[int]UpListener)}
}

// OnPointerMove registers fn and returns its deregistration func.
func (w *Window) OnPointerMove(fn MoveListener) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.moves[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.moves, id)
		w.mu.Unlock()
	}
}

// OnPointerUp registers fn and returns its deregistration func.
func (w *Window) OnPointerUp(fn UpListener) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.ups[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.ups, id)
		w.mu.Unlock()
	}
}

func (w *Window) DispatchMove(ctx context.Context, y float64) {
	w.mu.Lock()
	fns := make([]MoveListener, 0, len(w.moves))
	for _, fn := range w.moves {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(ctx, y)
	}
}

func (w *Window) DispatchUp(ctx context.Context) {
	w.mu.Lock()
	fns := make([]UpListener, 0, len(w.ups))
	for _, fn := range w.ups {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// ListenerCount returns the number of registered move and up listeners.
func (w *Window) ListenerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.moves) + len(w.ups)
}
