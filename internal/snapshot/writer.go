package snapshot

import (
	"log"
	"sync"
	"time"
)

// DefaultDebounce is the trailing-edge coalescing window for persistence
// writes.
const DefaultDebounce = 500 * time.Millisecond

// Saver persists an encoded snapshot.
type Saver interface {
	Save(Snapshot) error
}

// Writer coalesces snapshot writes with a trailing-edge debounce: a burst
// of mutations inside the window produces exactly one write, reflecting
// only the last state. Flush is the immediate path for writes that must be
// durable before a destructive transition.
type Writer struct {
	mu      sync.Mutex
	delay   time.Duration
	capture func() Snapshot
	saver   Saver
	timer   *time.Timer
	closed  bool
}

// NewWriter creates a Writer. capture is called at fire time so the write
// reflects the state at the end of the burst, not the start.
func NewWriter(capture func() Snapshot, saver Saver, delay time.Duration) *Writer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Writer{delay: delay, capture: capture, saver: saver}
}

// Arm schedules a write after the debounce window, pushing out any write
// already pending.
func (w *Writer) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Reset(w.delay)
		return
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

// Flush cancels any pending write and persists immediately.
func (w *Writer) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	w.write()
}

// Close force-flushes a pending write and stops the writer. Further Arm
// calls are ignored.
func (w *Writer) Close() {
	w.mu.Lock()
	pending := w.timer != nil
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.closed = true
	w.mu.Unlock()
	if pending {
		w.write()
	}
}

func (w *Writer) fire() {
	w.mu.Lock()
	w.timer = nil
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	w.write()
}

// write captures and saves. Storage failures are logged and swallowed; the
// engine continues without persistence rather than halting.
func (w *Writer) write() {
	snap := w.capture()
	if err := w.saver.Save(snap); err != nil {
		log.Printf("snapshot: save session %s failed, continuing without persistence: %v", snap.SessionID, err)
	}
}
