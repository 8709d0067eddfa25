// Package viewport provides an in-process viewport over a list of rendered items.
//
// A Window shows Height consecutive items of the rendered list starting at an offset.
// Observers are told whether their target item is inside the window: once when they
// start observing and then on every change caused by rendering or scrolling.
package viewport

import (
	"sync"

	"github.com/Sternrassler/comment-scroll/pkg/trigger"
)

// Window is a scrollable window over rendered item keys. It implements trigger.Viewport.
type Window struct {
	mu        sync.Mutex
	items     []string
	index     map[string]int
	height    int
	offset    int
	observers map[uint64]*observer
	nextID    uint64
}

type observer struct {
	id      uint64
	target  string
	fn      func(trigger.Entry)
	visible bool
	active  bool
}

type delivery struct {
	o     *observer
	entry trigger.Entry
}

// NewWindow creates an empty window showing height items.
func NewWindow(height int) *Window {
	if height < 1 {
		height = 1
	}
	return &Window{
		index:     make(map[string]int),
		height:    height,
		observers: make(map[uint64]*observer),
	}
}

// Observe starts observing target and delivers its current visibility right away.
func (w *Window) Observe(target string, fn func(trigger.Entry)) trigger.Observation {
	w.mu.Lock()
	w.nextID++
	o := &observer{
		id:      w.nextID,
		target:  target,
		fn:      fn,
		visible: w.isVisible(target),
		active:  true,
	}
	w.observers[o.id] = o
	initial := delivery{o: o, entry: trigger.Entry{Target: target, Intersecting: o.visible}}
	w.mu.Unlock()

	w.deliver([]delivery{initial})
	return &observation{window: w, id: o.id}
}

// SetItems replaces the rendered items, keeping the scroll offset where possible.
func (w *Window) SetItems(keys []string) {
	w.mu.Lock()
	w.items = append(w.items[:0:0], keys...)
	w.index = make(map[string]int, len(keys))
	for i, k := range keys {
		w.index[k] = i
	}
	w.offset = w.clamp(w.offset)
	changes := w.collectChanges()
	w.mu.Unlock()

	w.deliver(changes)
}

// ScrollBy moves the window by n items (negative scrolls up).
func (w *Window) ScrollBy(n int) {
	w.mu.Lock()
	w.offset = w.clamp(w.offset + n)
	changes := w.collectChanges()
	w.mu.Unlock()

	w.deliver(changes)
}

// ScrollTo moves the window to start at offset.
func (w *Window) ScrollTo(offset int) {
	w.mu.Lock()
	w.offset = w.clamp(offset)
	changes := w.collectChanges()
	w.mu.Unlock()

	w.deliver(changes)
}

// ScrollToEnd moves the window so the last item is visible.
func (w *Window) ScrollToEnd() {
	w.mu.Lock()
	w.offset = w.clamp(len(w.items))
	changes := w.collectChanges()
	w.mu.Unlock()

	w.deliver(changes)
}

// Offset returns the index of the first visible item.
func (w *Window) Offset() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// AtEnd reports whether the last item is inside the window.
func (w *Window) AtEnd() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset+w.height >= len(w.items)
}

// Visible returns the keys inside the window in render order.
func (w *Window) Visible() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	end := w.offset + w.height
	if end > len(w.items) {
		end = len(w.items)
	}
	out := make([]string, end-w.offset)
	copy(out, w.items[w.offset:end])
	return out
}

// Observers returns the number of live observations.
func (w *Window) Observers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.observers)
}

func (w *Window) isVisible(target string) bool {
	i, ok := w.index[target]
	return ok && i >= w.offset && i < w.offset+w.height
}

func (w *Window) clamp(offset int) int {
	maxOffset := len(w.items) - w.height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// collectChanges updates observer state and returns the entries to deliver. Caller holds mu.
func (w *Window) collectChanges() []delivery {
	var out []delivery
	for _, o := range w.observers {
		visible := w.isVisible(o.target)
		if visible == o.visible {
			continue
		}
		o.visible = visible
		out = append(out, delivery{o: o, entry: trigger.Entry{Target: o.target, Intersecting: visible}})
	}
	return out
}

// deliver invokes observer callbacks outside the lock, skipping disconnected observers.
func (w *Window) deliver(ds []delivery) {
	for _, d := range ds {
		w.mu.Lock()
		active := d.o.active
		w.mu.Unlock()
		if active {
			d.o.fn(d.entry)
		}
	}
}

func (w *Window) disconnect(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if o, ok := w.observers[id]; ok {
		o.active = false
		delete(w.observers, id)
	}
}

type observation struct {
	window *Window
	id     uint64
	once   sync.Once
}

// Disconnect stops delivery to the observer.
func (o *observation) Disconnect() {
	o.once.Do(func() {
		o.window.disconnect(o.id)
	})
}
