package monitor

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fnk59456/uwb-bridge/internal/codec"
	"github.com/fnk59456/uwb-bridge/internal/router"
)

// defaultBufferSize matches the dashboard's message buffer.
const defaultBufferSize = 500

// Dispatcher receives deliveries after they are recorded.
// *router.Router satisfies it.
type Dispatcher interface {
	Dispatch(msg router.InboundMessage) error
}

// Entry is one recorded delivery.
type Entry struct {
	Topic      string    `json:"topic"`
	Gateway    string    `json:"gateway,omitempty"`
	Content    string    `json:"content,omitempty"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Topic   string
	Gateway string
	Content string
	Since   time.Time
}

// Match reports whether e passes every set field.
func (f Filter) Match(e Entry) bool {
	if f.Topic != "" && e.Topic != f.Topic {
		return false
	}
	if f.Gateway != "" && e.Gateway != f.Gateway {
		return false
	}
	if f.Content != "" && e.Content != f.Content {
		return false
	}
	if !f.Since.IsZero() && e.ReceivedAt.Before(f.Since) {
		return false
	}
	return true
}

// Recorder stores each delivery, then forwards it to the next Dispatcher.
type Recorder struct {
	next   Dispatcher
	buffer *RingBuffer[Entry]
	total  atomic.Uint64

	mu        sync.RWMutex
	listeners map[uint64]func(Entry)
	nextID    uint64
}

// NewRecorder wraps next. size <= 0 selects the default buffer size; a
// nil next only records.
func NewRecorder(next Dispatcher, size int) *Recorder {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Recorder{
		next:      next,
		buffer:    NewRingBuffer[Entry](size),
		listeners: make(map[uint64]func(Entry)),
	}
}

// Dispatch records msg and returns the next dispatcher's result.
func (r *Recorder) Dispatch(msg router.InboundMessage) error {
	e := newEntry(msg)
	r.buffer.Push(e)
	r.total.Add(1)
	r.notify(e)

	if r.next == nil {
		return nil
	}
	return r.next.Dispatch(msg)
}

// Listen registers fn to be called with every new entry, on the
// dispatching goroutine. fn must not block. The returned function removes
// the listener.
func (r *Recorder) Listen(fn func(Entry)) (cancel func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
}

func (r *Recorder) notify(e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fn := range r.listeners {
		fn(e)
	}
}

// Recent returns up to limit matching entries, newest first. limit <= 0
// means no limit.
func (r *Recorder) Recent(f Filter, limit int) []Entry {
	entries := r.buffer.Filter(f.Match)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Latest returns the newest entry for topic, or the newest overall when
// topic is empty.
func (r *Recorder) Latest(topic string) (Entry, bool) {
	if topic == "" {
		return r.buffer.Latest()
	}
	entries := r.Recent(Filter{Topic: topic}, 1)
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[0], true
}

// Total returns how many deliveries were recorded, including evicted ones.
func (r *Recorder) Total() uint64 {
	return r.total.Load()
}

// Buffered returns the number of entries currently held and the capacity.
func (r *Recorder) Buffered() (size, capacity int) {
	return r.buffer.Len(), r.buffer.Cap()
}

func newEntry(msg router.InboundMessage) Entry {
	e := Entry{
		Topic:      msg.Topic,
		Gateway:    GatewayFromTopic(msg.Topic),
		Payload:    string(msg.Payload),
		ReceivedAt: msg.ReceivedAt,
	}
	e.Content, _ = codec.PeekContent(msg.Payload)
	return e
}

// GatewayFromTopic extracts the gateway name from a topic of the form
// UWB/GW{name}_{channel}. It returns "" for other topics.
func GatewayFromTopic(topic string) string {
	rest, ok := strings.CutPrefix(topic, "UWB/GW")
	if !ok {
		return ""
	}
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return ""
	}
	return rest[:i]
}
