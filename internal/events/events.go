// Package events carries tile and seed notifications to subscribers.
package events

import (
	"sync"

	"github.com/paulmach/orb"

	"tilecache/internal/tiles"
)

type Type string

const (
	TileLoadStart Type = "tileloadstart"
	TileCacheHit  Type = "tilecachehit"
	TileCacheMiss Type = "tilecachemiss"
	TileLoad      Type = "tileload"
	TileError     Type = "tileerror"
	SeedStart     Type = "seedstart"
	SeedProgress  Type = "seedprogress"
	SeedEnd       Type = "seedend"
	SeedTileError Type = "seedtileerror"
)

// SeedData describes a seed job for progress reporting.
type SeedData struct {
	BBox            *orb.Bound `json:"bbox,omitempty"`
	MinZoom         int        `json:"minZoom"`
	MaxZoom         int        `json:"maxZoom"`
	QueueLength     int        `json:"queueLength"`
	RemainingLength int        `json:"remainingLength"`
}

type Event struct {
	Type Type        `json:"type"`
	Tile *tiles.Tile `json:"tile,omitempty"`
	URL  string      `json:"url,omitempty"`
	Seed *SeedData   `json:"seed,omitempty"`
	Err  string      `json:"error,omitempty"`
}

// Sink receives events. Implementations must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Sink
	order  []int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Sink)}
}

// Subscribe registers s and returns a function that removes it.
func (b *Bus) Subscribe(s Sink) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	sinks := make([]Sink, 0, len(b.order))
	for _, id := range b.order {
		sinks = append(sinks, b.subs[id])
	}
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Emit(e)
	}
}

// Recorder keeps the events it receives, optionally only the most recent ones.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	filter func(Event) bool
	limit  int
}

// NewRecorder returns a Recorder that keeps the events accepted by filter,
// or all events when filter is nil.
func NewRecorder(filter func(Event) bool) *Recorder {
	return &Recorder{filter: filter}
}

// NewBoundedRecorder is like NewRecorder but keeps at most limit events,
// dropping the oldest first. A limit of zero or less means no bound.
func NewBoundedRecorder(filter func(Event) bool, limit int) *Recorder {
	return &Recorder{filter: filter, limit: limit}
}

func (r *Recorder) Emit(e Event) {
	if r.filter != nil && !r.filter(e) {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	if r.limit > 0 && len(r.events) > r.limit {
		n := copy(r.events, r.events[len(r.events)-r.limit:])
		clear(r.events[n:])
		r.events = r.events[:n]
	}
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// IsSeed reports whether e belongs to a seed job.
func IsSeed(e Event) bool {
	switch e.Type {
	case SeedStart, SeedProgress, SeedEnd, SeedTileError:
		return true
	}
	return false
}
