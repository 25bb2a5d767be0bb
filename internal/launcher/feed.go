package launcher

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Feed fans progress lines out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the line and its Dropped count grows.
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*Subscription
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*Subscription)}
}

// Subscription receives lines published after it was created.
type Subscription struct {
	feed    *Feed
	id      int
	ch      chan string
	dropped atomic.Int64
	once    sync.Once
}

// Subscribe registers a subscriber with the given channel buffer.
func (f *Feed) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sub := &Subscription{feed: f, id: f.nextID, ch: make(chan string, buffer)}
	f.subs[sub.id] = sub
	return sub
}

// C returns the channel lines arrive on. It is closed by Unsubscribe.
func (s *Subscription) C() <-chan string {
	return s.ch
}

// Dropped returns how many lines were skipped because the buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Unsubscribe detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		close(s.ch)
		s.feed.mu.Unlock()
	})
}

// Publishf formats and publishes a line to every subscriber.
func (f *Feed) Publishf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		select {
		case sub.ch <- line:
		default:
			sub.dropped.Add(1)
		}
	}
}
