package scan

import "sync"

// Broadcaster fans snapshots out to subscribers and remembers the latest.
// Slow subscribers miss intermediate snapshots but always receive the most
// recent one, so a terminal snapshot is never lost.
type Broadcaster struct {
	mu     sync.Mutex
	latest *Snapshot
	subs   map[chan Snapshot]struct{}
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Snapshot]struct{})}
}

// Emit implements ProgressSink. It never blocks.
func (b *Broadcaster) Emit(s Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = &s
	for ch := range b.subs {
		select {
		case ch <- s:
		default:
			// Replace the stale pending snapshot with this one.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
	return nil
}

// Latest returns the most recent snapshot, if any was emitted.
func (b *Broadcaster) Latest() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return Snapshot{}, false
	}
	return *b.latest, true
}

// Reset forgets the latest snapshot, before a new scan starts.
func (b *Broadcaster) Reset() {
	b.mu.Lock()
	b.latest = nil
	b.mu.Unlock()
}

// Subscribe returns a channel of snapshots, primed with the latest one, and
// a function that unsubscribes and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	b.mu.Lock()
	if b.latest != nil {
		ch <- *b.latest
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}
