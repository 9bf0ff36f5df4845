package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
)

// BeatmapExt is the extension of indexed files, matched case-insensitively.
const BeatmapExt = ".osu"

// dirQueue is an unbounded, concurrency-safe queue of directory paths.
// It tracks a pending counter so that Walk() knows when all work is done.
//
// Termination protocol:
//   - Push increments pending BEFORE enqueuing (caller must own the increment).
//   - Done decrements pending AFTER all children of a directory have been
//     pushed. When pending reaches 0, Done closes the queue and broadcasts.
//   - Abort closes the queue early; Pop then returns false even if items remain.
type dirQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	head    int // index of the next item to pop
	pending atomic.Int64
	closed  bool
	aborted bool
}

func newDirQueue() *dirQueue {
	q := &dirQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a directory. Must be called after incrementing pending.
func (q *dirQueue) Push(dir string) {
	q.mu.Lock()
	q.items = append(q.items, dir)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed.
// Returns ("", false) when the queue is closed and empty, or aborted.
func (q *dirQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head >= len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.aborted || q.head >= len(q.items) {
		return "", false
	}
	item := q.items[q.head]
	q.items[q.head] = ""
	q.head++
	if q.head >= 1000 && q.head >= len(q.items)/2 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

// Done must be called once per directory after all its child-directories have
// been pushed. Decrements pending; if pending reaches 0, closes the queue.
func (q *dirQueue) Done() {
	if q.pending.Add(-1) == 0 {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	}
}

// Abort wakes every blocked Pop and makes further Pops fail.
func (q *dirQueue) Abort() {
	q.mu.Lock()
	q.closed = true
	q.aborted = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Filter decides which walked paths are kept. Excludes are doublestar
// patterns matched against the slash-separated path relative to the root;
// an excluded directory is not descended into.
type Filter struct {
	Excludes []string
}

// Validate reports the first malformed exclude pattern.
func (f Filter) Validate() error {
	for _, p := range f.Excludes {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

func (f Filter) excluded(root, path string) bool {
	if len(f.Excludes) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range f.Excludes {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// IsBeatmap reports whether name has the beatmap extension.
func IsBeatmap(name string) bool {
	return strings.EqualFold(filepath.Ext(name), BeatmapExt)
}

// Walk traverses root concurrently using numWorkers goroutines and sends
// every regular beatmap file it finds to out. Walk closes out when done.
// The first unreadable directory aborts the walk and is returned, as is a
// root that is not an accessible directory.
func Walk(ctx context.Context, root string, filter Filter, numWorkers int, out chan<- string) error {
	defer close(out)

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan root %q is not a directory", root)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	q := newDirQueue()
	q.pending.Add(1)
	q.Push(root)

	var (
		firstErr error
		errOnce  sync.Once
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		q.Abort()
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			walkerWorker(ctx, q, root, filter, out, fail)
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// walkerWorker pops directories from q, reads their entries, enqueues
// sub-directories (incrementing pending first), sends beatmap files to out,
// then calls q.Done() to decrement pending.
func walkerWorker(ctx context.Context, q *dirQueue, root string, filter Filter, out chan<- string, fail func(error)) {
	for {
		if err := ctx.Err(); err != nil {
			q.Abort()
			return
		}

		dir, ok := q.Pop()
		if !ok {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			fail(fmt.Errorf("read directory %q: %w", dir, err))
			return
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			if filter.excluded(root, path) {
				continue
			}

			if entry.IsDir() {
				// Increment BEFORE pushing so pending is never zero prematurely.
				q.pending.Add(1)
				q.Push(path)
				continue
			}

			if !entry.Type().IsRegular() || entry.Type()&fs.ModeSymlink != 0 {
				continue
			}
			if !IsBeatmap(entry.Name()) {
				continue
			}

			select {
			case <-ctx.Done():
				q.Abort()
				return
			case out <- path:
			}
		}

		q.Done()
	}
}
