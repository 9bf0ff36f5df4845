package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"
)

// TestDirQueueNeverLosesItems pushes 5 000 items, pops all, and verifies the
// exact set is returned (compaction must not drop entries).
func TestDirQueueNeverLosesItems(t *testing.T) {
	const n = 5000
	q := newDirQueue()

	for i := 0; i < n; i++ {
		q.pending.Add(1)
		q.Push(fmt.Sprintf("dir%04d", i))
	}

	var got []string
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, item)
		q.Done()
	}

	if len(got) != n {
		t.Fatalf("got %d items, want %d", len(got), n)
	}
	sort.Strings(got)
	for i, v := range got {
		if want := fmt.Sprintf("dir%04d", i); v != want {
			t.Errorf("item %d: got %q, want %q", i, v, want)
		}
	}
}

// TestDirQueueCompactionBoundsMemory interleaves push/pop batches and verifies
// the backing slice doesn't grow to the total number of historical pushes.
func TestDirQueueCompactionBoundsMemory(t *testing.T) {
	const batchSize = 2000
	const batches = 5 // total pushes = 10 000
	q := newDirQueue()

	for b := 0; b < batches; b++ {
		for i := 0; i < batchSize; i++ {
			q.pending.Add(1)
			q.Push(fmt.Sprintf("d%d_%04d", b, i))
		}
		for i := 0; i < batchSize; i++ {
			if _, ok := q.Pop(); !ok {
				t.Fatal("queue closed unexpectedly during drain")
			}
			q.Done()
		}
	}

	q.mu.Lock()
	remaining := len(q.items) - q.head
	totalCap := cap(q.items)
	q.mu.Unlock()

	if remaining != 0 {
		t.Errorf("expected empty queue after full drain, got %d remaining items", remaining)
	}
	// The backing-array capacity must be smaller than the total items ever
	// pushed, proving that old entries were released for garbage collection.
	totalPushes := batchSize * batches
	if totalCap >= totalPushes {
		t.Errorf("backing array capacity %d >= total pushes %d - compaction not releasing memory",
			totalCap, totalPushes)
	}
}

// TestDirQueueAbortWakesPoppers verifies blocked Pops return once the queue
// is aborted, even with work still pending.
func TestDirQueueAbortWakesPoppers(t *testing.T) {
	q := newDirQueue()
	q.pending.Add(1) // never completed

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := q.Pop(); ok {
			t.Error("Pop returned an item from an empty aborted queue")
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Abort()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Pop did not return after Abort")
	}
}

func collect(out <-chan string) map[string]struct{} {
	got := map[string]struct{}{}
	for p := range out {
		got[p] = struct{}{}
	}
	return got
}

// TestWalkFindsAllBeatmaps creates a tree of 15 beatmaps across 3 subdirs
// plus non-beatmap files and verifies Walk returns exactly the beatmaps.
func TestWalkFindsAllBeatmaps(t *testing.T) {
	root := t.TempDir()
	want := map[string]struct{}{}
	for i := 0; i < 3; i++ {
		sub := filepath.Join(root, fmt.Sprintf("sub%d", i))
		if err := os.Mkdir(sub, 0755); err != nil {
			t.Fatal(err)
		}
		for j := 0; j < 5; j++ {
			ext := ".osu"
			if j == 4 {
				ext = ".OSU"
			}
			p := filepath.Join(sub, fmt.Sprintf("map%d%s", j, ext))
			if err := os.WriteFile(p, []byte("osu file format v14"), 0644); err != nil {
				t.Fatal(err)
			}
			want[p] = struct{}{}
		}
		_ = os.WriteFile(filepath.Join(sub, "audio.mp3"), []byte("x"), 0644)
		_ = os.WriteFile(filepath.Join(sub, "bg.osu.jpg"), []byte("x"), 0644)
	}

	out := make(chan string, 100)
	if err := Walk(context.Background(), root, Filter{}, 4, out); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	got := collect(out)
	for p := range want {
		if _, ok := got[p]; !ok {
			t.Errorf("missing expected file %q", p)
		}
	}
	if len(got) != len(want) {
		t.Errorf("found %d files, want %d", len(got), len(want))
	}
}

// TestWalkExcludesPatterns verifies doublestar excludes apply to files and
// prune whole directories.
func TestWalkExcludesPatterns(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "set1", "keep.osu")
	skipFile := filepath.Join(root, "set1", "skip [Hard].osu")
	skipDir := filepath.Join(root, "Failed", "deep", "other.osu")
	for _, p := range []string{keep, skipFile, skipDir} {
		writeFile(t, p, []byte("x"))
	}

	filter := Filter{Excludes: []string{"**/skip*.osu", "Failed"}}
	if err := filter.Validate(); err != nil {
		t.Fatal(err)
	}
	out := make(chan string, 10)
	if err := Walk(context.Background(), root, filter, 2, out); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	got := collect(out)
	if _, ok := got[keep]; !ok {
		t.Errorf("expected file %q was not returned by Walk", keep)
	}
	for _, p := range []string{skipFile, skipDir} {
		if _, ok := got[p]; ok {
			t.Errorf("excluded file %q was returned by Walk", p)
		}
	}
}

func TestFilterValidate(t *testing.T) {
	if err := (Filter{Excludes: []string{"[abc"}}).Validate(); err == nil {
		t.Error("expected malformed pattern to be rejected")
	}
}

// TestWalkMissingRoot verifies an inaccessible root is an error.
func TestWalkMissingRoot(t *testing.T) {
	out := make(chan string, 1)
	err := Walk(context.Background(), filepath.Join(t.TempDir(), "nope"), Filter{}, 2, out)
	if err == nil {
		t.Fatal("expected error for missing root")
	}
	if _, open := <-out; open {
		t.Error("out was not closed")
	}

	file := filepath.Join(t.TempDir(), "file.osu")
	writeFile(t, file, []byte("x"))
	out = make(chan string, 1)
	if err := Walk(context.Background(), file, Filter{}, 2, out); err == nil {
		t.Fatal("expected error for a root that is a file")
	}
}

// TestWalkUnreadableDirectoryIsFatal verifies a directory read error aborts
// the walk.
func TestWalkUnreadableDirectoryIsFatal(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permissions are not enforced")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "a.osu"), []byte("x"))
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	out := make(chan string, 10)
	if err := Walk(context.Background(), root, Filter{}, 2, out); err == nil {
		t.Fatal("expected error for unreadable directory")
	}
	collect(out)
}

// TestWalkCancellation verifies Walk returns cleanly after ctx is cancelled.
func TestWalkCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 200; i++ {
		_ = os.WriteFile(filepath.Join(root, fmt.Sprintf("f%d.osu", i)), []byte("data"), 0644)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan string, 8)

	done := make(chan error, 1)
	go func() {
		done <- Walk(ctx, root, Filter{}, 2, out)
	}()

	cancel()
	for range out {
	} // drain so walkers aren't blocked on sends

	select {
	case err := <-done:
		if err == nil {
			// The walk may have finished before the cancel was observed.
			t.Log("walk completed before cancellation")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Walk did not return after context cancel")
	}
}
