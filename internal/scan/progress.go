package scan

import (
	"log/slog"
	"sync"
)

// Stage names used in logs and metrics.
const (
	StageDiscover = "discover"
	StageWipe     = "wipe"
	StageRead     = "read"
	StageCompute  = "compute"
	StagePersist  = "persist"
)

// DiscoverCounts tracks the discovery stage, which has no failure path.
type DiscoverCounts struct {
	Progression int `json:"progression"`
}

// StageCounts tracks one per-file stage. Max is the number of files expected
// to reach the stage; it shrinks whenever an earlier stage fails a file.
type StageCounts struct {
	Progression int `json:"progression"`
	Failed      int `json:"failed"`
	Max         int `json:"max"`
}

// done reports whether every expected file has left the stage.
func (c StageCounts) done() bool { return c.Progression+c.Failed == c.Max }

// Snapshot is a consistent view of a scan's progress.
type Snapshot struct {
	Discover DiscoverCounts `json:"discover"`
	Read     StageCounts    `json:"read"`
	Compute  StageCounts    `json:"compute"`
	Persist  StageCounts    `json:"persist"`
	Finished bool           `json:"finished"`
	Error    string         `json:"error,omitempty"`
}

// ProgressSink receives snapshots. Emit is called with the progress lock
// held, so it must not block.
type ProgressSink interface {
	Emit(Snapshot) error
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Snapshot) error

// Emit calls f.
func (f SinkFunc) Emit(s Snapshot) error { return f(s) }

// Progress holds the live counters of one scan. Every update and the
// snapshot it emits happen under one lock.
type Progress struct {
	mu     sync.Mutex
	snap   Snapshot
	sink   ProgressSink
	logger *slog.Logger
}

func newProgress(sink ProgressSink, logger *slog.Logger) *Progress {
	return &Progress{sink: sink, logger: logger}
}

// snapshot returns the current counters.
func (p *Progress) snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Progress) update(fn func(*Snapshot)) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.snap)
	s := p.snap
	if p.sink != nil {
		if err := p.sink.Emit(s); err != nil {
			p.logger.Debug("progress delivery failed", "error", err)
		}
	}
	return s
}

func (p *Progress) discovered() {
	p.update(func(s *Snapshot) { s.Discover.Progression++ })
}

// begin sets the expected file count of every per-file stage.
func (p *Progress) begin(n int) {
	p.update(func(s *Snapshot) {
		s.Read.Max = n
		s.Compute.Max = n
		s.Persist.Max = n
	})
}

func (p *Progress) read(ok bool) {
	p.update(func(s *Snapshot) {
		if ok {
			s.Read.Progression++
			return
		}
		s.Read.Failed++
		s.Compute.Max--
		s.Persist.Max--
	})
}

func (p *Progress) computed(ok bool) {
	p.update(func(s *Snapshot) {
		if ok {
			s.Compute.Progression++
			return
		}
		s.Compute.Failed++
		s.Persist.Max--
	})
}

func (p *Progress) persisted(ok bool) {
	p.update(func(s *Snapshot) {
		if ok {
			s.Persist.Progression++
			return
		}
		s.Persist.Failed++
	})
}

func (p *Progress) finish(err error) Snapshot {
	return p.update(func(s *Snapshot) {
		s.Finished = true
		if err != nil {
			s.Error = err.Error()
			return
		}
		if !s.Read.done() || !s.Compute.done() || !s.Persist.done() {
			p.logger.Warn("scan finished with unsettled stage counts",
				"read", s.Read, "compute", s.Compute, "persist", s.Persist)
		}
	})
}
