package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned when a scan is started while one is in progress.
var ErrAlreadyRunning = errors.New("a scan is already in progress")

// ErrNoActiveScan is returned when cancel is called with no scan running.
var ErrNoActiveScan = errors.New("no scan is currently running")

// ErrNoRoot is returned when neither the caller nor the configuration names a
// directory to scan.
var ErrNoRoot = errors.New("no songs directory configured")

// ActiveScan holds live information about the running scan.
type ActiveScan struct {
	ID          int64     `json:"id"`
	Root        string    `json:"root"`
	StartedAt   time.Time `json:"startedAt"`
	TriggeredBy string    `json:"triggeredBy"`
}

// Manager enforces a single-active-scan invariant and exposes start/cancel.
// It is safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	scanner     *Scanner
	defaultRoot string
	events      *Broadcaster
	logger      *slog.Logger

	nextID   int64
	active   *ActiveScan
	cancelFn context.CancelFunc
	done     chan struct{}
}

// NewManager creates a Manager scanning defaultRoot unless Start names
// another directory.
func NewManager(scanner *Scanner, defaultRoot string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:     scanner,
		defaultRoot: defaultRoot,
		events:      NewBroadcaster(),
		logger:      logger,
	}
}

// DefaultRoot returns the directory scanned when Start gets no root.
func (m *Manager) DefaultRoot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultRoot
}

// SetDefaultRoot changes the directory scanned when Start gets no root. A
// running scan is not affected.
func (m *Manager) SetDefaultRoot(root string) {
	m.mu.Lock()
	m.defaultRoot = root
	m.mu.Unlock()
}

// Start launches an asynchronous scan of root, or of the default root when
// root is empty. Returns ErrAlreadyRunning if a scan is already in progress.
// Cancelling parentCtx cancels the scan.
func (m *Manager) Start(parentCtx context.Context, root, triggeredBy string) (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}
	if root == "" {
		root = m.defaultRoot
	}
	if root == "" {
		return nil, ErrNoRoot
	}

	m.nextID++
	active := &ActiveScan{
		ID:          m.nextID,
		Root:        root,
		StartedAt:   time.Now(),
		TriggeredBy: triggeredBy,
	}
	scanCtx, cancel := context.WithCancel(parentCtx)
	done := make(chan struct{})

	m.active = active
	m.cancelFn = cancel
	m.done = done
	m.events.Reset()

	go func() {
		defer close(done)
		defer cancel()
		sink := SinkFunc(func(s Snapshot) error {
			if !s.Finished {
				return m.events.Emit(s)
			}
			// Subscribers seeing the terminal snapshot may start the next scan.
			m.mu.Lock()
			defer m.mu.Unlock()
			m.releaseLocked(active)
			return m.events.Emit(s)
		})
		if _, err := m.scanner.Run(scanCtx, root, sink); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("scan run error", "id", active.ID, "error", err)
		}

		m.mu.Lock()
		m.releaseLocked(active)
		m.mu.Unlock()
	}()

	snap := *active
	return &snap, nil
}

// releaseLocked clears the active scan if it is still a. m.mu must be held.
func (m *Manager) releaseLocked(a *ActiveScan) {
	if m.active != a {
		return
	}
	m.active = nil
	m.cancelFn = nil
}

// Cancel stops the currently running scan. Returns ErrNoActiveScan if idle.
func (m *Manager) Cancel() (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveScan
	}

	snap := *m.active
	m.cancelFn()
	return &snap, nil
}

// ActiveScan returns a snapshot of the running scan, or nil when idle.
func (m *Manager) ActiveScan() *ActiveScan {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snap := *m.active
	return &snap
}

// Latest returns the most recent progress snapshot of the current or last
// scan.
func (m *Manager) Latest() (Snapshot, bool) {
	return m.events.Latest()
}

// Subscribe streams progress snapshots; call the returned function to stop.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	return m.events.Subscribe()
}

// Wait blocks until the scan started last has finished, or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
