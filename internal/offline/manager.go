package offline

import (
	"context"
	"log"
	"sync"
	"time"
)

// Status is the observable sync state.
type Status struct {
	Online       bool      `json:"isOnline"`
	Syncing      bool      `json:"isSyncing"`
	QueueLength  int       `json:"queueLength"`
	LastSyncTime time.Time `json:"lastSyncTime,omitempty"`
	SyncError    string    `json:"syncError,omitempty"`
}

// Manager tracks connectivity and drives queue processing. At most one
// sync runs at a time.
type Manager struct {
	store     *Store
	processor *Processor
	prober    Prober
	interval  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	status      Status
	subscribers map[int]func(Status)
	nextSubID   int
	trigger     chan struct{}
}

func NewManager(store *Store, processor *Processor, prober Prober, interval time.Duration) *Manager {
	return &Manager{
		store:       store,
		processor:   processor,
		prober:      prober,
		interval:    interval,
		now:         time.Now,
		subscribers: make(map[int]func(Status)),
		trigger:     make(chan struct{}, 1),
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers fn for status changes and calls it once with the
// current status. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Status)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	current := m.status
	m.mu.Unlock()

	fn(current)
	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// update applies fn under the lock and notifies subscribers when fn
// reports a change.
func (m *Manager) update(fn func(*Status) bool) {
	m.mu.Lock()
	if !fn(&m.status) {
		m.mu.Unlock()
		return
	}
	snapshot := m.status
	subs := make([]func(Status), 0, len(m.subscribers))
	for _, s := range m.subscribers {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s(snapshot)
	}
}

// Enqueue stores a write and schedules a sync when online.
func (m *Manager) Enqueue(ctx context.Context, method, url string, data any) (int64, error) {
	id, err := m.store.Enqueue(ctx, method, url, data)
	if err != nil {
		return 0, err
	}
	m.refreshQueueLength(ctx)
	if m.Status().Online {
		m.Trigger()
	}
	return id, nil
}

// Trigger requests a sync from the Run loop without blocking.
func (m *Manager) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func (m *Manager) refreshQueueLength(ctx context.Context) {
	n, err := m.store.QueueLength(ctx)
	if err != nil {
		log.Printf("[SYNC] Failed to count queue: %v", err)
		return
	}
	m.update(func(s *Status) bool { s.QueueLength = n; return true })
}

// Sync runs one queue pass. It returns false without doing anything when
// a pass is already in progress.
func (m *Manager) Sync(ctx context.Context) (ProcessResult, bool) {
	started := false
	m.update(func(s *Status) bool {
		if s.Syncing {
			return false
		}
		s.Syncing, s.SyncError, started = true, "", true
		return true
	})
	if !started {
		return ProcessResult{}, false
	}

	result, err := m.processor.ProcessQueue(ctx)
	if _, cerr := m.store.ClearExpired(ctx); cerr != nil {
		log.Printf("[SYNC] Failed to clear expired cache entries: %v", cerr)
	}
	n, qerr := m.store.QueueLength(ctx)

	m.update(func(s *Status) bool {
		s.Syncing = false
		if err != nil {
			s.SyncError = err.Error()
		} else {
			s.LastSyncTime = m.now()
		}
		if qerr == nil {
			s.QueueLength = n
		}
		return true
	})
	if err != nil {
		log.Printf("[SYNC] Sync failed: %v", err)
	}
	return result, true
}

// CheckConnectivity probes the server and syncs on an offline to online
// transition.
func (m *Manager) CheckConnectivity(ctx context.Context) bool {
	online := m.prober.Probe(ctx)
	wasOnline := false
	m.update(func(s *Status) bool {
		wasOnline = s.Online
		s.Online = online
		return online != wasOnline
	})
	if online != wasOnline {
		log.Printf("[SYNC] Connectivity changed: online=%t", online)
	}
	if online && !wasOnline {
		m.Sync(ctx)
	}
	return online
}

// Run probes connectivity every interval and serves triggers until ctx is
// done.
func (m *Manager) Run(ctx context.Context) {
	m.refreshQueueLength(ctx)
	m.CheckConnectivity(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckConnectivity(ctx)
		case <-m.trigger:
			if m.Status().Online {
				m.Sync(ctx)
			}
		}
	}
}
