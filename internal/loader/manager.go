// Package loader owns creation and removal of remote script resources and
// tracks a per-source load-state machine: pending is the only non-terminal
// state, and every source settles into loaded, failed, skipped or partial
// exactly once per phase. Failures retry with exponential backoff; readiness
// is a settle-once signal that fires when no source is pending anymore.
package loader

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"taglayer/pkg/types"
)

// errNoDocument explains a skipped source in a non-browser context.
const errNoDocument = "no host document available"

// errUnload explains sources skipped by a page unload.
const errUnload = "page unload before load settled"

type inflight struct {
	cancel context.CancelFunc
}

// Manager tracks script resources for one client instance.
type Manager struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	// gen invalidates async callbacks scheduled before a teardown.
	gen      uint64
	ensured  bool
	baseCtx  context.Context
	order    []string
	states   map[string]*types.LoadState
	started  map[string]time.Time
	backoffs map[string]*backoff.ExponentialBackOff
	flights  map[string]*inflight
	timers   map[string]*time.Timer
	inserted map[string]bool
	ready    *readySignal
}

// New constructs a manager. Defaults are applied for every unset tunable.
func New(cfg Config) *Manager {
	m := &Manager{cfg: cfg.withDefaults(), log: zerolog.Nop()}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	m.reset()
	return m
}

// reset reinitializes all per-lifecycle tracking. Callers hold the lock,
// except New.
func (m *Manager) reset() {
	m.ensured = false
	m.baseCtx = context.Background()
	m.order = nil
	m.states = make(map[string]*types.LoadState)
	m.started = make(map[string]time.Time)
	m.backoffs = make(map[string]*backoff.ExponentialBackOff)
	m.flights = make(map[string]*inflight)
	m.timers = make(map[string]*time.Timer)
	m.inserted = make(map[string]bool)
	m.ready = newReadySignal()
}

func (m *Manager) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.BaseDelay
	b.MaxInterval = m.cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Ensure begins load tracking for every source not already tracked. With no
// document available every source is recorded skipped and readiness settles
// immediately.
func (m *Manager) Ensure(ctx context.Context, sources []types.Source) {
	m.mu.Lock()
	if !m.ensured {
		m.ensured = true
		if ctx != nil {
			m.baseCtx = ctx
		}
	}
	gen := m.gen
	for _, src := range sources {
		id := src.ID
		if _, tracked := m.states[id]; tracked {
			continue
		}
		url := resolveURL(m.cfg, src)
		m.order = append(m.order, id)
		m.started[id] = time.Now()
		switch {
		case m.cfg.Document == nil:
			m.states[id] = &types.LoadState{SourceID: id, URL: url, Status: types.StatusSkipped, Error: errNoDocument}
			loadsTotal.WithLabelValues(string(types.StatusSkipped)).Inc()
		case m.cfg.Document.Has(id):
			m.states[id] = &types.LoadState{SourceID: id, URL: url, Status: types.StatusLoaded, FromCache: true}
			loadsTotal.WithLabelValues(string(types.StatusLoaded)).Inc()
			m.log.Debug().Str("source", id).Msg("resource already present, skipping injection")
		default:
			m.states[id] = &types.LoadState{SourceID: id, URL: url, Status: types.StatusPending, Attempts: 1}
			m.backoffs[id] = m.newBackoff()
			m.startAttemptLocked(gen, id, url)
		}
	}
	m.mu.Unlock()
	m.maybeSettle()
}

// startAttemptLocked inserts the element and starts the fetch for the current
// attempt. Lock must be held.
func (m *Manager) startAttemptLocked(gen uint64, id, url string) {
	el := Element{SourceID: id, InstanceID: m.cfg.InstanceID, URL: url}
	if err := m.cfg.Document.Insert(el); err != nil {
		m.finishLocked(id, types.StatusFailed, "insert element: "+err.Error())
		return
	}
	m.inserted[id] = true
	sctx, cancel := context.WithCancel(m.baseCtx)
	m.flights[id] = &inflight{cancel: cancel}
	fetcher := m.cfg.Fetcher
	timeout := m.cfg.LoadTimeout
	go func() {
		fctx, done := context.WithTimeout(sctx, timeout)
		defer done()
		err := fetcher.Fetch(fctx, url)
		if sctx.Err() != nil {
			return
		}
		m.onFetchDone(gen, sctx, id, url, err)
	}()
}

func (m *Manager) onFetchDone(gen uint64, sctx context.Context, id, url string, err error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	st := m.states[id]
	if st == nil || st.Status != types.StatusPending {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.failAttemptLocked(gen, id, url, err)
		m.mu.Unlock()
		m.maybeSettle()
		return
	}
	if m.cfg.Verify == nil {
		m.finishLocked(id, types.StatusLoaded, "")
		m.mu.Unlock()
		m.maybeSettle()
		return
	}
	m.mu.Unlock()
	go m.verify(gen, sctx, id)
}

// verify polls the initialization check at a fixed interval bounded by the
// verification timeout. Success yields loaded; expiry yields partial: the
// script was fetched but the remote payload never signaled successful setup.
func (m *Manager) verify(gen uint64, sctx context.Context, id string) {
	ticker := time.NewTicker(m.cfg.VerifyInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(m.cfg.VerifyTimeout)
	defer deadline.Stop()
	for {
		select {
		case <-sctx.Done():
			return
		case <-deadline.C:
			m.finish(gen, id, types.StatusPartial, "initialization not verified within timeout")
			return
		case <-ticker.C:
			if m.cfg.Verify(id) {
				m.finish(gen, id, types.StatusLoaded, "")
				return
			}
		}
	}
}

// failAttemptLocked handles one failed attempt: the element is removed, and
// either a retry is scheduled or the source fails terminally.
func (m *Manager) failAttemptLocked(gen uint64, id, url string, cause error) {
	m.cfg.Document.Remove(id)
	delete(m.inserted, id)
	if f := m.flights[id]; f != nil {
		f.cancel()
		delete(m.flights, id)
	}
	st := m.states[id]
	if st.Attempts > m.cfg.MaxRetries {
		m.finishLocked(id, types.StatusFailed, cause.Error())
		return
	}
	delay := m.backoffs[id].NextBackOff()
	retriesTotal.Inc()
	m.log.Debug().
		Str("source", id).
		Int("attempt", st.Attempts).
		Dur("delay", delay).
		Err(cause).
		Msg("load attempt failed, retry scheduled")
	next := st.Attempts + 1
	m.timers[id] = time.AfterFunc(delay, func() {
		m.retry(gen, id, url, next)
	})
}

// retry begins a fresh in-flight record for the next attempt. The prior
// pending record is replaced, never mutated into a different phase.
func (m *Manager) retry(gen uint64, id, url string, attempt int) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.timers, id)
	st := m.states[id]
	if st == nil || st.Status != types.StatusPending {
		m.mu.Unlock()
		return
	}
	m.states[id] = &types.LoadState{SourceID: id, URL: url, Status: types.StatusPending, Attempts: attempt}
	m.startAttemptLocked(gen, id, url)
	m.mu.Unlock()
}

func (m *Manager) finish(gen uint64, id string, status types.LoadStatus, errDesc string) {
	m.mu.Lock()
	if m.gen == gen {
		m.finishLocked(id, status, errDesc)
	}
	m.mu.Unlock()
	m.maybeSettle()
}

// finishLocked performs the single pending→terminal transition for the
// current record and releases every timer and context held for the source.
func (m *Manager) finishLocked(id string, status types.LoadStatus, errDesc string) {
	st := m.states[id]
	if st == nil || st.Status.Terminal() {
		return
	}
	st.Status = status
	st.Error = errDesc
	if t, ok := m.started[id]; ok {
		st.ElapsedMillis = time.Since(t).Milliseconds()
	}
	m.cancelAllLocked(id)
	loadsTotal.WithLabelValues(string(status)).Inc()
}

// cancelAllLocked is the single cancellation point for a source: settlement,
// teardown and unload all route through it.
func (m *Manager) cancelAllLocked(id string) {
	if f := m.flights[id]; f != nil {
		f.cancel()
		delete(m.flights, id)
	}
	if t := m.timers[id]; t != nil {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) pendingLocked() int {
	n := 0
	for _, st := range m.states {
		if !st.Status.Terminal() {
			n++
		}
	}
	return n
}

func (m *Manager) statesLocked() []types.LoadState {
	out := make([]types.LoadState, 0, len(m.order))
	for _, id := range m.order {
		if st := m.states[id]; st != nil {
			out = append(out, *st)
		}
	}
	return out
}

// maybeSettle settles readiness when tracking has begun and no source is
// pending. Observers run outside the lock.
func (m *Manager) maybeSettle() {
	m.mu.Lock()
	if !m.ensured || m.pendingLocked() > 0 || m.ready.isSettled() {
		m.mu.Unlock()
		return
	}
	snap := m.statesLocked()
	r := m.ready
	m.mu.Unlock()
	r.settle(snap)
}

// States returns the current load-state records in source order.
func (m *Manager) States() []types.LoadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statesLocked()
}

// Ready reports whether readiness has settled.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	r := m.ready
	m.mu.Unlock()
	return r.isSettled()
}

// WhenReady returns a channel that receives the final load-state snapshot
// once readiness settles, then closes.
func (m *Manager) WhenReady() <-chan []types.LoadState {
	m.mu.Lock()
	r := m.ready
	m.mu.Unlock()
	return r.wait()
}

// OnReady registers an observer; the returned func unregisters it. Observers
// registered after settlement fire immediately with the final snapshot.
func (m *Manager) OnReady(fn func([]types.LoadState)) func() {
	m.mu.Lock()
	r := m.ready
	m.mu.Unlock()
	return r.observe(fn)
}

// NotifyUnload marks every still-pending source skipped, clears all timers
// and settles readiness, so a caller's WhenReady never hangs across a
// navigation away.
func (m *Manager) NotifyUnload() {
	m.mu.Lock()
	m.ensured = true
	for id, st := range m.states {
		if !st.Status.Terminal() {
			m.finishLocked(id, types.StatusSkipped, errUnload)
		}
	}
	m.mu.Unlock()
	m.maybeSettle()
}

// Teardown removes every element this manager inserted, cancels all timers
// and in-flight work, and resets tracking so a later Ensure starts clean.
func (m *Manager) Teardown() {
	m.mu.Lock()
	m.gen++
	for id := range m.states {
		m.cancelAllLocked(id)
	}
	if m.cfg.Document != nil {
		for id := range m.inserted {
			m.cfg.Document.Remove(id)
		}
	}
	m.reset()
	m.mu.Unlock()
}
