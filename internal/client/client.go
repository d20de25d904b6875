package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"taglayer/internal/consent"
	"taglayer/internal/layer"
	"taglayer/internal/loader"
	"taglayer/internal/signature"
	"taglayer/pkg/types"
)

// startEvent is the discriminator of the one-time start marker pushed at
// initialization.
const startEvent = "layer.start"

// Client owns the shared event buffer for one instance: it absorbs pushes
// into the live layer or a holding queue, enforces consent-before-measurement
// ordering, dedups against hydration snapshots, and delegates script loading
// to the loader.
type Client struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	id        string
	startTime time.Time
	sources   []types.Source
	engine    *signature.Engine
	loads     *loader.Manager

	initialized bool
	tornDown    bool
	claim       *layer.Claim

	queue            []queuedEntry
	queuedConsent    map[string]bool
	deliveredConsent map[string]bool
	snapshotSigs     map[string]bool
	consentCount     int
}

// queuedEntry is a held entry plus its precomputed signature. sig is only
// meaningful when ok is true; unserializable entries carry no signature and
// are never deduplicated.
type queuedEntry struct {
	entry types.Entry
	sig   string
	ok    bool
}

// New validates the configuration and constructs a client. The source list
// and layer name are fixed for the instance's lifetime.
func New(cfg Config) (*Client, error) {
	sources, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	id := cfg.NewID()
	log = log.With().Str("instance", id).Logger()
	c := &Client{
		cfg:              cfg,
		log:              log,
		id:               id,
		startTime:        time.Now(),
		sources:          sources,
		engine:           signature.NewEngine(),
		queuedConsent:    make(map[string]bool),
		deliveredConsent: make(map[string]bool),
		snapshotSigs:     make(map[string]bool),
	}
	c.loads = loader.New(loader.Config{
		Host:           cfg.Host,
		Entrypoint:     cfg.Entrypoint,
		LayerName:      cfg.LayerName,
		InstanceID:     id,
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		LoadTimeout:    cfg.LoadTimeout,
		Verify:         cfg.Verify,
		VerifyInterval: cfg.VerifyInterval,
		VerifyTimeout:  cfg.VerifyTimeout,
		Document:       cfg.Document,
		Fetcher:        cfg.Fetcher,
		Logger:         &log,
	})
	return c, nil
}

// InstanceID returns the generated instance identifier.
func (c *Client) InstanceID() string { return c.id }

// Init claims or adopts the shared layer, pushes the start marker, flushes
// the holding queue in its adjusted order, and schedules script loading. It
// is idempotent: a second call is a logged no-op. Everything up to scheduling
// loads happens synchronously.
func (c *Client) Init() error {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return tornDownError{}
	}
	if c.initialized {
		c.log.Debug().Msg("init called twice; ignoring")
		c.mu.Unlock()
		return nil
	}
	claim := c.cfg.Registry.Claim(c.cfg.LayerName)
	c.claim = claim
	if claim.Siblings > 0 {
		c.log.Warn().
			Str("layer", c.cfg.LayerName).
			Int("siblings", claim.Siblings).
			Msg("multiple client instances share one layer; teardown of either is unsafe for the other")
	}
	if c.cfg.LayerName != layer.DefaultName && c.cfg.Registry.Has(layer.DefaultName) {
		c.log.Warn().
			Str("layer", c.cfg.LayerName).
			Msg("custom layer name configured while a default-named layer exists")
	}
	hasMarker := false
	for _, e := range claim.Snapshot {
		if sig, ok := c.engine.For(e); ok {
			c.snapshotSigs[sig] = true
		}
		if isStartMarker(e) {
			hasMarker = true
		}
	}
	c.initialized = true
	if !hasMarker {
		c.deliverLocked(startMarker(time.Now()))
	}
	held := c.queue
	c.queue = nil
	c.queuedConsent = make(map[string]bool)
	for _, q := range held {
		c.deliverSignedLocked(q.entry, q.sig, q.ok)
	}
	sources := c.sources
	c.mu.Unlock()

	c.loads.Ensure(context.Background(), sources)
	if cb := c.cfg.OnLoadFailure; cb != nil {
		c.loads.OnReady(func(final []types.LoadState) {
			for _, st := range final {
				if st.Status == types.StatusFailed || st.Status == types.StatusPartial {
					cb(st)
				}
			}
		})
	}
	return nil
}

// Push delivers or queues one entry. It never fails: empty entries and
// delivery problems are logged and swallowed, because instrumentation must
// not become the cause of an application fault.
func (c *Client) Push(e types.Entry) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("push failed; entry dropped")
		}
	}()
	if e.IsZero() {
		c.log.Debug().Msg("ignoring empty push")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tornDown {
		c.log.Warn().Msg("push after teardown dropped")
		return
	}
	if !c.initialized {
		c.enqueueLocked(e)
		return
	}
	c.deliverLocked(e)
}

// SetConsentDefaults builds and routes a default-consent command. Calling it
// after Init is allowed but flagged: tags may have already evaluated implied
// consent. Validation failures are returned, never silently degraded.
func (c *Client) SetConsentDefaults(state map[string]string, opts *types.ConsentOptions) error {
	cmd, warns, err := consent.Default(state, opts)
	if err != nil {
		return err
	}
	for _, w := range warns {
		c.log.Warn().Msg(string(w))
	}
	c.mu.Lock()
	if c.initialized && !c.tornDown {
		c.log.Warn().Msg("consent defaults set after initialization; tags may have already evaluated implied consent")
	}
	c.mu.Unlock()
	c.Push(types.ConsentEntry(cmd))
	return nil
}

// UpdateConsent builds and routes an update-consent command.
func (c *Client) UpdateConsent(state map[string]string, opts *types.ConsentOptions) error {
	cmd, warns, err := consent.Update(state, opts)
	if err != nil {
		return err
	}
	for _, w := range warns {
		c.log.Warn().Msg(string(w))
	}
	c.Push(types.ConsentEntry(cmd))
	return nil
}

// Teardown reverses loading, restores the shared layer to its pre-claim
// contents (or removes it when this instance created it), and clears all
// internal state. The instance cannot be reused afterwards; a second call is
// safe but has nothing left to restore.
func (c *Client) Teardown() {
	c.mu.Lock()
	if c.tornDown {
		c.log.Debug().Msg("teardown called twice; nothing to restore")
		c.mu.Unlock()
		return
	}
	c.tornDown = true
	c.initialized = false
	claim := c.claim
	c.claim = nil
	c.queue = nil
	c.queuedConsent = make(map[string]bool)
	c.deliveredConsent = make(map[string]bool)
	c.snapshotSigs = make(map[string]bool)
	c.consentCount = 0
	c.mu.Unlock()

	c.loads.Teardown()
	if claim != nil {
		c.cfg.Registry.Release(claim)
	}
}

// NotifyUnload forwards a page-unload signal: still-pending sources are
// skipped and readiness settles, so WhenReady never hangs across navigation.
func (c *Client) NotifyUnload() { c.loads.NotifyUnload() }

// IsInitialized reports whether Init has completed.
func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// IsReady reports whether every source reached a terminal load state.
func (c *Client) IsReady() bool { return c.loads.Ready() }

// WhenReady returns a channel that receives the final per-source load-state
// records once, then closes.
func (c *Client) WhenReady() <-chan []types.LoadState { return c.loads.WhenReady() }

// OnReady registers a readiness observer; the returned func unregisters it.
func (c *Client) OnReady(fn func([]types.LoadState)) func() { return c.loads.OnReady(fn) }

// Diagnostics returns a read-only snapshot of the current counters.
func (c *Client) Diagnostics() types.Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := types.Diagnostics{
		Initialized:      c.initialized,
		Ready:            c.loads.Ready(),
		LayerName:        c.cfg.LayerName,
		QueueSize:        len(c.queue),
		ConsentDelivered: c.consentCount,
		LoadStates:       c.loads.States(),
		UptimeSeconds:    int64(time.Since(c.startTime).Seconds()),
	}
	if c.claim != nil {
		d.BufferSize = c.claim.Layer.Len()
	}
	d.SourceIDs = make([]string, 0, len(c.sources))
	for _, s := range c.sources {
		d.SourceIDs = append(d.SourceIDs, s.ID)
	}
	return d
}

// startMarker is the one-time entry recording when this layer went live.
func startMarker(now time.Time) types.Entry {
	return types.EventEntry(map[string]any{
		"event":    startEvent,
		startEvent: now.UnixMilli(),
	})
}

func isStartMarker(e types.Entry) bool {
	return e.Kind == types.KindEvent && e.Data != nil && e.Data["event"] == startEvent
}

// isCritical marks entries that eviction must never remove.
func isCritical(e types.Entry) bool {
	return e.IsConsent() || isStartMarker(e)
}
