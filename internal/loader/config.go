package loader

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultHost        = "https://load.taglayer.dev"
	DefaultEntrypoint  = "loader.js"
	defaultMaxRetries  = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultLoadTimeout = 10 * time.Second
	defaultVerifyEvery = 200 * time.Millisecond
	defaultVerifyMax   = 5 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Host and Entrypoint form the script address template
	// <host>/<entrypoint>?id=<source-id>.
	Host       string
	Entrypoint string
	// LayerName is appended as a query parameter when it differs from the
	// default layer name.
	LayerName string
	// InstanceID tags inserted elements with the owning client instance.
	InstanceID string

	// MaxRetries caps retry attempts per source beyond the initial one. The
	// n-th retry is delayed by BaseDelay doubled per attempt, up to MaxDelay.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// LoadTimeout bounds a single fetch attempt.
	LoadTimeout time.Duration

	// Verify, when set, is polled after a successful fetch until it returns
	// true or VerifyTimeout expires; expiry yields a partial load state.
	Verify         func(sourceID string) bool
	VerifyInterval time.Duration
	VerifyTimeout  time.Duration

	// Document is the host document. Nil means no document is available
	// (non-browser context): every source is recorded skipped.
	Document Document
	// Fetcher retrieves script resources. Defaults to an HTTP fetcher.
	Fetcher Fetcher

	// Logger, when nil, disables logging.
	Logger *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Entrypoint == "" {
		c.Entrypoint = DefaultEntrypoint
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = defaultLoadTimeout
	}
	if c.VerifyInterval <= 0 {
		c.VerifyInterval = defaultVerifyEvery
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = defaultVerifyMax
	}
	if c.Fetcher == nil {
		c.Fetcher = NewHTTPFetcher(c.LoadTimeout)
	}
	return c
}
