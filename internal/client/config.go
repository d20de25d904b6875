package client

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taglayer/internal/layer"
	"taglayer/internal/loader"
	"taglayer/pkg/types"
)

// defaultSizeCeiling bounds the live layer before eviction kicks in.
const defaultSizeCeiling = 300

// Config encapsulates all tunables for Client construction. Sources is the
// only required field.
type Config struct {
	// Sources lists the containers to load. At least one valid source is
	// required; the list is fixed for the client's lifetime.
	Sources []types.Source
	// LayerName selects the shared layer. Defaults to layer.DefaultName.
	LayerName string
	// SizeCeiling bounds the live layer length; delivery evicts the oldest
	// non-critical entries once the ceiling is reached.
	SizeCeiling int

	// Registry holds the shared layers. Defaults to the process registry.
	Registry *layer.Registry
	// Document is the host document handed to the script load manager. Nil
	// means no document is available and every source is skipped.
	Document loader.Document
	// Fetcher overrides the loader's HTTP fetcher.
	Fetcher loader.Fetcher

	// Script address template parts; defaulted by the loader.
	Host       string
	Entrypoint string

	// Retry/timeout/verification tunables; defaulted by the loader.
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	LoadTimeout    time.Duration
	Verify         func(sourceID string) bool
	VerifyInterval time.Duration
	VerifyTimeout  time.Duration

	// Logger, when nil, disables logging.
	Logger *zerolog.Logger
	// NewID generates the instance identifier. Defaults to uuid.NewString.
	NewID func() string

	// OnEvicted reports each eviction pass: entries trimmed and the size
	// after trimming.
	OnEvicted func(trimmed, newSize int)
	// OnLoadFailure receives every terminal failed or partial record once
	// readiness settles.
	OnLoadFailure func(types.LoadState)
}

// normalize validates the configuration, returning the cleaned source list.
// Configuration mistakes are programmer errors and fail fast.
func (c *Config) normalize() ([]types.Source, error) {
	if len(c.Sources) == 0 {
		return nil, noSourcesError{}
	}
	seen := make(map[string]bool, len(c.Sources))
	sources := make([]types.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		params := make(map[string]string, len(s.Params))
		for k, v := range s.Params {
			params[k] = v
		}
		sources = append(sources, types.Source{ID: id, Params: params})
	}
	if len(sources) == 0 {
		return nil, noSourcesError{allInvalid: true}
	}
	if c.LayerName == "" {
		c.LayerName = layer.DefaultName
	}
	if strings.TrimSpace(c.LayerName) == "" || strings.ContainsAny(c.LayerName, " \t\n") {
		return nil, invalidLayerNameError{name: c.LayerName}
	}
	if c.SizeCeiling <= 0 {
		c.SizeCeiling = defaultSizeCeiling
	}
	if c.Registry == nil {
		c.Registry = layer.Default()
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return sources, nil
}
