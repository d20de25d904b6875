package types

// Source describes one externally-hosted script container configuration.
// Immutable once normalized: a client owns a fixed list of sources for its
// lifetime, and changing the list requires constructing a new client.
type Source struct {
	// ID identifies the remote container, e.g. "TL-ABC123".
	ID string `json:"id" yaml:"id" toml:"id"`
	// Params are optional per-source query parameters appended to the
	// resolved script URL.
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
}

// LoadStatus is the closed set of per-source load states. Pending is the only
// non-terminal status.
type LoadStatus string

const (
	StatusPending LoadStatus = "pending"
	StatusLoaded  LoadStatus = "loaded"
	StatusFailed  LoadStatus = "failed"
	StatusSkipped LoadStatus = "skipped"
	// StatusPartial means the script resource was fetched but the remote
	// payload never signaled successful initialization within the
	// verification window.
	StatusPartial LoadStatus = "partial"
)

// Terminal reports whether the status is a terminal one.
func (s LoadStatus) Terminal() bool { return s != StatusPending && s != "" }

// LoadState records the outcome of loading one source. A record transitions
// to a terminal status exactly once and is immutable afterwards; a retry
// creates a fresh in-flight record rather than mutating a terminal one.
type LoadState struct {
	// SourceID of the tracked source.
	SourceID string `json:"source_id"`
	// URL is the resolved resource address.
	URL string `json:"url"`
	// Status of the load.
	Status LoadStatus `json:"status"`
	// Error describes a failed, skipped or partial outcome.
	Error string `json:"error,omitempty"`
	// FromCache is set when an equivalent resource was already present in the
	// host document and injection was skipped.
	FromCache bool `json:"from_cache,omitempty"`
	// Attempts counts injection attempts, including the first.
	Attempts int `json:"attempts"`
	// ElapsedMillis measures time from tracking start to the terminal state.
	ElapsedMillis int64 `json:"elapsed_ms,omitempty"`
}
