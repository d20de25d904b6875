package types

// Diagnostics is a read-only snapshot of a client instance's counters,
// returned by Client.Diagnostics and by GET /status.
type Diagnostics struct {
	// Whether Init has completed on this instance.
	Initialized bool `json:"initialized"`
	// Whether every configured source reached a terminal load state.
	Ready bool `json:"ready"`
	// Name of the shared layer this instance writes to.
	LayerName string `json:"layer_name"`
	// Current length of the live layer (0 before Init).
	BufferSize int `json:"buffer_size"`
	// Entries held in the pre-initialization queue.
	QueueSize int `json:"queue_size"`
	// Consent commands delivered during this instance's lifetime.
	ConsentDelivered int `json:"consent_delivered"`
	// Configured source identifiers.
	SourceIDs []string `json:"source_ids"`
	// Per-source load-state records.
	LoadStates []LoadState `json:"load_states"`
	// Seconds since the instance was constructed.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	Error string `json:"error"`
	// HTTP status code.
	Code int `json:"code"`
}

// PushRequest is the body of POST /push: one key/value record to deliver.
type PushRequest struct {
	Data map[string]any `json:"data"`
}

// ConsentRequest is the body of POST /consent/default and /consent/update.
type ConsentRequest struct {
	// State maps consent keys to "granted" or "denied".
	State map[string]string `json:"state"`
	// Regions optionally scopes the command.
	Regions []string `json:"regions,omitempty"`
	// WaitForUpdateMillis optionally asks tags to delay measurement.
	WaitForUpdateMillis int `json:"wait_for_update_millis,omitempty"`
}
