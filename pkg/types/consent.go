package types

// ConsentTag is the fixed first element of every consent command tuple.
const ConsentTag = "consent"

// ConsentKind is the command kind of a consent command.
type ConsentKind string

const (
	ConsentDefault ConsentKind = "default"
	ConsentUpdate  ConsentKind = "update"
)

// ConsentValue is the value assigned to a consent state key.
type ConsentValue string

const (
	ConsentGranted ConsentValue = "granted"
	ConsentDenied  ConsentValue = "denied"
)

// The closed set of consent state keys.
const (
	ConsentKeyAdStorage         = "ad_storage"
	ConsentKeyAnalyticsStorage  = "analytics_storage"
	ConsentKeyAdUserData        = "ad_user_data"
	ConsentKeyAdPersonalization = "ad_personalization"
)

// ConsentKeys lists every accepted consent state key.
func ConsentKeys() []string {
	return []string{
		ConsentKeyAdStorage,
		ConsentKeyAnalyticsStorage,
		ConsentKeyAdUserData,
		ConsentKeyAdPersonalization,
	}
}

// ConsentOptions carries the optional third tuple element.
type ConsentOptions struct {
	// Regions scopes the command to the listed region codes.
	Regions []string
	// WaitForUpdateMillis asks tags to delay measurement for up to this many
	// milliseconds while waiting for a consent update.
	WaitForUpdateMillis int
}

// ConsentCommand is an ordered tuple: the fixed tag, a command kind, a
// normalized state map, and optional options. State is copied on construction
// and on read, so a command cannot be mutated after it is built.
type ConsentCommand struct {
	kind  ConsentKind
	state map[string]ConsentValue
	opts  *ConsentOptions
}

// NewConsentCommand builds a command from already-validated parts, taking
// private copies of the state map and options. Validation lives in the
// consent package; this constructor only guarantees immutability.
func NewConsentCommand(kind ConsentKind, state map[string]ConsentValue, opts *ConsentOptions) *ConsentCommand {
	cp := make(map[string]ConsentValue, len(state))
	for k, v := range state {
		cp[k] = v
	}
	var o *ConsentOptions
	if opts != nil {
		o = &ConsentOptions{
			Regions:             append([]string(nil), opts.Regions...),
			WaitForUpdateMillis: opts.WaitForUpdateMillis,
		}
	}
	return &ConsentCommand{kind: kind, state: cp, opts: o}
}

// CommandKind returns the command kind.
func (c *ConsentCommand) CommandKind() ConsentKind { return c.kind }

// State returns a copy of the normalized state map.
func (c *ConsentCommand) State() map[string]ConsentValue {
	cp := make(map[string]ConsentValue, len(c.state))
	for k, v := range c.state {
		cp[k] = v
	}
	return cp
}

// Options returns a copy of the options, or nil when none were supplied.
func (c *ConsentCommand) Options() *ConsentOptions {
	if c.opts == nil {
		return nil
	}
	return &ConsentOptions{
		Regions:             append([]string(nil), c.opts.Regions...),
		WaitForUpdateMillis: c.opts.WaitForUpdateMillis,
	}
}

// Tuple renders the command in its delivered wire shape:
// ["consent", kind, state] or ["consent", kind, state, options].
func (c *ConsentCommand) Tuple() []any {
	state := make(map[string]any, len(c.state))
	for k, v := range c.state {
		state[k] = string(v)
	}
	tuple := []any{ConsentTag, string(c.kind), state}
	if c.opts != nil {
		opt := map[string]any{}
		if len(c.opts.Regions) > 0 {
			opt["region"] = append([]string(nil), c.opts.Regions...)
		}
		if c.opts.WaitForUpdateMillis > 0 {
			opt["wait_for_update"] = c.opts.WaitForUpdateMillis
		}
		if len(opt) > 0 {
			tuple = append(tuple, opt)
		}
	}
	return tuple
}
