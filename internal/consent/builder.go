// Package consent builds and validates consent command tuples. It is pure:
// no state, no I/O, deterministic for any input. Invalid input is a
// programmer error and is rejected at call time, never coerced.
package consent

import (
	"strings"

	"taglayer/pkg/types"
)

// waitCeilingMillis is the largest wait-for-update value accepted without a
// warning. Longer waits are still built, but flagged for the caller because
// tags holding measurement for that long is almost certainly a typo.
const waitCeilingMillis = 60_000

// Warning is a non-fatal condition detected while building a command.
type Warning string

// Default builds a default-consent command.
func Default(state map[string]string, opts *types.ConsentOptions) (*types.ConsentCommand, []Warning, error) {
	return Build(types.ConsentDefault, state, opts)
}

// Update builds an update-consent command.
func Update(state map[string]string, opts *types.ConsentOptions) (*types.ConsentCommand, []Warning, error) {
	return Build(types.ConsentUpdate, state, opts)
}

// Build validates and normalizes the raw state and options into an immutable
// command. The state must contain at least one key; every key must belong to
// the closed consent key set and every value must be "granted" or "denied".
func Build(kind types.ConsentKind, state map[string]string, opts *types.ConsentOptions) (*types.ConsentCommand, []Warning, error) {
	if kind != types.ConsentDefault && kind != types.ConsentUpdate {
		return nil, nil, invalidKindError{kind: string(kind)}
	}
	if len(state) == 0 {
		return nil, nil, emptyStateError{}
	}
	normalized := make(map[string]types.ConsentValue, len(state))
	for key, raw := range state {
		if !knownKey(key) {
			return nil, nil, invalidKeyError{key: key}
		}
		switch types.ConsentValue(raw) {
		case types.ConsentGranted:
			normalized[key] = types.ConsentGranted
		case types.ConsentDenied:
			normalized[key] = types.ConsentDenied
		default:
			return nil, nil, invalidValueError{key: key, value: raw}
		}
	}
	var warnings []Warning
	if opts != nil {
		for i, region := range opts.Regions {
			if strings.TrimSpace(region) == "" {
				return nil, nil, invalidRegionError{index: i}
			}
		}
		if opts.WaitForUpdateMillis < 0 {
			return nil, nil, invalidWaitError{millis: opts.WaitForUpdateMillis}
		}
		if opts.WaitForUpdateMillis > waitCeilingMillis {
			warnings = append(warnings, Warning("wait_for_update exceeds 60s; tags may hold measurement for a very long time"))
		}
	}
	return types.NewConsentCommand(kind, normalized, opts), warnings, nil
}

func knownKey(key string) bool {
	switch key {
	case types.ConsentKeyAdStorage,
		types.ConsentKeyAnalyticsStorage,
		types.ConsentKeyAdUserData,
		types.ConsentKeyAdPersonalization:
		return true
	}
	return false
}
