package consent

import "strconv"

// invalidKindError signals a command kind outside default/update.
type invalidKindError struct{ kind string }

func (e invalidKindError) Error() string { return "unsupported consent command kind: " + e.kind }

// IsInvalidKind reports whether err indicates an unsupported command kind.
func IsInvalidKind(err error) bool {
	_, ok := err.(invalidKindError)
	return ok
}

// emptyStateError signals a state map with no keys at all.
type emptyStateError struct{}

func (emptyStateError) Error() string { return "consent state must contain at least one key" }

// IsEmptyState reports whether err indicates an empty state map.
func IsEmptyState(err error) bool {
	_, ok := err.(emptyStateError)
	return ok
}

// invalidKeyError signals a state key outside the closed consent key set.
type invalidKeyError struct{ key string }

func (e invalidKeyError) Error() string { return "unknown consent key: " + e.key }

// IsInvalidKey reports whether err indicates an unknown consent key.
func IsInvalidKey(err error) bool {
	_, ok := err.(invalidKeyError)
	return ok
}

// invalidValueError signals a state value other than granted/denied.
type invalidValueError struct{ key, value string }

func (e invalidValueError) Error() string {
	return "consent value for " + e.key + " must be granted or denied, got " + strconv.Quote(e.value)
}

// IsInvalidValue reports whether err indicates a bad consent value.
func IsInvalidValue(err error) bool {
	_, ok := err.(invalidValueError)
	return ok
}

// invalidRegionError signals an empty or blank region code.
type invalidRegionError struct{ index int }

func (e invalidRegionError) Error() string {
	return "region code at index " + strconv.Itoa(e.index) + " is empty"
}

// IsInvalidRegion reports whether err indicates a bad region list.
func IsInvalidRegion(err error) bool {
	_, ok := err.(invalidRegionError)
	return ok
}

// invalidWaitError signals a negative wait-for-update value.
type invalidWaitError struct{ millis int }

func (e invalidWaitError) Error() string {
	return "wait_for_update must be >= 0, got " + strconv.Itoa(e.millis)
}

// IsInvalidWait reports whether err indicates a bad wait value.
func IsInvalidWait(err error) bool {
	_, ok := err.(invalidWaitError)
	return ok
}

// IsValidation reports whether err is any consent validation error.
func IsValidation(err error) bool {
	return IsInvalidKind(err) || IsEmptyState(err) || IsInvalidKey(err) ||
		IsInvalidValue(err) || IsInvalidRegion(err) || IsInvalidWait(err)
}
