package client

// noSourcesError signals a configuration with no usable source at all.
type noSourcesError struct{ allInvalid bool }

func (e noSourcesError) Error() string {
	if e.allInvalid {
		return "all configured sources are empty or invalid"
	}
	return "at least one source is required"
}

// IsNoSources reports whether err indicates a missing/invalid source list.
func IsNoSources(err error) bool {
	_, ok := err.(noSourcesError)
	return ok
}

// invalidLayerNameError signals an unusable layer name.
type invalidLayerNameError struct{ name string }

func (e invalidLayerNameError) Error() string { return "invalid layer name: " + e.name }

// IsInvalidLayerName reports whether err indicates a bad layer name.
func IsInvalidLayerName(err error) bool {
	_, ok := err.(invalidLayerNameError)
	return ok
}

// tornDownError signals use of an instance after Teardown.
type tornDownError struct{}

func (tornDownError) Error() string { return "client instance was torn down; construct a new one" }

// IsTornDown reports whether err indicates a destroyed instance.
func IsTornDown(err error) bool {
	_, ok := err.(tornDownError)
	return ok
}
