package types

// Kind discriminates the variants of a buffer entry.
type Kind int

const (
	// KindEvent is an open key/value record carrying an "event" discriminator.
	KindEvent Kind = iota
	// KindAmbient is a key/value record with no discriminator, treated as
	// ambient context by downstream tags.
	KindAmbient
	// KindConsentDefault carries a default-consent command.
	KindConsentDefault
	// KindConsentUpdate carries an update-consent command.
	KindConsentUpdate
	// KindCallback is a zero-argument deferred callback.
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindAmbient:
		return "ambient"
	case KindConsentDefault:
		return "consent_default"
	case KindConsentUpdate:
		return "consent_update"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Entry is one item in the shared layer. Exactly one of Data, Consent or
// Callback is set, according to Kind. Entries are opaque to the script load
// manager; only the client interprets them.
type Entry struct {
	Kind     Kind
	Data     map[string]any
	Consent  *ConsentCommand
	Callback func()
}

// MapEntry wraps a key/value record, classifying it as an event when it
// carries an "event" discriminator and as ambient context otherwise.
func MapEntry(data map[string]any) Entry {
	if _, ok := data["event"]; ok {
		return Entry{Kind: KindEvent, Data: data}
	}
	return Entry{Kind: KindAmbient, Data: data}
}

// EventEntry wraps an event record regardless of discriminator presence.
func EventEntry(data map[string]any) Entry {
	return Entry{Kind: KindEvent, Data: data}
}

// CallbackEntry wraps a deferred callback.
func CallbackEntry(fn func()) Entry {
	return Entry{Kind: KindCallback, Callback: fn}
}

// ConsentEntry wraps a consent command; the entry kind follows the command kind.
func ConsentEntry(cmd *ConsentCommand) Entry {
	if cmd == nil {
		return Entry{}
	}
	k := KindConsentDefault
	if cmd.CommandKind() == ConsentUpdate {
		k = KindConsentUpdate
	}
	return Entry{Kind: k, Consent: cmd}
}

// IsZero reports whether the entry carries no payload at all.
func (e Entry) IsZero() bool {
	return e.Data == nil && e.Consent == nil && e.Callback == nil
}

// IsConsent reports whether the entry is a consent command.
func (e Entry) IsConsent() bool {
	return e.Kind == KindConsentDefault || e.Kind == KindConsentUpdate
}
