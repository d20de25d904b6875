// Package signature derives canonical string signatures from buffer entries.
// Two structurally equal entries produce the same signature regardless of key
// insertion order, which makes the signature usable as a content-addressed
// dedup key. Values that cannot be serialized (callbacks, cyclic structures)
// produce no signature and are therefore never deduplicated.
package signature

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"taglayer/pkg/types"
)

// Engine computes signatures and memoizes them per underlying map identity.
// The memo cache is size-bounded with manual eviction, so the engine itself
// never causes unbounded growth.
type Engine struct {
	cache *identityCache
}

// NewEngine returns an engine with the default cache capacity.
func NewEngine() *Engine {
	return &Engine{cache: newIdentityCache(defaultCacheCapacity)}
}

// For returns the canonical signature of an entry. ok is false when the entry
// is not serializable: callbacks always, and any map participating in a cycle.
func (e *Engine) For(entry types.Entry) (string, bool) {
	switch entry.Kind {
	case types.KindCallback:
		return "", false
	case types.KindConsentDefault, types.KindConsentUpdate:
		if entry.Consent == nil {
			return "", false
		}
		return encodeValue(entry.Consent.Tuple(), nil)
	default:
		if entry.Data == nil {
			return "", false
		}
		key := reflect.ValueOf(entry.Data).Pointer()
		if sig, ok := e.cache.get(key); ok {
			return sig, true
		}
		sig, ok := encodeValue(entry.Data, nil)
		if !ok {
			return "", false
		}
		e.cache.put(key, sig)
		return sig, true
	}
}

// encodeValue renders v in a canonical JSON-like form with lexicographically
// sorted object keys. seen tracks container identities on the current path to
// detect cycles.
func encodeValue(v any, seen map[uintptr]bool) (string, bool) {
	if v == nil {
		return "null", true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "", false
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "null", true
		}
		return encodeValue(rv.Elem().Interface(), seen)
	case reflect.Map:
		if rv.IsNil() {
			return "null", true
		}
		if rv.Type().Key().Kind() != reflect.String {
			return "", false
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return "", false
		}
		seen = withSeen(seen, ptr)
		defer delete(seen, ptr)
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kq, _ := json.Marshal(k)
			b.Write(kq)
			b.WriteByte(':')
			enc, ok := encodeValue(rv.MapIndex(reflect.ValueOf(k)).Interface(), seen)
			if !ok {
				return "", false
			}
			b.WriteString(enc)
		}
		b.WriteByte('}')
		return b.String(), true
	case reflect.Slice, reflect.Array:
		var ptr uintptr
		if rv.Kind() == reflect.Slice {
			if rv.IsNil() {
				return "null", true
			}
			ptr = rv.Pointer()
			if seen[ptr] {
				return "", false
			}
			seen = withSeen(seen, ptr)
			defer delete(seen, ptr)
		}
		var b strings.Builder
		b.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, ok := encodeValue(rv.Index(i).Interface(), seen)
			if !ok {
				return "", false
			}
			b.WriteString(enc)
		}
		b.WriteByte(']')
		return b.String(), true
	default:
		// Scalars and structs: encoding/json gives stable formatting and
		// rejects anything it cannot represent.
		enc, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(enc), true
	}
}

func withSeen(seen map[uintptr]bool, ptr uintptr) map[uintptr]bool {
	if seen == nil {
		seen = make(map[uintptr]bool)
	}
	seen[ptr] = true
	return seen
}
