package fluent

import (
	"net/textproto"
	"sort"
)

// Headers is a case-insensitive, single-valued HTTP header map. Keys are
// stored in canonical MIME form so lookups behave the same regardless of the
// casing callers use.
type Headers map[string]string

// NewHeaders creates a Headers map from an optional plain map, canonicalizing
// every key.
func NewHeaders(from map[string]string) Headers {
	h := make(Headers, len(from))
	for k, v := range from {
		h.Set(k, v)
	}
	return h
}

// canonicalHeaderKey exposes the canonical form for callers that track key
// sets of their own.
func canonicalHeaderKey(key string) string {
	return textproto.CanonicalMIMEHeaderKey(key)
}

// Set stores a value, replacing any existing value for the key.
func (h Headers) Set(key, value string) {
	h[textproto.CanonicalMIMEHeaderKey(key)] = value
}

// Get returns the value for key, or "" if absent.
func (h Headers) Get(key string) string {
	return h[textproto.CanonicalMIMEHeaderKey(key)]
}

// Has reports whether the key is present.
func (h Headers) Has(key string) bool {
	_, ok := h[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// Del removes the key if present.
func (h Headers) Del(key string) {
	delete(h, textproto.CanonicalMIMEHeaderKey(key))
}

// Clone returns a deep copy. A nil receiver clones to an empty map.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Keys returns the header names in sorted order, for deterministic logging.
func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
