package fluent

import (
	"sort"
	"sync"
)

// Filter is a request/response interceptor. OnRequest hooks run ascending
// by priority before dispatch; OnResponse hooks run in the exact reverse of
// that order after a response arrives. A non-nil error from either hook
// aborts the remaining chain and propagates to the caller.
type Filter interface {
	// Name identifies the filter in logs.
	Name() string

	// Priority orders the chain; lower runs earlier on the request path.
	Priority() int

	OnRequest(req *Request) error
	OnResponse(resp *Response, httpErrorAsException bool) error
}

// FilterKind tags a filter at registration so whole kinds can be removed
// from a request without runtime type inspection.
type FilterKind string

// Kinds for the filters shipped with the package. Applications register
// their own kinds freely.
const (
	KindAuthentication FilterKind = "authentication"
	KindLogging        FilterKind = "logging"
	KindRateLimit      FilterKind = "rate-limit"
	KindDefaultError   FilterKind = "default-error"
	KindCircuitBreaker FilterKind = "circuit-breaker"
)

// registeredFilter pairs a filter with its kind tag and registration index.
// The index breaks priority ties so ordering is stable.
type registeredFilter struct {
	filter Filter
	kind   FilterKind
	seq    int
}

// FilterCollection is an ordered set of registered filters. It tolerates
// concurrent reads from in-flight requests; mutation is expected during
// client setup but is locked regardless.
type FilterCollection struct {
	mu      sync.RWMutex
	entries []registeredFilter
	nextSeq int
}

// NewFilterCollection creates an empty collection.
func NewFilterCollection() *FilterCollection {
	return &FilterCollection{}
}

// Add registers a filter under a kind tag and re-sorts the collection by
// (priority, registration index).
func (c *FilterCollection) Add(kind FilterKind, f Filter) {
	if f == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, registeredFilter{filter: f, kind: kind, seq: c.nextSeq})
	c.nextSeq++
	sortFilters(c.entries)
}

// Remove deletes a specific filter instance. Reports whether it was found.
func (c *FilterCollection) Remove(f Filter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.filter == f {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveKind deletes every filter registered under kind and returns how
// many were removed.
func (c *FilterCollection) RemoveKind(kind FilterKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0]
	removed := 0
	for _, e := range c.entries {
		if e.kind == kind {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
	return removed
}

// ContainsKind reports whether any filter is registered under kind.
func (c *FilterCollection) ContainsKind(kind FilterKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.kind == kind {
			return true
		}
	}
	return false
}

// Filters returns the registered filters in chain order.
func (c *FilterCollection) Filters() []Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Filter, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.filter
	}
	return out
}

// Clear removes every filter.
func (c *FilterCollection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Len returns the number of registered filters.
func (c *FilterCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// snapshot copies the entries so requests iterate a stable view even if the
// collection mutates mid-flight.
func (c *FilterCollection) snapshot() []registeredFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]registeredFilter, len(c.entries))
	copy(out, c.entries)
	return out
}

func sortFilters(entries []registeredFilter) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].filter.Priority(), entries[j].filter.Priority()
		if pi != pj {
			return pi < pj
		}
		return entries[i].seq < entries[j].seq
	})
}
