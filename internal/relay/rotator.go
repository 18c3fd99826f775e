package relay

import (
	"errors"
	"net/url"
	"strings"
	"sync"
)

// Rotator is an ordered relay list with exactly one current entry.
//
// Rotation only advances the pointer; the list itself never changes. A
// Rotator is shared by every request made through one Transport, so a
// rotation triggered by one request's retries moves later, unrelated
// requests onto the next relay as well.
type Rotator struct {
	mu        sync.Mutex
	endpoints []string
	current   int
}

// NewRotator copies endpoints. The list must be non-empty.
func NewRotator(endpoints []string) (*Rotator, error) {
	list := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e = strings.TrimSpace(e); e != "" {
			list = append(list, e)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("relay: at least one relay endpoint is required")
	}
	return &Rotator{endpoints: list}, nil
}

func (r *Rotator) Len() int {
	return len(r.endpoints)
}

// Current returns the selected relay prefix.
func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoints[r.current]
}

// Index returns the position of the selected relay.
func (r *Rotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Advance moves to the next relay, wrapping, and returns it.
func (r *Rotator) Advance() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = (r.current + 1) % len(r.endpoints)
	return r.endpoints[r.current]
}

// Endpoints returns a copy of the relay list.
func (r *Rotator) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

// Wrap routes target through the current relay: prefix + percent-encoded target.
func (r *Rotator) Wrap(target string) string {
	return r.Current() + encodeComponent(target)
}

// Unwrap strips a known relay prefix and decodes the original address.
// Addresses that were never relayed are returned unchanged.
func (r *Rotator) Unwrap(u string) string {
	prefix, ok := r.prefixOf(u)
	if !ok {
		return u
	}
	rest := strings.TrimPrefix(u, prefix)
	if decoded, err := url.QueryUnescape(rest); err == nil {
		return decoded
	}
	return rest
}

// IsRelayed reports whether u already goes through one of the relays.
func (r *Rotator) IsRelayed(u string) bool {
	_, ok := r.prefixOf(u)
	return ok
}

func (r *Rotator) prefixOf(u string) (string, bool) {
	// Longest match first so overlapping prefixes strip fully.
	best := ""
	for _, e := range r.endpoints {
		if strings.HasPrefix(u, e) && len(e) > len(best) {
			best = e
		}
	}
	return best, best != ""
}

// encodeComponent percent-encodes s for use as a single query value, with
// spaces as %20 rather than '+'.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// isDirect reports whether u is an absolute http(s) address.
func isDirect(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
