// Package rotator cycles through a fixed set of interchangeable API
// credentials. Each credential is tried at most once per round; once every
// credential has failed the round restarts from the first one.
package rotator

import "errors"

var ErrNoCredentials = errors.New("credential set is empty")

// Rotator is not safe for concurrent use. Each channel poller owns its own.
type Rotator struct {
	credentials []string
	index       int
	tried       map[int]struct{}
}

// New returns a Rotator positioned at start modulo the number of credentials.
// The credentials slice is shared and must not be modified afterwards.
func New(credentials []string, start int) (*Rotator, error) {
	if len(credentials) == 0 {
		return nil, ErrNoCredentials
	}
	start %= len(credentials)
	if start < 0 {
		start += len(credentials)
	}
	return &Rotator{
		credentials: credentials,
		index:       start,
		tried:       make(map[int]struct{}, len(credentials)),
	}, nil
}

// Current returns the credential in use.
func (r *Rotator) Current() string {
	return r.credentials[r.index]
}

// Index returns the position of the current credential.
func (r *Rotator) Index() int {
	return r.index
}

// Len returns the size of the credential set.
func (r *Rotator) Len() int {
	return len(r.credentials)
}

// Advance marks the current credential as tried and moves to the nearest
// untried one, scanning forward and wrapping around. When every credential
// has been tried, the round is reset and index 0 is returned.
func (r *Rotator) Advance() string {
	r.tried[r.index] = struct{}{}

	n := len(r.credentials)
	for step := 1; step <= n; step++ {
		candidate := (r.index + step) % n
		if _, ok := r.tried[candidate]; !ok {
			r.index = candidate
			return r.credentials[r.index]
		}
	}

	for k := range r.tried {
		delete(r.tried, k)
	}
	r.index = 0
	r.tried[0] = struct{}{}
	return r.credentials[0]
}

// Redact shortens a credential for logging.
func Redact(credential string) string {
	if len(credential) <= 8 {
		return credential
	}
	return credential[:8] + "…"
}
