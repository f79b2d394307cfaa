// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package keypool tracks the API keys of every configured provider and decides which
// key serves the next request. Keys rotate round-robin; a rate-limited key cools down
// with exponential backoff and a rejected key is retired for the rest of the process.
//
// A single Pool is shared by every session. All state changes go through Report,
// and each Lease can be reported at most once.
package keypool

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the selection state of a credential.
type Status string

const (
	// StatusActive credentials are eligible for selection.
	StatusActive Status = "active"
	// StatusCoolingDown credentials become eligible again once CooldownUntil has passed.
	StatusCoolingDown Status = "cooling_down"
	// StatusExhausted credentials were rejected by the provider and are never selected again.
	StatusExhausted Status = "exhausted"
)

// Outcome is the result of one provider call made with a leased credential.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeAuthError
	OutcomeTransientError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeAuthError:
		return "auth_error"
	case OutcomeTransientError:
		return "transient_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var (
	// ErrNoCredentialAvailable is returned by Acquire when every credential of a
	// provider is cooling down or exhausted, or the provider has none.
	ErrNoCredentialAvailable = errors.New("keypool: no credential available")
	// ErrDuplicateCredential is returned by Add for a (provider, key) pair already present.
	ErrDuplicateCredential = errors.New("keypool: duplicate credential")
)

// Credential is a snapshot of one key's state.
type Credential struct {
	ProviderID          string    `json:"provider_id"`
	Key                 string    `json:"key"`
	Status              Status    `json:"status"`
	CooldownUntil       time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

type credentialID struct {
	provider string
	key      string
}

type ring struct {
	creds []*Credential
	next  int
}

// Pool owns every credential. The zero value is not usable; call New.
type Pool struct {
	mu             sync.Mutex
	rings          map[string]*ring
	order          []string
	index          map[credentialID]*Credential
	backoff        Backoff
	now            func() time.Time
	disableCooling bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithBackoff sets the cooldown schedule.
func WithBackoff(b Backoff) Option {
	return func(p *Pool) { p.backoff = b.normalized() }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithoutCooling keeps rate-limited credentials active.
func WithoutCooling() Option {
	return func(p *Pool) { p.disableCooling = true }
}

// New creates an empty Pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		rings:   make(map[string]*ring),
		index:   make(map[credentialID]*Credential),
		backoff: DefaultBackoff(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add registers a credential for providerID. An empty key is allowed for providers
// that need no authentication; it still participates in selection.
func (p *Pool) Add(providerID, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := credentialID{provider: providerID, key: key}
	if _, exists := p.index[id]; exists {
		return fmt.Errorf("%w: provider %s", ErrDuplicateCredential, providerID)
	}
	c := &Credential{ProviderID: providerID, Key: key, Status: StatusActive}
	p.index[id] = c

	r, ok := p.rings[providerID]
	if !ok {
		r = &ring{}
		p.rings[providerID] = r
		p.order = append(p.order, providerID)
	}
	r.creds = append(r.creds, c)
	return nil
}

// Acquire selects the next eligible credential of providerID in round-robin order.
// A cooling credential whose cooldown has elapsed is reactivated on selection.
func (p *Pool) Acquire(providerID string) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.rings[providerID]
	if r == nil || len(r.creds) == 0 {
		return nil, fmt.Errorf("%w: provider %s has no credentials", ErrNoCredentialAvailable, providerID)
	}

	now := p.now()
	n := len(r.creds)
	for i := 0; i < n; i++ {
		idx := (r.next + i) % n
		c := r.creds[idx]
		if !eligible(c, now) {
			continue
		}
		if c.Status == StatusCoolingDown {
			c.Status = StatusActive
			c.CooldownUntil = time.Time{}
		}
		r.next = (idx + 1) % n
		return &Lease{cred: c, providerID: c.ProviderID, key: c.Key}, nil
	}
	return nil, fmt.Errorf("%w: provider %s", ErrNoCredentialAvailable, providerID)
}

func eligible(c *Credential, now time.Time) bool {
	switch c.Status {
	case StatusActive:
		return true
	case StatusCoolingDown:
		return !now.Before(c.CooldownUntil)
	default:
		return false
	}
}

// ReportOption adjusts how an outcome is applied.
type ReportOption func(*reportOptions)

type reportOptions struct {
	retryAfter time.Duration
}

// RetryAfter passes the provider's Retry-After hint. It can lengthen the cooldown of a
// rate-limited credential but never beyond the backoff maximum.
func RetryAfter(d time.Duration) ReportOption {
	return func(o *reportOptions) { o.retryAfter = d }
}

// Report applies the outcome of the call made with l and returns the credential's new state.
// Only the first Report of a lease has an effect; later calls return the current state.
func (p *Pool) Report(l *Lease, outcome Outcome, opts ...ReportOption) Credential {
	if l == nil || l.cred == nil {
		return Credential{}
	}
	var ro reportOptions
	for _, opt := range opts {
		opt(&ro)
	}

	first := false
	l.once.Do(func() { first = true })

	p.mu.Lock()
	defer p.mu.Unlock()

	c := l.cred
	if first {
		p.apply(c, outcome, ro)
	}
	return *c
}

func (p *Pool) apply(c *Credential, outcome Outcome, ro reportOptions) {
	switch outcome {
	case OutcomeSuccess:
		if c.Status == StatusExhausted {
			return
		}
		// A concurrent call may have cooled the key after this lease was taken.
		if c.Status == StatusCoolingDown && p.now().Before(c.CooldownUntil) {
			return
		}
		c.ConsecutiveFailures = 0
		c.Status = StatusActive
		c.CooldownUntil = time.Time{}
	case OutcomeRateLimited:
		if c.Status == StatusExhausted {
			return
		}
		if !p.disableCooling {
			d := p.backoff.Duration(c.ConsecutiveFailures)
			if ro.retryAfter > d {
				d = min(ro.retryAfter, p.backoff.Max)
			}
			c.Status = StatusCoolingDown
			c.CooldownUntil = p.now().Add(d)
		}
		c.ConsecutiveFailures++
	case OutcomeAuthError:
		c.Status = StatusExhausted
		c.CooldownUntil = time.Time{}
		c.ConsecutiveFailures++
	case OutcomeTransientError:
		c.ConsecutiveFailures++
	}
}

// Providers returns provider IDs in registration order.
func (p *Pool) Providers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Available counts the credentials of providerID that Acquire could select right now.
func (p *Pool) Available(providerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.rings[providerID]
	if r == nil {
		return 0
	}
	now := p.now()
	count := 0
	for _, c := range r.creds {
		if eligible(c, now) {
			count++
		}
	}
	return count
}

// NextAvailable returns the earliest time a credential of providerID becomes selectable.
// ok is false when every credential is exhausted or none exist.
func (p *Pool) NextAvailable(providerID string) (t time.Time, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.rings[providerID]
	if r == nil {
		return time.Time{}, false
	}
	now := p.now()
	for _, c := range r.creds {
		switch c.Status {
		case StatusActive:
			return now, true
		case StatusCoolingDown:
			if !ok || c.CooldownUntil.Before(t) {
				t, ok = c.CooldownUntil, true
			}
		}
	}
	return t, ok
}

// Snapshot returns copies of every credential with keys masked by mask, grouped by
// provider in registration order. A nil mask leaves keys untouched.
func (p *Pool) Snapshot(mask func(string) string) []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Credential, 0, len(p.index))
	for _, id := range p.order {
		for _, c := range p.rings[id].creds {
			cp := *c
			if mask != nil {
				cp.Key = mask(cp.Key)
			}
			out = append(out, cp)
		}
	}
	return out
}

// Lease is the right to use one credential for one provider call.
type Lease struct {
	cred       *Credential
	providerID string
	key        string
	once       sync.Once
}

// ProviderID returns the provider the credential belongs to.
func (l *Lease) ProviderID() string { return l.providerID }

// Key returns the secret to send to the provider.
func (l *Lease) Key() string { return l.key }
