// Package breaker isolates failing domains so workers stop paying fetch and
// render costs against them until a cool-down elapses.
package breaker

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultThreshold    = 3
	DefaultResetTimeout = 30 * time.Minute
)

// Config tunes the breaker.
type Config struct {
	Threshold    int
	ResetTimeout time.Duration
}

// Observer receives breaker transitions. metrics.BreakerEvent satisfies it.
type Observer func(event string)

// Breaker events reported to the Observer.
const (
	EventFailure      = "failure"
	EventOpen         = "open"
	EventReset        = "reset"
	EventSuccess      = "success"
	EventShortCircuit = "short_circuit"
)

type domainState struct {
	failures    int
	lastFailure time.Time
}

// DomainState is a point-in-time view of one tracked domain.
type DomainState struct {
	Domain       string    `json:"domain"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
	Open         bool      `json:"open"`
}

// Breaker tracks per-domain failures behind a single mutex.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	reset     time.Duration
	clock     harvest.Clock
	observe   Observer
	states    map[string]*domainState
}

// New returns a Breaker. A nil clock uses the wall clock; a nil observer is ignored.
func New(cfg Config, clock harvest.Clock, observe Observer) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if clock == nil {
		clock = wallClock{}
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Breaker{
		threshold: cfg.Threshold,
		reset:     cfg.ResetTimeout,
		clock:     clock,
		observe:   observe,
		states:    make(map[string]*domainState),
	}
}

// RecordFailure counts a failure for domain and stamps its time. It returns
// true when the domain is open after the call.
func (b *Breaker) RecordFailure(domain string) bool {
	key := normalize(domain)
	if key == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[key]
	if !ok {
		st = &domainState{}
		b.states[key] = st
	}
	st.failures++
	st.lastFailure = b.clock.Now()
	b.observe(EventFailure)
	if st.failures == b.threshold {
		b.observe(EventOpen)
	}
	return st.failures >= b.threshold
}

// RecordSuccess clears all bookkeeping for domain.
func (b *Breaker) RecordSuccess(domain string) {
	key := normalize(domain)
	if key == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, key)
	b.observe(EventSuccess)
}

// IsOpen reports whether attempts against domain should be suppressed. An open
// domain whose last failure is older than the reset timeout is purged and
// reported closed.
func (b *Breaker) IsOpen(domain string) bool {
	key := normalize(domain)
	if key == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[key]
	if !ok || st.failures < b.threshold {
		return false
	}
	if b.clock.Now().Sub(st.lastFailure) >= b.reset {
		delete(b.states, key)
		b.observe(EventReset)
		return false
	}
	b.observe(EventShortCircuit)
	return true
}

// FailureCount returns the failures currently recorded for domain.
func (b *Breaker) FailureCount(domain string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[normalize(domain)]; ok {
		return st.failures
	}
	return 0
}

// Snapshot lists tracked domains sorted by name. It does not purge expired entries.
func (b *Breaker) Snapshot() []DomainState {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	out := make([]DomainState, 0, len(b.states))
	for domain, st := range b.states {
		out = append(out, DomainState{
			Domain:       domain,
			FailureCount: st.failures,
			LastFailure:  st.lastFailure,
			Open:         st.failures >= b.threshold && now.Sub(st.lastFailure) < b.reset,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

func normalize(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(d, "www.")
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
