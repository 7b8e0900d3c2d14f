package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
)

var (
	errSearchAPIRequired = errors.New("search service: search api is required")
)

// SearchDelivery receives the outcome of a debounced query. Exactly one of
// result or err is meaningful.
type SearchDelivery func(term string, result backend.SearchResult, err error)

// DebouncedSearch coalesces rapid query updates: only the latest term is sent
// to the backend, after the debounce window elapses with no newer input.
type DebouncedSearch struct {
	api    SearchAPI
	delay  time.Duration
	logger func(context.Context, string, map[string]any)

	mu         sync.Mutex
	pending    *time.Timer
	generation uint64
	closed     bool
}

// DebouncedSearchDeps wires the search dependencies.
type DebouncedSearchDeps struct {
	API    SearchAPI
	Delay  time.Duration
	Logger func(context.Context, string, map[string]any)
}

// NewDebouncedSearch constructs a DebouncedSearch enforcing dependency
// validation.
func NewDebouncedSearch(deps DebouncedSearchDeps) (*DebouncedSearch, error) {
	if deps.API == nil {
		return nil, errSearchAPIRequired
	}
	delay := deps.Delay
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &DebouncedSearch{api: deps.API, delay: delay, logger: logger}, nil
}

// Query schedules a search for the term. A newer call supersedes any pending
// one. An empty term cancels pending work and delivers an empty result
// immediately, clearing stale suggestions.
func (d *DebouncedSearch) Query(ctx context.Context, term string, deliver SearchDelivery) {
	if deliver == nil {
		return
	}
	trimmed := strings.TrimSpace(term)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.generation++
	gen := d.generation

	if trimmed == "" {
		d.mu.Unlock()
		deliver("", backend.SearchResult{}, nil)
		return
	}

	d.pending = time.AfterFunc(d.delay, func() {
		if !d.current(gen) {
			return
		}
		result, err := d.api.UniversalSearch(ctx, trimmed)
		if err != nil {
			d.logger(ctx, "search.query_failed", map[string]any{"term": trimmed, "error": err.Error()})
		}
		// A newer query may have landed while the request was in flight;
		// its delivery would race this one, so stale results are dropped.
		if !d.current(gen) {
			return
		}
		deliver(trimmed, result, err)
	})
	d.mu.Unlock()
}

// Close cancels any pending query. Further calls to Query are no-ops.
func (d *DebouncedSearch) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.generation++
}

func (d *DebouncedSearch) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed && gen == d.generation
}
