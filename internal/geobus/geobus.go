// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geobus fuses the result streams of several location providers into a single
// current fix per key.
package geobus

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wneessen/fixtrail/internal/location"
	"github.com/wneessen/fixtrail/internal/logger"
)

const (
	accuracyEpsilon = 1e-6
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
)

const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 6
)

// Provider defines an interface for location providers.
// It supports retrieving streamed results for a given key.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// GeoBus keeps the current fix per key and broadcasts every change to its subscribers.
type GeoBus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	current     map[string]Result
	subscribers map[string]map[chan Result]struct{}
}

// Result represents a location result with associated metadata.
type Result struct {
	Key            string
	Lat, Lon       float64
	Alt            float64
	AccuracyMeters float64
	Source         string
	At             time.Time
	TTL            time.Duration
}

// BetterThan reports whether r should replace prev as the current fix. A result from before prev
// never wins; otherwise the more accurate result wins, with a small tolerance.
func (r Result) BetterThan(prev Result) bool {
	if prev.Key == "" {
		return true
	}
	if r.At.Before(prev.At) {
		return false
	}
	return r.AccuracyMeters < prev.AccuracyMeters-accuracyEpsilon
}

// IsExpired checks if the Result has exceeded its time-to-live (TTL) based on the current time and the timestamp.
func (r Result) IsExpired() bool {
	return r.TTL > 0 && time.Since(r.At) > r.TTL
}

// Fix converts the Result into an immutable location.Fix.
func (r Result) Fix() location.Fix {
	return location.Fix{
		Provider:  r.Source,
		Latitude:  r.Lat,
		Longitude: r.Lon,
		Accuracy:  r.AccuracyMeters,
		Time:      r.At,
	}
}

// New initializes and returns a new, empty GeoBus.
func New(log *logger.Logger) *GeoBus {
	return &GeoBus{
		logger:      log,
		current:     make(map[string]Result),
		subscribers: make(map[string]map[chan Result]struct{}),
	}
}

func (b *GeoBus) NewOrchestrator(provider []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: provider,
	}
}

// Subscribe adds a subscriber for updates associated with the given key and buffer size, returning a result
// channel and an unsubscribe function.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Result, func()) {
	resultChan := make(chan Result, size)
	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[chan Result]struct{})
	}

	b.subscribers[key][resultChan] = struct{}{}
	if cur, ok := b.current[key]; ok && !cur.IsExpired() && size > 0 {
		resultChan <- cur
	}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if subs, ok := b.subscribers[key]; ok {
			delete(subs, resultChan)
			if len(subs) == 0 {
				delete(b.subscribers, key)
			}
		}
		b.mu.Unlock()
		close(resultChan)
	}

	return resultChan, unsub
}

// Publish offers r to the bus. It becomes the current fix for its key if there is none yet, the
// current one expired, it comes from the same provider as the current one, or it is better.
func (b *GeoBus) Publish(r Result) {
	if r.AccuracyMeters == 0 {
		return
	}
	if !r.Fix().Valid() {
		b.logger.Debug("dropping result with invalid coordinates", slog.String("source", r.Source),
			slog.Float64("lat", r.Lat), slog.Float64("lon", r.Lon))
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev, have := b.current[r.Key]
	if have && !prev.IsExpired() && prev.Source != r.Source && !r.BetterThan(prev) {
		return
	}
	b.current[r.Key] = r
	b.broadcastResult(r)
}

// broadcastResult must be called with b.mu held.
func (b *GeoBus) broadcastResult(r Result) {
	if subs, ok := b.subscribers[r.Key]; ok {
		for ch := range subs {
			select {
			case ch <- r:
			default:
			}
		}
	}
}

// Current returns the current, non-expired fix for key.
func (b *GeoBus) Current(key string) (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.current[key]
	return r, ok && !r.IsExpired()
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Truncate cuts x to the given number of decimal places.
func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
