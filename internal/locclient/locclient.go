// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package locclient implements a location.Source on top of the provider bus. Providers are
// tracked while the client is connected; standing update requests subscribe to the bus and are
// served by scheduled jobs that deliver the newest fused fix once per interval.
package locclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/wneessen/fixtrail/internal/geobus"
	"github.com/wneessen/fixtrail/internal/geobus/provider/gpxtrace"
	"github.com/wneessen/fixtrail/internal/gpspoll"
	"github.com/wneessen/fixtrail/internal/location"
	"github.com/wneessen/fixtrail/internal/logger"
)

const (
	// BusKey is the geobus key all providers of the client publish to.
	BusKey = "fixtrail"

	pollTimeout            = time.Second * 2
	subscriptionBufferSize = 8
)

var (
	ErrNotConnected   = errors.New("location client is not connected")
	ErrNoProviders    = errors.New("no location providers enabled")
	ErrNoMockProvider = errors.New("mock mode enabled but no mock trace configured")
)

// Poller fetches a single fix synchronously. It backs LastLocation when the bus has no current
// fix yet.
type Poller interface {
	Poll(ctx context.Context) (gpspoll.Fix, error)
}

// Options configures a Client.
type Options struct {
	// Providers are tracked while connected and not in mock mode.
	Providers []geobus.Provider
	// MockFile is the GPX trace replayed in mock mode.
	MockFile string
	// Poller is optional.
	Poller Poller
}

// Client is a location.Source. Connect and Disconnect report their outcome through the
// connection callbacks; callbacks are never invoked with the client lock held.
type Client struct {
	mu         sync.Mutex
	logger     *logger.Logger
	options    Options
	mockMode   bool
	connecting bool
	connected  bool
	generation uint64
	bus        *geobus.GeoBus
	cancel     context.CancelFunc
	scheduler  gocron.Scheduler
	callbacks  location.ConnectionCallbacks
	requests   map[location.Listener]*request
}

// request is a standing update request of a single listener.
type request struct {
	jobID     uuid.UUID
	config    location.UpdateConfig
	listener  location.Listener
	unsub     func()
	unsubOnce sync.Once

	mu        sync.Mutex
	pending   geobus.Result
	fresh     bool
	last      location.Fix
	delivered bool
}

// New returns a disconnected Client.
func New(log *logger.Logger, options Options) *Client {
	return &Client{
		logger:   log,
		options:  options,
		requests: make(map[location.Listener]*request),
	}
}

// SetMockMode selects between the GPX trace and the real providers. It takes effect on the
// next Connect.
func (c *Client) SetMockMode(enabled bool) {
	c.mu.Lock()
	c.mockMode = enabled
	c.mu.Unlock()
}

// MockMode reports whether mock mode is selected.
func (c *Client) MockMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mockMode
}

// Connected reports whether the client is connected.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect starts connecting in the background. A Connect while connecting or connected is
// ignored. Tracking stops when ctx is canceled or Disconnect is called.
func (c *Client) Connect(ctx context.Context, callbacks location.ConnectionCallbacks) {
	c.mu.Lock()
	if c.connecting || c.connected {
		c.mu.Unlock()
		c.logger.Debug("location client already connecting or connected")
		return
	}
	c.connecting = true
	c.generation++
	gen := c.generation
	mock := c.mockMode
	c.mu.Unlock()

	go c.connect(ctx, gen, mock, callbacks)
}

func (c *Client) connect(ctx context.Context, gen uint64, mock bool, callbacks location.ConnectionCallbacks) {
	providers, err := c.selectProviders(mock)
	if err != nil {
		c.fail(gen, callbacks, err)
		return
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		c.fail(gen, callbacks, fmt.Errorf("failed to create update scheduler: %w", err))
		return
	}

	bus := geobus.New(c.logger)
	trackCtx, cancel := context.WithCancel(ctx)

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	c.logger.Debug("tracking location providers", slog.Any("providers", names), slog.Bool("mock", mock))

	go bus.NewOrchestrator(providers).Track(trackCtx, BusKey)
	scheduler.Start()

	// a Disconnect while connecting supersedes the attempt
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("connection attempt superseded", slog.Uint64("generation", gen))
		cancel()
		if err = scheduler.Shutdown(); err != nil {
			c.logger.Error("failed to shut down update scheduler", logger.Err(err))
		}
		return
	}
	c.connecting = false
	c.connected = true
	c.bus = bus
	c.cancel = cancel
	c.scheduler = scheduler
	c.callbacks = callbacks
	c.mu.Unlock()

	callbacks.OnConnected()
}

// fail reports a failed connection attempt unless a Disconnect superseded it.
func (c *Client) fail(gen uint64, callbacks location.ConnectionCallbacks, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.connecting = false
	c.mu.Unlock()
	callbacks.OnConnectionFailed(err)
}

func (c *Client) selectProviders(mock bool) ([]geobus.Provider, error) {
	if !mock {
		if len(c.options.Providers) == 0 {
			return nil, ErrNoProviders
		}
		return c.options.Providers, nil
	}

	if c.options.MockFile == "" {
		return nil, ErrNoMockProvider
	}
	points, err := gpxtrace.Load(c.options.MockFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load mock trace: %w", err)
	}
	return []geobus.Provider{gpxtrace.NewGeolocationGPXProvider(points, location.DefaultInterval)}, nil
}

// Disconnect stops tracking and drops all standing requests. OnDisconnected is reported if the
// client was connected. A Disconnect while connecting aborts the attempt silently.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.connecting && !c.connected {
		c.mu.Unlock()
		return
	}
	c.generation++
	wasConnected := c.connected
	cancel, scheduler, callbacks := c.cancel, c.scheduler, c.callbacks
	c.connecting = false
	c.connected = false
	c.cancel = nil
	c.scheduler = nil
	c.callbacks = nil
	c.bus = nil
	requests := c.requests
	c.requests = make(map[location.Listener]*request)
	c.mu.Unlock()

	for _, req := range requests {
		req.unsubscribe()
	}
	if !wasConnected {
		return
	}
	cancel()
	if err := scheduler.Shutdown(); err != nil {
		c.logger.Error("failed to shut down update scheduler", logger.Err(err))
	}
	callbacks.OnDisconnected()
}

// LastLocation returns the current fused fix. Without one, it falls back to a single poll of
// the configured Poller, except in mock mode.
func (c *Client) LastLocation() (location.Fix, bool) {
	c.mu.Lock()
	bus, connected, mock := c.bus, c.connected, c.mockMode
	c.mu.Unlock()
	if !connected {
		return location.Fix{}, false
	}

	if r, ok := bus.Current(BusKey); ok {
		return r.Fix(), true
	}
	if mock || c.options.Poller == nil {
		return location.Fix{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	fix, err := c.options.Poller.Poll(ctx)
	if err != nil {
		c.logger.Debug("failed to poll last location", logger.Err(err))
		return location.Fix{}, false
	}
	if !fix.Has2DFix() {
		return location.Fix{}, false
	}
	return fix.Location(), true
}

// RequestUpdates registers a standing request that delivers the newest fix of the bus to listener
// once per config.Interval. A fix is only delivered if the bus published it since the previous
// delivery and, with a positive SmallestDisplacement, it is far enough from the previously
// delivered one. A second request for the same listener replaces the first.
func (c *Client) RequestUpdates(config location.UpdateConfig, listener location.Listener) error {
	if config.Interval <= 0 {
		return fmt.Errorf("invalid update interval: %s", config.Interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	if prev, ok := c.requests[listener]; ok {
		c.dropRequest(prev)
		delete(c.requests, listener)
	}

	req := newRequest(c.bus, config, listener)
	job, err := c.scheduler.NewJob(
		gocron.DurationJob(config.Interval),
		gocron.NewTask(req.deliver),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("location_update_job"),
	)
	if err != nil {
		req.unsubscribe()
		return fmt.Errorf("failed to create location update job: %w", err)
	}
	req.jobID = job.ID()
	c.requests[listener] = req
	c.logger.Debug("location updates requested", slog.String("job", req.jobID.String()),
		slog.Duration("interval", config.Interval), slog.Float64("displacement", config.SmallestDisplacement))
	return nil
}

// RemoveUpdates cancels the standing request of listener. Unknown listeners are ignored.
func (c *Client) RemoveUpdates(listener location.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[listener]
	if !ok {
		return
	}
	delete(c.requests, listener)
	c.dropRequest(req)
}

// dropRequest must be called with c.mu held.
func (c *Client) dropRequest(req *request) {
	if err := c.scheduler.RemoveJob(req.jobID); err != nil {
		c.logger.Error("failed to remove location update job", logger.Err(err))
	}
	req.unsubscribe()
}

// newRequest subscribes to bus and keeps its newest result until the next delivery.
func newRequest(bus *geobus.GeoBus, config location.UpdateConfig, listener location.Listener) *request {
	req := &request{config: config, listener: listener}
	results, unsub := bus.Subscribe(BusKey, subscriptionBufferSize)
	req.unsub = unsub
	go req.follow(results)
	return req
}

// follow stores every result until the subscription is closed.
func (r *request) follow(results <-chan geobus.Result) {
	for result := range results {
		r.offer(result)
	}
}

func (r *request) offer(result geobus.Result) {
	r.mu.Lock()
	r.pending = result
	r.fresh = true
	r.mu.Unlock()
}

func (r *request) unsubscribe() {
	r.unsubOnce.Do(func() {
		if r.unsub != nil {
			r.unsub()
		}
	})
}

// deliver hands the pending result to the listener if it passes the request filters.
func (r *request) deliver() {
	r.mu.Lock()
	if !r.fresh || r.pending.IsExpired() {
		r.mu.Unlock()
		return
	}
	r.fresh = false
	fix := r.pending.Fix()
	if r.delivered {
		if sameFix(fix, r.last) {
			r.mu.Unlock()
			return
		}
		if r.config.SmallestDisplacement > 0 && fix.DistanceTo(r.last) < r.config.SmallestDisplacement {
			r.mu.Unlock()
			return
		}
	}
	r.last = fix
	r.delivered = true
	r.mu.Unlock()

	r.listener.OnFixReceived(fix)
}

func sameFix(a, b location.Fix) bool {
	return a.Provider == b.Provider && a.Latitude == b.Latitude && a.Longitude == b.Longitude &&
		a.Accuracy == b.Accuracy && a.Time.Equal(b.Time)
}
