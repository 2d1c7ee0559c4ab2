// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package session owns the connect/disconnect lifecycle against a location source and feeds
// the received fixes into a history.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/wneessen/fixtrail/internal/history"
	"github.com/wneessen/fixtrail/internal/location"
	"github.com/wneessen/fixtrail/internal/logger"
)

// Controller mediates between the asynchronous connection lifecycle of a location.Source and a
// History. It implements location.ConnectionCallbacks for its most recent Start, while the source
// receives callbacks bound to the Start that issued the Connect. Fixes reach it through its
// update listener.
type Controller struct {
	mu       sync.Mutex
	state    State
	attempt  uint64
	id       uuid.UUID
	config   location.UpdateConfig
	source   location.Source
	history  *history.History
	listener *updateListener
	logger   *logger.Logger
}

// updateListener forwards fixes of the standing update request to the Controller. It holds no
// state of its own.
type updateListener struct {
	controller *Controller
}

func (l *updateListener) OnFixReceived(fix location.Fix) {
	l.controller.OnFixReceived(fix)
}

// connectAttempt carries the connection notifications of a single Start. Notifications of an
// attempt that a later Start superseded are dropped.
type connectAttempt struct {
	controller *Controller
	seq        uint64
}

func (a *connectAttempt) OnConnected() {
	a.controller.onConnected(a.seq)
}

func (a *connectAttempt) OnDisconnected() {
	a.controller.onDisconnected(a.seq)
}

func (a *connectAttempt) OnConnectionFailed(err error) {
	a.controller.onConnectionFailed(a.seq, err)
}

// New returns a disconnected Controller for the given source and history.
func New(source location.Source, hist *history.History, log *logger.Logger) *Controller {
	c := &Controller{
		state:   StateDisconnected,
		source:  source,
		history: hist,
		logger:  log,
	}
	c.listener = &updateListener{controller: c}
	return c
}

// Start asks the source to connect. Calling Start while connecting or connected has no effect.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if state := c.state; state != StateDisconnected {
		c.mu.Unlock()
		c.logger.Debug("session already started", slog.String("state", state.String()))
		return
	}
	c.state = StateConnecting
	c.attempt++
	attempt := &connectAttempt{controller: c, seq: c.attempt}
	c.mu.Unlock()

	c.logger.Debug("connecting location client", slog.Uint64("attempt", attempt.seq))
	c.source.Connect(ctx, attempt)
}

// Stop ends the standing update request and disconnects from the source. Calling Stop while
// disconnected has no effect. A single update callback racing with Stop may still arrive.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if wasConnected {
		c.source.RemoveUpdates(c.listener)
	}
	c.source.Disconnect()
}

// SetMockMode forwards the mock mode toggle to the source. It takes effect on the next Start.
func (c *Controller) SetMockMode(enabled bool) {
	c.source.SetMockMode(enabled)
}

// OnConnected seeds the last-known fix if none exists yet and then issues the standing update
// request. The seed comes first so the header has something to show before the first update.
// The notification is taken for the most recent Start.
func (c *Controller) OnConnected() {
	c.onConnected(c.currentAttempt())
}

func (c *Controller) onConnected(seq uint64) {
	c.mu.Lock()
	if state := c.state; seq != c.attempt || state != StateConnecting {
		c.mu.Unlock()
		c.logger.Debug("ignoring stale connect notification", slog.String("state", state.String()),
			slog.Uint64("attempt", seq))
		return
	}
	c.state = StateConnected
	c.id = uuid.New()
	c.config = location.NewUpdateConfig()
	conf := c.config
	log := c.sessionLogger()
	c.mu.Unlock()

	log.Info("location client connected")

	if _, ok := c.history.LastKnown(); !ok {
		if fix, found := c.source.LastLocation(); found {
			c.history.SetLastKnown(fix)
			log.Debug("seeded last known location", slog.String("provider", fix.Provider),
				slog.Float64("lat", fix.Latitude), slog.Float64("lon", fix.Longitude))
		} else {
			log.Debug("no last known location available yet")
		}
	}

	if err := c.source.RequestUpdates(conf, c.listener); err != nil {
		log.Error("failed to request location updates", logger.Err(err))
	}
}

// OnDisconnected marks the session as disconnected. The history is kept.
func (c *Controller) OnDisconnected() {
	c.onDisconnected(c.currentAttempt())
}

func (c *Controller) onDisconnected(seq uint64) {
	c.mu.Lock()
	if seq != c.attempt {
		c.mu.Unlock()
		c.logger.Debug("ignoring stale disconnect notification", slog.Uint64("attempt", seq))
		return
	}
	c.state = StateDisconnected
	log := c.sessionLogger()
	c.mu.Unlock()
	log.Info("location client disconnected")
}

// OnConnectionFailed reports a failed connection attempt and returns to the disconnected state,
// so a later Start may try again.
func (c *Controller) OnConnectionFailed(err error) {
	c.onConnectionFailed(c.currentAttempt(), err)
}

func (c *Controller) onConnectionFailed(seq uint64, err error) {
	c.mu.Lock()
	if seq != c.attempt {
		c.mu.Unlock()
		c.logger.Debug("ignoring stale connection failure", slog.Uint64("attempt", seq), logger.Err(err))
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	c.logger.Error("location client failed to connect", logger.Err(err))
}

func (c *Controller) currentAttempt() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// OnFixReceived appends fix to the history. If the last-known slot is still unset, the fix
// seeds it as well.
func (c *Controller) OnFixReceived(fix location.Fix) {
	idx := c.history.Append(fix)
	if _, ok := c.history.LastKnown(); !ok {
		c.history.SetLastKnown(fix)
	}
	c.logger.Debug("location update received", slog.Int("index", idx), slog.String("provider", fix.Provider),
		slog.Float64("lat", fix.Latitude), slog.Float64("lon", fix.Longitude))
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Streaming reports whether the session is connected and has a fix to show.
func (c *Controller) Streaming() bool {
	if c.State() != StateConnected {
		return false
	}
	_, ok := c.history.LastKnown()
	return ok
}

// UpdateConfig returns the update policy of the current or last connection.
func (c *Controller) UpdateConfig() location.UpdateConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// History returns the history the controller feeds. Outputs attach to it.
func (c *Controller) History() *history.History {
	return c.history
}

// sessionLogger must be called with c.mu held.
func (c *Controller) sessionLogger() *logger.Logger {
	if c.id == uuid.Nil {
		return c.logger
	}
	return c.logger.With(slog.String("session", c.id.String()))
}
