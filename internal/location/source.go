// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"context"
	"time"
)

const (
	// DefaultInterval is the time between two update callbacks.
	DefaultInterval = 5000 * time.Millisecond
	// DefaultSmallestDisplacement is the minimum movement in meters to trigger an update callback.
	// Zero means updates are time-driven only.
	DefaultSmallestDisplacement = 0.0
)

// UpdateConfig is the cadence policy of a standing update request. It is built once per
// connection and not changed afterward.
type UpdateConfig struct {
	Interval             time.Duration
	SmallestDisplacement float64
}

// NewUpdateConfig returns the fixed update policy: every 5 seconds, regardless of movement.
func NewUpdateConfig() UpdateConfig {
	return UpdateConfig{
		Interval:             DefaultInterval,
		SmallestDisplacement: DefaultSmallestDisplacement,
	}
}

// Listener receives fixes of a standing update request.
type Listener interface {
	OnFixReceived(fix Fix)
}

// ConnectionCallbacks receives the asynchronous connection notifications of a Source.
type ConnectionCallbacks interface {
	OnConnected()
	OnDisconnected()
	OnConnectionFailed(err error)
}

// Source is a location provider client.
//
// Connect returns immediately; the outcome is reported through callbacks. LastLocation returns
// false if no fix is available, which is not an error. Updates requested with RequestUpdates
// are delivered to the listener until RemoveUpdates or Disconnect is called.
type Source interface {
	Connect(ctx context.Context, callbacks ConnectionCallbacks)
	Disconnect()
	SetMockMode(enabled bool)
	LastLocation() (Fix, bool)
	RequestUpdates(config UpdateConfig, listener Listener) error
	RemoveUpdates(listener Listener)
}
