// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/fixtrail/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	debounceWindow   = 2 // seconds
	signalBufferSize = 8

	busRetryDelay      = 10 * time.Second
	networkWakeupDelay = 10 * time.Second
)

// monitorSleepResume follows the PrepareForSleep signal of logind and pauses the location
// session across system sleep. A failed or lost bus connection is retried until ctx is
// canceled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResumeUnix int64

	for {
		conn, sigCh, err := subscribeSleepSignal()
		if err != nil {
			s.logger.Debug("sleep monitoring unavailable, retrying", logger.Err(err))
		} else {
			s.logger.Debug("subscribed to dbus signal", slog.String("interface", dbusInterface),
				slog.String("member", dbusWatchMember))
			s.handleSleepSignals(ctx, sigCh, &lastResumeUnix)
			conn.RemoveSignal(sigCh)
			if err = conn.Close(); err != nil {
				s.logger.Error("failed to close system bus connection", logger.Err(err))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(busRetryDelay):
		}
	}
}

// subscribeSleepSignal connects to the system bus and subscribes to PrepareForSleep.
func subscribeSleepSignal() (*dbus.Conn, chan *dbus.Signal, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	if err = conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(dbusWatchMember),
	); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s.%s: %w", dbusInterface, dbusWatchMember, err)
	}
	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	return conn, sigCh, nil
}

// handleSleepSignals processes sleep signals until ctx is canceled or the connection closes
// the channel.
func (s *Service) handleSleepSignals(ctx context.Context, sigCh chan *dbus.Signal, lastResumeUnix *int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			s.processSleepSignal(ctx, sgn, lastResumeUnix)
		}
	}
}

// processSleepSignal pauses the session when the system is about to sleep and resumes it after
// wake-up.
func (s *Service) processSleepSignal(ctx context.Context, sgn *dbus.Signal, lastResumeUnix *int64) {
	if len(sgn.Body) != 1 {
		return
	}
	sleeping, ok := sgn.Body[0].(bool)
	if !ok {
		return
	}
	if sleeping {
		s.logger.Debug("system is going to sleep, pausing location session")
		s.stopSession()
		return
	}
	s.handleResumeEvent(ctx, lastResumeUnix)
}

// handleResumeEvent restarts the session after wake-up. Resume events within the debounce
// window are ignored, and the restart waits for the network to come back.
func (s *Service) handleResumeEvent(ctx context.Context, lastResumeUnix *int64) {
	now := time.Now().Unix()
	if now-atomic.LoadInt64(lastResumeUnix) < debounceWindow {
		return
	}
	atomic.StoreInt64(lastResumeUnix, now)

	select {
	case <-ctx.Done():
		return
	case <-time.After(networkWakeupDelay):
	}

	s.logger.Debug("resuming from sleep, restarting location session")
	s.startSession(ctx)
}
