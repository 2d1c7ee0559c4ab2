// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/wneessen/fixtrail/internal/logger"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleReloadSignal re-reads the settings and restarts the session whenever a signal is
// received. Only the mock mode setting is applied without a restart of the process.
func (s *Service) HandleReloadSignal(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			s.reload(ctx)
		}
	}
}

func (s *Service) reload(ctx context.Context) {
	conf, err := s.Reload()
	if err != nil {
		s.logger.Error("failed to reload config, keeping current settings", logger.Err(err))
		return
	}

	s.configLock.Lock()
	s.config.MockMode = conf.MockMode
	s.configLock.Unlock()

	s.logger.Info("settings reloaded, restarting location session", slog.Bool("mock", conf.MockMode))
	s.stopSession()
	s.startSession(ctx)
}
