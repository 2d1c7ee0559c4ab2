// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires the location session, its history and the outputs together and maps
// the process lifecycle onto starting and stopping the session.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"

	"github.com/vorlif/spreak"

	"github.com/wneessen/fixtrail/internal/config"
	"github.com/wneessen/fixtrail/internal/history"
	"github.com/wneessen/fixtrail/internal/locclient"
	"github.com/wneessen/fixtrail/internal/logger"
	"github.com/wneessen/fixtrail/internal/presenter"
	"github.com/wneessen/fixtrail/internal/publish"
	"github.com/wneessen/fixtrail/internal/session"
)

type Service struct {
	// Reload re-reads the settings on SIGHUP. Defaults to config.New.
	Reload    func() (*config.Config, error)
	SignalSrc signalSource

	configLock sync.RWMutex
	config     *config.Config

	logger    *logger.Logger
	localizer *spreak.Localizer
	client    *locclient.Client
	session   *session.Controller
	presenter *presenter.Presenter
	sink      *publish.Sink

	// sessionLock serializes starting and stopping of the session
	sessionLock  sync.Mutex
	monitorSleep func(context.Context)
}

// New returns a Service that renders to stdout.
func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	return NewWithOutput(conf, log, t, os.Stdout)
}

// NewWithOutput returns a Service that renders to out.
func NewWithOutput(conf *config.Config, log *logger.Logger, t *spreak.Localizer, out io.Writer) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	service := &Service{
		Reload:    config.New,
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		logger:    log,
		localizer: t,
	}
	service.monitorSleep = service.monitorSleepResume

	service.client = locclient.New(log, locclient.Options{
		Providers: service.selectGeobusProviders(),
		MockFile:  conf.Mock.File,
		Poller:    service.selectPoller(),
	})
	service.session = session.New(service.client, history.New(), log)

	pres, err := presenter.New(conf, t, service.session.History(), out, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}
	service.presenter = pres

	if conf.MQTT.Broker != "" {
		service.sink = publish.New(conf, service.session.History(), log)
	}
	return service, nil
}

// Run starts the session and the outputs and blocks until ctx is canceled. The session is
// stopped before Run returns.
func (s *Service) Run(ctx context.Context) error {
	go s.presenter.Attach(ctx)
	if s.sink != nil {
		go s.sink.Run(ctx)
	}

	s.startSession(ctx)
	go s.monitorSleep(ctx)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGHUP)
	defer s.SignalSrc.Stop(sigChan)
	go s.HandleReloadSignal(ctx, sigChan)

	<-ctx.Done()
	s.stopSession()
	return nil
}

// startSession applies the current mock mode setting and starts the session.
func (s *Service) startSession(ctx context.Context) {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()

	s.configLock.RLock()
	mock := s.config.MockMode
	s.configLock.RUnlock()

	s.logger.Debug("starting location session", slog.Bool("mock", mock))
	s.session.SetMockMode(mock)
	s.session.Start(ctx)
}

func (s *Service) stopSession() {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	s.logger.Debug("stopping location session")
	s.session.Stop()
}
