// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the fixtrail service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wneessen/fixtrail/internal/config"
	"github.com/wneessen/fixtrail/internal/i18n"
	"github.com/wneessen/fixtrail/internal/logger"
	"github.com/wneessen/fixtrail/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	log := logger.New(slog.LevelError)

	confPath := flag.String("config", "", "path to the config file")
	mock := flag.Bool("mock", false, "replay the configured GPX trace instead of real location sources")
	flag.Parse()

	// An explicit config file wins over the one in the default location
	path, file := config.FindConfigFile()
	if *confPath != "" {
		path, file = filepath.Dir(*confPath), filepath.Base(*confPath)
	}
	load := func() (*config.Config, error) {
		if path != "" && file != "" {
			return config.NewFromFile(path, file)
		}
		return config.New()
	}

	conf, err := load()
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	if *mock {
		conf.MockMode = true
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	serv, err := service.New(conf, log, t)
	if err != nil {
		log.Error("failed to initialize fixtrail service", logger.Err(err))
		os.Exit(1)
	}
	serv.Reload = func() (*config.Config, error) {
		reloaded, err := load()
		if err != nil {
			return nil, err
		}
		if *mock {
			reloaded.MockMode = true
		}
		return reloaded, nil
	}

	log.Info(t.Get("starting fixtrail service"), slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error(t.Get("failed to start fixtrail service"), logger.Err(err))
	}
	log.Info(t.Get("shutting down fixtrail service"))
}
