/*
Powerdeck Core
Copyright (c) 2026 The Powerdeck Project Contributors.
SPDX-License-Identifier: GPL-3.0-or-later

This file is part of Powerdeck Core.

Powerdeck Core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Powerdeck Core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Powerdeck Core.  If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/PowerdeckProject/powerdeck-core/pkg/config"
	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers"
	"github.com/PowerdeckProject/powerdeck-core/pkg/service"
	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
)

const appName = "powerdeck"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	verbose := flag.Bool(
		"verbose",
		false,
		"also log to stderr",
	)
	debug := flag.Bool(
		"debug",
		false,
		"enable debug logging",
	)
	configDir := flag.String(
		"config-dir",
		filepath.Join(xdg.ConfigHome, appName),
		"directory containing "+config.CfgFile,
	)
	flag.Parse()

	dataDir := filepath.Join(xdg.DataHome, appName)
	var logWriters []io.Writer
	if *verbose {
		logWriters = []io.Writer{os.Stderr}
	}
	if err := helpers.InitLogging(dataDir, logWriters); err != nil {
		return fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(*configDir, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	helpers.SetLogLevel(*debug || cfg.DebugLogging())

	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", r)
			log.Fatal().Msgf("panic: %v", r)
		}
	}()

	svc, err := service.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("error starting service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msgf("%s started, config: %s", appName, *configDir)
	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("service error: %w", err)
	}
	return nil
}
