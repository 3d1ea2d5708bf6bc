// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bramblecore/procd/internal/config"
	"github.com/bramblecore/procd/internal/log"
	"github.com/bramblecore/procd/internal/supervisor"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "load the catalog and run the supervisor in the foreground",
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(&log.Config{Level: cfg.Log.Level, Format: log.Format(cfg.Log.Format), Output: os.Stderr})

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("constructing supervisor: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", log.String("signal", sig.String()))
		if err := sup.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", log.Error(err))
		}
		return <-runDone
	case err := <-runDone:
		return err
	}
}
