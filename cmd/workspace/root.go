// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianWorkspace/pkg/logging"
	"github.com/AleutianAI/AleutianWorkspace/pkg/ux"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/config"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/storage/badger"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/telemetry"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	strict     bool
	metadata   bool
	plain      bool
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	printer *ux.Printer
	closers []func(context.Context) error
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a, stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if closeErr := a.close(context.Background()); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "workspace",
		Short:         "Load, build and serve multi-language solutions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, opts, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.strict, "strict", false, "fail on the first project that cannot be loaded")
	flags.BoolVar(&opts.metadata, "metadata-for-references", false, "bind unopened referenced projects to their built output")
	flags.BoolVar(&opts.plain, "plain", false, "plain output without colors")

	root.AddCommand(newLoadCmd(a), newBuildCmd(a), newServeCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command, opts *rootOptions, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		level, err := logging.ParseLevel(opts.logLevel)
		if err != nil {
			return err
		}
		cfg.Logging.Level = level
	}
	if cmd.Flags().Changed("strict") {
		cfg.Load.SkipUnrecognizedProjects = !opts.strict
	}
	if cmd.Flags().Changed("metadata-for-references") {
		cfg.Load.LoadMetadataForReferencedProjects = opts.metadata
	}
	a.cfg = cfg

	cfg.Logging.Output = stderr
	a.logger = logging.New(cfg.Logging)
	a.closers = append(a.closers, func(context.Context) error { return a.logger.Close() })

	mode := ux.ModePlain
	if f, ok := stdout.(*os.File); ok && !opts.plain {
		mode = ux.DetectMode(f)
	}
	a.printer = ux.NewPrinter(stdout, mode)

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)
	return nil
}

// close runs closers in reverse order. Safe to call more than once.
func (a *app) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openWorkspace builds a Workspace from the loaded config, opening the
// skeleton store when one is configured.
func (a *app) openWorkspace() (*workspace.Workspace, error) {
	opts, err := a.cfg.WorkspaceOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = a.logger.Slog()

	if bc, ok := a.cfg.SkeletonStore.BadgerConfig(); ok {
		bc.Logger = a.logger.Slog()
		db, err := badger.Open(bc)
		if err != nil {
			return nil, fmt.Errorf("skeleton store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		opts.SkeletonStore = badger.NewSkeletonStore(db)
	}

	ws, err := workspace.New(opts)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return ws.Close() })
	return ws, nil
}
