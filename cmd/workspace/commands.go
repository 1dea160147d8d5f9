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
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianWorkspace/pkg/ux"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/api"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/syntax"
)

var errBuildFailed = errors.New("build failed")

const shutdownTimeout = 5 * time.Second

// =============================================================================
// load
// =============================================================================

func newLoadCmd(a *app) *cobra.Command {
	var asProject bool
	cmd := &cobra.Command{
		Use:   "load <solution>",
		Short: "Open a solution and report its projects and diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := a.openWorkspace()
			if err != nil {
				return err
			}
			if asProject {
				if _, err := ws.OpenProject(ctx, args[0]); err != nil {
					return err
				}
			} else if _, err := ws.OpenSolution(ctx, args[0]); err != nil {
				return err
			}
			if err := printSolution(ctx, a.printer, ws); err != nil {
				return err
			}
			printDiagnostics(a.printer, ws.Diagnostics())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asProject, "project", false, "treat the argument as a single project file")
	return cmd
}

func printSolution(ctx context.Context, p *ux.Printer, ws *workspace.Workspace) error {
	sol := ws.CurrentSolution()
	title := fmt.Sprintf("%d project(s)", sol.ProjectCount())
	if sol.FilePath() != "" {
		title = fmt.Sprintf("Solution %s: %s", sol.FilePath(), title)
	}
	p.Title(title)

	rows := make([]ux.Row, 0, sol.ProjectCount())
	for _, proj := range sol.Projects() {
		decisions, err := ws.Resolver().Decisions(ctx, sol, proj.ID())
		if err != nil {
			return err
		}
		refs := make([]string, 0, len(decisions))
		for _, d := range decisions {
			refs = append(refs, projectName(sol, d.Reference.ProjectID)+":"+d.Kind.String())
		}
		rows = append(rows, ux.Row{Cells: []string{
			proj.Name(),
			proj.Language(),
			strconv.Itoa(proj.DocumentCount()),
			strings.Join(refs, ", "),
		}})
	}
	p.Table([]string{"PROJECT", "LANGUAGE", "DOCUMENTS", "REFERENCES"}, rows)
	return nil
}

func projectName(sol *solution.Solution, id solution.ProjectID) string {
	if proj, ok := sol.Project(id); ok {
		return proj.Name()
	}
	return id.DebugName()
}

func printDiagnostics(p *ux.Printer, diags []workspace.Diagnostic) {
	if len(diags) == 0 {
		p.Success("no diagnostics")
		return
	}
	rows := make([]ux.Row, 0, len(diags))
	for _, d := range diags {
		status := ux.StatusWarning
		if d.Kind == workspace.DiagnosticFailure {
			status = ux.StatusError
		}
		rows = append(rows, ux.Row{Status: status, Cells: []string{d.Path, d.Message}})
	}
	p.Table([]string{"PATH", "MESSAGE"}, rows)
}

// =============================================================================
// build
// =============================================================================

func newBuildCmd(a *app) *cobra.Command {
	var noEmit bool
	cmd := &cobra.Command{
		Use:   "build <solution>",
		Short: "Compile every project and write images to their output paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := a.openWorkspace()
			if err != nil {
				return err
			}
			sol, err := ws.OpenSolution(ctx, args[0])
			if err != nil {
				return err
			}
			failed := compileAll(ctx, a.printer, ws, sol)
			printDiagnostics(a.printer, ws.Diagnostics())
			if failed {
				return errBuildFailed
			}
			if noEmit {
				return nil
			}

			paths, err := ws.EmitAll(ctx)
			for _, path := range paths {
				a.printer.Success("emitted " + path)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noEmit, "no-emit", false, "compile without writing images")
	return cmd
}

// compileAll compiles projects dependencies first and prints one row per
// project. It reports whether any project failed or has error diagnostics.
func compileAll(ctx context.Context, p *ux.Printer, ws *workspace.Workspace, sol *solution.Solution) bool {
	failed := false
	rows := make([]ux.Row, 0, sol.ProjectCount())
	var details []ux.Row

	for _, id := range sol.DependencyGraph().TopologicalOrder() {
		name := projectName(sol, id)
		comp, err := ws.Compilation(ctx, id)
		if err != nil {
			failed = true
			rows = append(rows, ux.Row{Status: ux.StatusError, Cells: []string{name, "-", "-", err.Error()}})
			continue
		}
		errs, warns := 0, 0
		for _, d := range comp.Diagnostics() {
			status := ux.StatusWarning
			if d.Severity == syntax.SeverityError {
				errs++
				status = ux.StatusError
			} else {
				warns++
			}
			details = append(details, ux.Row{Status: status, Cells: []string{name, d.String()}})
		}
		status := ux.StatusOK
		switch {
		case errs > 0:
			status = ux.StatusError
			failed = true
		case warns > 0:
			status = ux.StatusWarning
		}
		rows = append(rows, ux.Row{Status: status, Cells: []string{
			name,
			strconv.Itoa(len(comp.PublicSymbols())),
			strconv.Itoa(len(comp.References())),
			fmt.Sprintf("%d error(s), %d warning(s)", errs, warns),
		}})
	}

	p.Table([]string{"PROJECT", "PUBLIC", "REFS", "RESULT"}, rows)
	if len(details) > 0 {
		p.Table([]string{"PROJECT", "DIAGNOSTIC"}, details)
	}
	return failed
}

// =============================================================================
// serve
// =============================================================================

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve <solution>",
		Short: "Open a solution and serve it over HTTP until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := a.openWorkspace()
			if err != nil {
				return err
			}
			if _, err := ws.OpenSolution(ctx, args[0]); err != nil {
				return err
			}
			unsubscribe := ws.Subscribe(func(ev workspace.Event) {
				a.logger.Debug("workspace event", "kind", ev.Kind.String(), "project_id", ev.ProjectID.String())
			})
			defer unsubscribe()

			if listen == "" {
				listen = a.cfg.Server.Listen
			}
			return serve(ctx, a, ws, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	return cmd
}

func serve(ctx context.Context, a *app, ws *workspace.Workspace, listen string) error {
	gin.SetMode(gin.ReleaseMode)
	router, err := api.NewRouter(ws, a.cfg.Telemetry.ServiceName, a.logger.Slog())
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.printer.Success("serving on http://" + ln.Addr().String())
	a.logger.Info("workspace server started", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down workspace server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
