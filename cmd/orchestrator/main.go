// Package main is the entry point for the pipeline orchestrator CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/finsight/etl-orchestrator/internal/api"
	"github.com/finsight/etl-orchestrator/internal/artifacts"
	"github.com/finsight/etl-orchestrator/internal/audit"
	"github.com/finsight/etl-orchestrator/internal/cli"
	"github.com/finsight/etl-orchestrator/internal/config"
	"github.com/finsight/etl-orchestrator/internal/events"
	"github.com/finsight/etl-orchestrator/internal/executor"
	"github.com/finsight/etl-orchestrator/internal/logging"
	"github.com/finsight/etl-orchestrator/internal/planner"
	"github.com/finsight/etl-orchestrator/internal/registry"
	"github.com/finsight/etl-orchestrator/internal/report"
	"github.com/finsight/etl-orchestrator/internal/runner"
	"github.com/finsight/etl-orchestrator/internal/security"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

const logFileMaxBytes = 20 << 20

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	req, done, err := cli.Parse(args, stderr)
	if done {
		return exitOK
	}
	if err != nil {
		var exitErr *cli.ExitError
		fmt.Fprintln(stderr, err.Error())
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return exitUsage
	}

	cfg, err := config.Load(req.ConfigPath)
	if err != nil {
		fmt.Fprintln(stderr, "configuration error:", err.Error())
		return exitFailure
	}
	if req.ValidateOnly {
		fmt.Fprintln(stdout, "configuration OK")
		return exitOK
	}

	// Operational log goes to stderr and to a size-rotated file; every
	// record passes the redactor on the way through.
	logSinks := []io.Writer{stderr}
	logFile, err := logging.NewRotatingWriter(filepath.Join(cfg.LogDir, "orchestrator.log"), logFileMaxBytes, 3)
	if err != nil {
		fmt.Fprintln(stderr, "cannot open log file:", err.Error())
		return exitFailure
	}
	defer logFile.Close()
	logSinks = append(logSinks, logFile)
	log := logging.NewLogger(req.LogLevel, req.LogFormat, io.MultiWriter(logSinks...))

	// The registry must be acyclic before any request is accepted.
	if err := registry.CheckAcyclic(); err != nil {
		log.Error("stage registry invalid", "error", err.Error())
		return exitFailure
	}

	requested := planner.ResolveRequest(req.Full, req.Stages, req.ResumeFrom)
	plan, err := planner.CreatePlan(requested)
	if err != nil {
		log.Error("planning failed", "error", err.Error())
		fmt.Fprintln(stderr, err.Error())
		return exitFailure
	}

	report.RenderPlan(stdout, plan)
	if req.DryRun {
		return exitOK
	}

	sanitizer, err := security.NewPathSanitizer(cfg.ProjectRoot, nil)
	if err != nil {
		log.Error("project root invalid", "error", err.Error())
		return exitFailure
	}

	auditLog, err := audit.New(filepath.Join(cfg.LogDir, "audit.log"), audit.DefaultMaxBytes)
	if err != nil {
		log.Error("cannot open audit log", "error", err.Error())
		return exitFailure
	}
	defer auditLog.Close()

	if cfg.StatusPort > 0 {
		srv := api.NewStatusServer(cfg.StatusPort)
		api.Start(srv, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	exec := executor.New(cfg, sanitizer, auditLog, log)
	r := runner.New(exec, cfg, log)
	r.Audit = auditLog

	if cfg.Redis.Enabled {
		pub := events.NewPublisher(cfg.Redis.Addr, cfg.Redis.Channel, log)
		defer pub.Close()
		r.Events = pub
	}
	if cfg.ArtifactStore.Enabled {
		archiver, err := artifacts.NewArchiver(cfg.ArtifactStore, sanitizer.Root(), log)
		if err != nil {
			log.Error("artifact store unavailable", "error", err.Error())
			return exitFailure
		}
		r.Archiver = archiver
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("run starting",
		"run_id", plan.RunID, "stages", plan.Size(),
		"parallel", req.Parallel, "force", req.Force)

	result := r.Run(ctx, plan, runner.Options{Concurrent: req.Parallel, Force: req.Force})

	report.RenderSummary(stdout, result)
	if req.Report && (result.Success() || cfg.SavePartialResults) {
		if path, err := report.WriteJSON(cfg.LogDir, result); err != nil {
			log.Error("report write failed", "error", err.Error())
		} else {
			fmt.Fprintln(stdout, "report written to", path)
		}
	}

	endpoints := mergeEndpoints(cfg.NotificationEndpoints, req.Notify)
	if len(endpoints) > 0 {
		notifier := report.NewNotifier(cfg, log, stdout)
		notifier.Dispatch(context.Background(), endpoints, result)
	}

	switch {
	case result.Interrupted:
		return exitInterrupted
	case result.Success():
		return exitOK
	default:
		return exitFailure
	}
}

func mergeEndpoints(fromConfig, fromFlag []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ep := range append(append([]string(nil), fromConfig...), fromFlag...) {
		if !seen[ep] {
			seen[ep] = true
			out = append(out, ep)
		}
	}
	return out
}
