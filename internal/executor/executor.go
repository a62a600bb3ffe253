// Package executor runs a single pipeline stage as a sandboxed external
// worker process. Execute is a total function: every invocation yields
// exactly one StageResult, and no failure mode propagates past the
// executor boundary.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/finsight/etl-orchestrator/internal/audit"
	"github.com/finsight/etl-orchestrator/internal/config"
	"github.com/finsight/etl-orchestrator/internal/metrics"
	"github.com/finsight/etl-orchestrator/internal/registry"
	"github.com/finsight/etl-orchestrator/internal/security"
	"github.com/finsight/etl-orchestrator/pkg/types"
)

// Exit codes mirroring the conventional subprocess mapping.
const (
	exitTimeout     = 124
	exitInterrupted = 130
)

// envAllowList is the only ambient environment propagated to workers.
// Everything else is stripped so workers cannot read secrets from the
// orchestrator's environment.
var envAllowList = []string{"PATH", "HOME", "USER", "PYTHONPATH"}

// Executor executes stages under the configured security policy.
type Executor struct {
	cfg       *config.Config
	sanitizer *security.PathSanitizer
	audit     *audit.Logger
	log       *slog.Logger

	// Overridable in tests; initialized from cfg.
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries uint64
}

// New creates an executor. auditLogger may not be nil: every spawn is a
// privileged action and must be audited.
func New(cfg *config.Config, sanitizer *security.PathSanitizer, auditLogger *audit.Logger, log *slog.Logger) *Executor {
	return &Executor{
		cfg:        cfg,
		sanitizer:  sanitizer,
		audit:      auditLogger,
		log:        log,
		timeout:    cfg.StageTimeout(),
		retryDelay: cfg.RetryDelay(),
		maxRetries: uint64(cfg.RetryAttempts),
	}
}

type attempt struct {
	exitCode int
	stdout   string
	stderr   string
	err      error
}

// Execute runs one stage and always returns a result. Sanitizer failures,
// spawn failures, timeouts, and panics all become failed StageResults; the
// caller never needs to recover anything.
func (e *Executor) Execute(ctx context.Context, runID string, stage types.Stage) (result types.StageResult) {
	start := time.Now()
	result = types.StageResult{Stage: stage, Status: types.StageFailed}

	defer func() {
		if r := recover(); r != nil {
			result.Status = types.StageFailed
			result.Error = security.Redact(fmt.Sprintf("internal error: %v", r))
		}
		result.Duration = time.Since(start)
		e.finish(runID, &result)
	}()

	scriptPath, err := e.sanitizer.Sanitize(filepath.Join(e.sanitizer.Root(), registry.WorkerRef(stage)))
	if err != nil {
		// Security rejection is contained here: the stage fails, the run
		// continues.
		result.Error = err.Error()
		e.auditEvent("stage_rejected", stage, map[string]any{"run_id": runID, "reason": err.Error()}, "rejected")
		return result
	}

	e.auditEvent("stage_started", stage, map[string]any{
		"run_id": runID,
		"worker": scriptPath,
	}, "ok")
	e.log.Info("stage started", "run_id", runID, "stage", stage.String(), "worker", registry.WorkerRef(stage))

	var last attempt
	attempts := 0
	op := func() error {
		attempts++
		last = e.runOnce(ctx, runID, stage, scriptPath)
		if last.exitCode == 0 && last.err == nil {
			return nil
		}
		if last.exitCode == exitInterrupted || ctx.Err() != nil {
			return backoff.Permanent(fmt.Errorf("interrupted"))
		}
		e.log.Warn("stage attempt failed",
			"run_id", runID, "stage", stage.String(),
			"attempt", attempts, "exit_code", last.exitCode)
		return fmt.Errorf("exit code %d", last.exitCode)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.retryDelay), e.maxRetries), ctx)
	retryErr := backoff.Retry(op, policy)

	result.Attempts = attempts
	result.ExitCode = last.exitCode
	result.Records = harvestRecords(last.stdout)
	result.Artifacts = e.detectArtifacts(stage)

	if retryErr == nil {
		if last.stderr != "" {
			// Exit 0 with stderr output counts as completing with warnings.
			if !e.cfg.ContinueOnWarnings {
				result.Status = types.StageFailed
				result.Error = "completed with warnings: " + security.Redact(lastLines(last.stderr, 10))
				return result
			}
			e.log.Warn("stage completed with warnings",
				"run_id", runID, "stage", stage.String(),
				"stderr", security.Redact(lastLines(last.stderr, 3)))
		}
		result.Status = types.StageSucceeded
		result.Error = ""
		return result
	}

	result.Status = types.StageFailed
	switch {
	case last.err != nil:
		result.Error = security.Redact(last.err.Error())
	case last.stderr != "":
		result.Error = security.Redact(lastLines(last.stderr, 10))
	default:
		result.Error = fmt.Sprintf("worker exited with code %d", last.exitCode)
	}
	return result
}

// runOnce performs a single worker attempt with a per-attempt timeout.
func (e *Executor) runOnce(ctx context.Context, runID string, stage types.Stage, scriptPath string) attempt {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	interp, err := interpreterFor(scriptPath)
	if err != nil {
		return attempt{exitCode: 1, err: err}
	}

	// Fixed launcher: interpreter plus script path, no orchestrator-supplied
	// arguments. Workers communicate success solely via exit code.
	cmd := exec.CommandContext(attemptCtx, interp, scriptPath)
	cmd.Dir = e.sanitizer.Root()
	cmd.Env = workerEnv(runID, stage)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return attempt{exitCode: 1, err: fmt.Errorf("spawn worker: %w", err)}
	}
	waitErr := cmd.Wait()

	a := attempt{
		stdout: decodeOutput(stdout.Bytes()),
		stderr: decodeOutput(stderr.Bytes()),
	}
	switch {
	case waitErr == nil:
		a.exitCode = 0
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		a.exitCode = exitTimeout
		a.err = fmt.Errorf("worker timed out after %s", e.timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		a.exitCode = exitInterrupted
		a.err = fmt.Errorf("worker interrupted")
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			a.exitCode = exitErr.ExitCode()
		} else {
			a.exitCode = 1
			a.err = fmt.Errorf("wait for worker: %w", waitErr)
		}
	}
	return a
}

// finish emits the completion audit event, metrics, and log line for a
// fully-populated result.
func (e *Executor) finish(runID string, result *types.StageResult) {
	status := string(result.Status)
	metrics.StageDuration.WithLabelValues(result.Stage.String(), status).Observe(result.Duration.Seconds())
	if result.Attempts > 0 {
		metrics.StageRetries.WithLabelValues(status).Observe(float64(result.Attempts - 1))
	}
	if result.Records > 0 {
		metrics.RecordsProcessed.WithLabelValues(result.Stage.String()).Add(float64(result.Records))
	}

	op := "stage_completed"
	if !result.Success() {
		op = "stage_failed"
	}
	e.auditEvent(op, result.Stage, map[string]any{
		"run_id":      runID,
		"exit_code":   result.ExitCode,
		"duration_ms": result.Duration.Milliseconds(),
		"attempts":    result.Attempts,
	}, status)

	if result.Success() {
		e.log.Info("stage completed",
			"run_id", runID, "stage", result.Stage.String(),
			"duration", result.Duration.String(), "records", result.Records,
			"artifacts", len(result.Artifacts))
	} else {
		e.log.Error("stage failed",
			"run_id", runID, "stage", result.Stage.String(),
			"duration", result.Duration.String(), "exit_code", result.ExitCode,
			"error", result.Error)
	}
}

func (e *Executor) auditEvent(op string, stage types.Stage, payload any, outcome string) {
	if err := e.audit.Record(op, stage.String(), payload, outcome); err != nil {
		e.log.Error("audit record failed", "operation", op, "error", err.Error())
	}
}

// detectArtifacts checks the stage's statically known candidate paths.
func (e *Executor) detectArtifacts(stage types.Stage) []string {
	var found []string
	for _, rel := range registry.ArtifactCandidates(stage) {
		if _, err := os.Stat(filepath.Join(e.sanitizer.Root(), rel)); err == nil {
			found = append(found, rel)
		}
	}
	return found
}

// interpreterFor maps an allow-listed extension to its launcher.
func interpreterFor(scriptPath string) (string, error) {
	switch strings.ToLower(filepath.Ext(scriptPath)) {
	case ".py":
		return "python3", nil
	case ".sh":
		return "bash", nil
	default:
		return "", fmt.Errorf("no launcher for %q", filepath.Ext(scriptPath))
	}
}

// workerEnv builds the minimal allow-listed environment plus run metadata.
func workerEnv(runID string, stage types.Stage) []string {
	env := make([]string, 0, len(envAllowList)+2)
	for _, key := range envAllowList {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	env = append(env,
		"ORCH_RUN_ID="+runID,
		"ORCH_STAGE="+stage.String(),
	)
	return env
}
