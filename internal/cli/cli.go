// Package cli parses the orchestrator's command line into an operator
// request.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/finsight/etl-orchestrator/internal/config"
	"github.com/finsight/etl-orchestrator/pkg/types"
)

// ExitError carries a specific process exit code alongside the message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Request is the parsed operator request.
type Request struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	Full       bool
	Stages     []types.Stage
	ResumeFrom *types.Stage

	Force        bool
	Parallel     bool
	DryRun       bool
	ValidateOnly bool
	Report       bool
	Notify       []string
}

// Parse processes command-line arguments. The boolean result is true when
// the program should exit cleanly (help requested); usage problems return
// an ExitError with code 2.
func Parse(args []string, output io.Writer) (*Request, bool, error) {
	fs := flag.NewFlagSet("orchestrator", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `orchestrator - dependency-aware runner for the ETL pipeline stages.

Usage:
  orchestrator [options]

Stage selection (default: full pipeline):
`)
		for _, s := range types.AllStages() {
			fmt.Fprintf(output, "  --%-12s run the %s stage\n", s, s)
		}
		fmt.Fprint(output, "\nOptions:\n")
		fs.PrintDefaults()
	}

	full := fs.Bool("full", false, "Run the full pipeline.")
	stageFlags := make(map[types.Stage]*bool, types.StageCount)
	for _, s := range types.AllStages() {
		stageFlags[s] = fs.Bool(s.String(), false, "Run the "+s.String()+" stage.")
	}
	resumeFrom := fs.String("resume-from", "", "Run the pipeline suffix starting at the named stage.")
	force := fs.Bool("force", false, "Keep attempting a batch's remaining stages after a failure.")
	parallel := fs.Bool("parallel", false, "Run independent stages of a batch concurrently.")
	dryRun := fs.Bool("dry-run", false, "Print the execution plan and exit without running anything.")
	validateOnly := fs.Bool("validate-only", false, "Validate the configuration and exit.")
	configPath := fs.String("config", "", "Path to the orchestration config file.")
	logLevel := fs.String("log-level", "info", "Logging level: 'debug', 'info', 'warn', or 'error'.")
	logFormat := fs.String("log-format", "json", "Log output format: 'text' or 'json'.")
	reportFlag := fs.Bool("report", false, "Write the full JSON execution report to the log directory.")
	notify := fs.String("notify", "", "Comma-separated notification endpoints: console, email, slack, webhook.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", fs.Arg(0))}
	}

	req := &Request{
		ConfigPath:   *configPath,
		Full:         *full,
		Force:        *force,
		Parallel:     *parallel,
		DryRun:       *dryRun,
		ValidateOnly: *validateOnly,
		Report:       *reportFlag,
	}

	for _, s := range types.AllStages() {
		if *stageFlags[s] {
			req.Stages = append(req.Stages, s)
		}
	}

	if *resumeFrom != "" {
		if req.Full || len(req.Stages) > 0 {
			return nil, false, &ExitError{Code: 2, Message: "--resume-from cannot be combined with --full or stage flags"}
		}
		s, ok := types.ParseStage(*resumeFrom)
		if !ok {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown stage %q for --resume-from", *resumeFrom)}
		}
		req.ResumeFrom = &s
	}

	req.LogLevel = strings.ToLower(*logLevel)
	switch req.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	req.LogFormat = strings.ToLower(*logFormat)
	if req.LogFormat != "text" && req.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	if *notify != "" {
		for _, ep := range strings.Split(*notify, ",") {
			ep = strings.TrimSpace(ep)
			if !validEndpoint(ep) {
				return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown notification endpoint %q", ep)}
			}
			req.Notify = append(req.Notify, ep)
		}
	}

	return req, false, nil
}

func validEndpoint(ep string) bool {
	for _, known := range config.NotificationEndpoints {
		if ep == known {
			return true
		}
	}
	return false
}
