// Package security enforces the orchestrator's path, input, and logging
// policies. Worker scripts may only be launched from sanitized paths, and
// every string headed for a log sink or result record passes the redactor.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Error is raised when a path or input violates the security policy. It is
// caught at the executor boundary and converted into a failed stage result;
// it never aborts a run.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("security violation for %q: %s", e.Path, e.Reason)
}

// PathSanitizer validates that worker script paths stay inside the project
// root and use an allow-listed form.
type PathSanitizer struct {
	root        string
	allowedExts map[string]bool
}

// DefaultExtensions are the worker script forms the launcher knows how to
// invoke.
var DefaultExtensions = []string{".py", ".sh"}

// NewPathSanitizer creates a sanitizer rooted at projectRoot. Extensions
// must include the leading dot; nil selects DefaultExtensions.
func NewPathSanitizer(projectRoot string, exts []string) (*PathSanitizer, error) {
	if projectRoot == "" {
		return nil, &Error{Path: projectRoot, Reason: "empty project root"}
	}
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, &Error{Path: projectRoot, Reason: "project root does not resolve: " + err.Error()}
	}
	if exts == nil {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}
	return &PathSanitizer{root: abs, allowedExts: allowed}, nil
}

// Root returns the resolved project root.
func (s *PathSanitizer) Root() string {
	return s.root
}

// Sanitize resolves raw to a canonical absolute path and returns it, or a
// *Error when any policy check fails: empty input, resolution failure,
// escape from the project root, disallowed extension, missing file, or a
// symbolic link.
func (s *PathSanitizer) Sanitize(raw string) (string, error) {
	if raw == "" {
		return "", &Error{Path: raw, Reason: "empty path"}
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", &Error{Path: raw, Reason: "path does not resolve: " + err.Error()}
	}
	abs = filepath.Clean(abs)

	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", &Error{Path: raw, Reason: "outside project root"}
	}

	ext := strings.ToLower(filepath.Ext(abs))
	if !s.allowedExts[ext] {
		return "", &Error{Path: raw, Reason: fmt.Sprintf("extension %q not allowed", ext)}
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return "", &Error{Path: raw, Reason: "path does not exist"}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "", &Error{Path: raw, Reason: "symbolic links are not allowed"}
	}

	return abs, nil
}
