package security

import "regexp"

// redaction rules are applied in order; later rules see the output of
// earlier ones. The assignment rule must run before the digit-run rules so
// credential values containing digits are masked as credentials.
var redactionRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	// key=..., token: ..., password = ... style assignments
	{regexp.MustCompile(`(?i)\b(key|api[_-]?key|token|secret|password|passwd|pwd|credential)\b(\s*[:=]\s*)\S+`), "$1$2[REDACTED]"},
	// card-number-shaped digit runs, with or without separators
	{regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), "[REDACTED-PAN]"},
	// SSN dashed form
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED-SSN]"},
	// bare 9-digit runs (SSN / tax IDs without separators)
	{regexp.MustCompile(`\b\d{9}\b`), "[REDACTED-ID]"},
}

// Redact applies the ordered substitution rules to msg. It is applied to
// every string before it reaches a log sink or a stage result; callers must
// not log raw worker output directly.
func Redact(msg string) string {
	for _, r := range redactionRules {
		msg = r.re.ReplaceAllString(msg, r.repl)
	}
	return msg
}
