package executor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Workers are encouraged to emit a single structured trailer line, e.g.
// {"records_processed": 12345}; the keyword scan below is a best-effort
// fallback for legacy scripts and is explicitly not authoritative.

var (
	recordLineRe = regexp.MustCompile(`(?i)\b(records?|rows?|processed|shape)\b`)
	numberRe     = regexp.MustCompile(`\d[\d,]*`)
)

// harvestRecords extracts a records-processed count from worker stdout.
// Structured NDJSON trailers win over the keyword heuristic; the heuristic
// takes the largest numeric token on any matching line.
func harvestRecords(stdout string) int64 {
	var best int64

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(line), &obj); err == nil {
				if v, ok := obj["records_processed"]; ok {
					if n, ok := asInt64(v); ok {
						return n
					}
				}
				continue
			}
		}

		if !recordLineRe.MatchString(line) {
			continue
		}
		for _, tok := range numberRe.FindAllString(line, -1) {
			n, err := strconv.ParseInt(strings.ReplaceAll(tok, ",", ""), 10, 64)
			if err == nil && n > best {
				best = n
			}
		}
	}
	return best
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// decodeOutput decodes captured worker output with a fallback chain:
// UTF-8 as-is, then Latin-1 (total, every byte maps to a rune), then a
// lossy replacement pass. No encoding error can reach the caller.
func decodeOutput(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return strings.ToValidUTF8(string(runes), "�")
}

// lastLines trims captured stderr to its final n lines for result storage;
// full output stays in the operational log files.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
