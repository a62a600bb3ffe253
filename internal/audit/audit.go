// Package audit records privileged orchestrator actions to an append-only
// JSONL stream, separate from the operational logs. Payloads are stored
// only as one-way hashes, and each entry chains over its predecessor so
// after-the-fact edits are detectable.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one audit trail entry. Events are append-only; the orchestrator
// never mutates or deletes them.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Stage     string    `json:"stage,omitempty"`
	Payload   string    `json:"payload_sha256"`
	Outcome   string    `json:"outcome"`
	Chain     string    `json:"chain"`
}

// Logger appends events to a size-rotated JSONL file. It is safe for
// concurrent use; stages never write to the audit file themselves, so no
// cross-process locking is needed.
type Logger struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	keep     int
	f        *os.File
	seq      int64
	prev     string
}

// DefaultMaxBytes rotates the audit file at 10 MiB.
const DefaultMaxBytes = 10 << 20

// New opens (or creates) the audit stream at path. maxBytes <= 0 selects
// DefaultMaxBytes.
func New(path string, maxBytes int64) (*Logger, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	l := &Logger{path: path, maxBytes: maxBytes, keep: 3, f: f}
	l.seq, l.prev = lastEntry(path)
	return l, nil
}

// lastEntry recovers the chain position from an existing stream so appends
// across process restarts stay verifiable.
func lastEntry(path string) (int64, string) {
	raw, err := os.ReadFile(path)
	if err != nil || len(raw) == 0 {
		return 0, ""
	}
	var last Event
	found := false
	for _, line := range bytes.Split(bytes.TrimSpace(raw), []byte("\n")) {
		var ev Event
		if json.Unmarshal(line, &ev) == nil {
			last = ev
			found = true
		}
	}
	if !found {
		return 0, ""
	}
	return last.Seq, last.Chain
}

// Record appends one event. payload is hashed before storage; the raw
// payload never reaches disk.
func (l *Logger) Record(operation, stage string, payload any, outcome string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payloadHash, err := hashPayload(payload)
	if err != nil {
		return fmt.Errorf("hash audit payload: %w", err)
	}

	l.seq++
	ev := Event{
		Seq:       l.seq,
		Timestamp: time.Now().UTC(),
		Operation: operation,
		Stage:     stage,
		Payload:   payloadHash,
		Outcome:   outcome,
	}
	ev.Chain = chainHash(l.prev, &ev)

	line, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	if err := l.rotateIfNeeded(int64(len(line) + 1)); err != nil {
		return err
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	l.prev = ev.Chain
	return nil
}

// Close flushes and closes the stream.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// rotateIfNeeded shifts path -> path.1 -> ... when the next write would
// exceed maxBytes. The hash chain continues across rotations.
func (l *Logger) rotateIfNeeded(next int64) error {
	info, err := l.f.Stat()
	if err != nil {
		return err
	}
	if info.Size()+next <= l.maxBytes {
		return nil
	}
	if err := l.f.Close(); err != nil {
		return err
	}
	for i := l.keep - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", l.path, i)
		if _, err := os.Stat(from); err == nil {
			os.Rename(from, fmt.Sprintf("%s.%d", l.path, i+1))
		}
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.f = f
	return nil
}

func hashPayload(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// chainHash binds an event to its predecessor: sha256 over the previous
// chain value and the event's identifying fields.
func chainHash(prev string, ev *Event) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s|%s", prev, ev.Seq, ev.Operation, ev.Stage, ev.Payload, ev.Outcome)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify re-walks a JSONL audit stream and reports the first broken chain
// link, if any. It is used by tests and the ops tooling, not by the run
// path.
func Verify(lines [][]byte) error {
	prev := ""
	for i, line := range lines {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if got := chainHash(prev, &ev); got != ev.Chain {
			return fmt.Errorf("line %d: chain mismatch", i+1)
		}
		prev = ev.Chain
	}
	return nil
}
