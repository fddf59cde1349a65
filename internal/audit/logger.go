package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// Config contains audit logger configuration
type Config struct {
	// Path is the destination file. Defaults to Dir/audit_<trace>.jsonl.
	Path string

	// Dir is used only when Path is empty (default: current directory).
	Dir string

	// Key switches the chain from SHA-256 to HMAC-SHA256.
	Key []byte

	// TraceID defaults to a fresh UUID.
	TraceID string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// syncFile is swapped in tests to simulate fsync failures.
var syncFile = func(f *os.File) error { return f.Sync() }

// Logger appends hash-chained events to a single file it owns exclusively
// for the lifetime of one run.
type Logger struct {
	mu sync.Mutex

	trace string
	path  string
	key   []byte
	keyID string
	now   func() time.Time

	file      *os.File
	prev      string
	records   int
	syncFails int
	closed    bool
	closeOnce sync.Once
}

// New opens the destination in append mode and returns a logger positioned
// at the start of a fresh chain.
func New(cfg Config) (*Logger, error) {
	trace := cfg.TraceID
	if trace == "" {
		trace = uuid.New().String()
	}

	path := cfg.Path
	if path == "" {
		path = filepath.Join(cfg.Dir, DefaultFileName(trace))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create audit directory", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuditOpen, fmt.Sprintf("failed to open audit file %s", path), err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	l := &Logger{
		trace: trace,
		path:  path,
		now:   now,
		file:  file,
	}
	if len(cfg.Key) > 0 {
		l.key = append([]byte(nil), cfg.Key...)
		l.keyID = KeyID(l.key)
	}
	return l, nil
}

// DefaultFileName is the file name used for a trace when no path is given.
func DefaultFileName(trace string) string {
	return fmt.Sprintf("audit_%s.jsonl", trace)
}

// Log redacts details, chains the event onto the previous one and appends it
// as one line. The fsync that follows is best effort.
func (l *Logger) Log(eventType string, details map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.New(errors.ErrCodeAuditClosed, fmt.Sprintf("audit log closed, dropped %s event", eventType))
	}

	ev := Event{
		TS:      float64(l.now().UnixNano()) / 1e9,
		Trace:   l.trace,
		Type:    eventType,
		Details: Redact(details),
		Prev:    l.prev,
		KeyID:   l.keyID,
	}

	canonical, err := Canonicalize(ev)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAuditWrite, fmt.Sprintf("failed to canonicalize %s event", eventType), err)
	}
	ev.Chain = Sign(l.key, l.prev, canonical)

	line, err := marshalLine(ev)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAuditWrite, fmt.Sprintf("failed to encode %s event", eventType), err)
	}
	if _, err := l.file.Write(line); err != nil {
		return errors.Wrap(errors.ErrCodeAuditWrite, fmt.Sprintf("failed to append %s event", eventType), err)
	}

	l.prev = ev.Chain
	l.records++

	if err := syncFile(l.file); err != nil {
		l.syncFails++
	}
	return nil
}

func marshalLine(ev Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close releases the file. It is safe to call more than once and never fails.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.closed = true
		_ = l.file.Close()
	})
	return nil
}

// TraceID returns the run's trace identifier.
func (l *Logger) TraceID() string { return l.trace }

// Path returns the audit destination.
func (l *Logger) Path() string { return l.path }

// KeyID returns the key fingerprint, or "" for unkeyed chains.
func (l *Logger) KeyID() string { return l.keyID }

// Head returns the chain value of the last written record.
func (l *Logger) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prev
}

// Records returns how many events were appended.
func (l *Logger) Records() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records
}

// SyncFailures returns how many fsync calls failed and were swallowed.
func (l *Logger) SyncFailures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncFails
}
