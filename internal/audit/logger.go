package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	ActionLogin         = "auth.login"
	ActionRegister      = "auth.register"
	ActionLogout        = "auth.logout"
	ActionProfileUpdate = "profile.update"
	ActionTaskCreate    = "task.create"
	ActionTaskUpdate    = "task.update"
	ActionTaskDelete    = "task.delete"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Event struct {
	At        string `json:"at"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Target    string `json:"target,omitempty"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Logger appends one JSON object per line. A nil Logger or an empty path
// discards events.
type Logger struct {
	path    string
	source  string
	nowFunc func() time.Time
	mu      sync.Mutex
}

func NewLogger(path, source string) *Logger {
	return &Logger{path: path, source: source, nowFunc: time.Now}
}

func (l *Logger) Record(e Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	if e.At == "" {
		e.At = l.nowFunc().UTC().Format(time.RFC3339)
	}
	if e.Source == "" {
		e.Source = l.source
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}

// Log is shorthand for Record with the common fields.
func (l *Logger) Log(actor, action, target, outcome, detail string) error {
	return l.Record(Event{Actor: actor, Action: action, Target: target, Outcome: outcome, Detail: detail})
}
