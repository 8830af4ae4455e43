package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// EventType classifies a monitoring event.
type EventType string

const (
	// EventCheck is emitted for every probe result.
	EventCheck EventType = "check"
	// EventStatusChange is emitted when a service transitions between
	// healthy and unhealthy, ignoring the initial unknown status.
	EventStatusChange EventType = "status_change"
	// EventAlert is emitted when a service degrades past the threshold or
	// a resource sample exceeds its limit. Alerts are throttled.
	EventAlert EventType = "alert"
)

// Event is one monitoring occurrence, delivered to every notifier in order.
type Event struct {
	Type      EventType         `json:"type"`
	Service   string            `json:"service"`
	Stack     string            `json:"stack"`
	Timestamp time.Time         `json:"timestamp"`
	Healthy   bool              `json:"healthy"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Notifier receives monitoring events. A failing notifier must not stop
// the loop; errors are logged and swallowed by the dispatcher.
type Notifier interface {
	Notify(ev Event) error
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	Log logr.Logger
}

func (n *LogNotifier) Notify(ev Event) error {
	n.Log.Info("Monitoring event",
		"type", string(ev.Type), "service", ev.Service, "stack", ev.Stack,
		"healthy", ev.Healthy, "message", ev.Message)
	return nil
}

// maxEventLogBytes triggers rotation of the JSONL event log.
const maxEventLogBytes = 1 << 20

// FileNotifier appends events as JSON lines to a log file, rotating it to
// `<path>.1` when it exceeds one MiB. Safe for concurrent use.
type FileNotifier struct {
	path string
	mu   sync.Mutex
}

// NewFileNotifier builds a FileNotifier writing to path.
func NewFileNotifier(path string) *FileNotifier {
	return &FileNotifier{path: path}
}

func (n *FileNotifier) Notify(ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.rotateIfNeeded(); err != nil {
		return err
	}
	f, err := os.OpenFile(n.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open event log: %w", err)
	}
	defer f.Close()
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("cannot encode event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("cannot append event: %w", err)
	}
	return nil
}

func (n *FileNotifier) rotateIfNeeded() error {
	info, err := os.Stat(n.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot stat event log: %w", err)
	}
	if info.Size() < maxEventLogBytes {
		return nil
	}
	if err := os.Rename(n.path, n.path+".1"); err != nil {
		return fmt.Errorf("cannot rotate event log: %w", err)
	}
	return nil
}
