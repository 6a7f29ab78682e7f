// Package progress delivers orchestrator events to the launcher UI or the log.
package progress

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/glorpus-work/ofclient/internal/logger"
	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/orchestrator"
)

// Reporter receives progress events. Calls are serialized by the orchestrator.
type Reporter interface {
	Report(e orchestrator.Event)
}

// Hooks fans events out to every reporter.
func Hooks(reporters ...Reporter) orchestrator.Hooks {
	return orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
		for _, r := range reporters {
			r.Report(e)
		}
	}}
}

// Message is one line of the JSON-lines progress stream.
type Message struct {
	Event     string `json:"event"`
	Operation string `json:"operation"`
	Version   string `json:"version"`
	CacheMode string `json:"cache_mode"`
	Intact    int64  `json:"intact"`
	Altered   int64  `json:"altered"`
	Total     int64  `json:"total"`
	Error     string `json:"error,omitempty"`
}

// NewMessage converts an event to its wire form.
func NewMessage(e orchestrator.Event) Message {
	m := Message{
		Event:     e.Type.String(),
		Operation: e.Op.String(),
		Version:   e.Version,
		CacheMode: e.CacheKind,
		Intact:    e.Tally.Intact,
		Altered:   e.Tally.Altered,
		Total:     e.Tally.Total,
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	}
	return m
}

// JSONLines writes one JSON object per event, newline terminated.
type JSONLines struct {
	mu     sync.Mutex
	enc    *json.Encoder
	failed bool
}

// NewJSONLines creates a reporter writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// Report writes e. After the first write error the stream is abandoned; the
// operation itself carries on.
func (j *JSONLines) Report(e orchestrator.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failed {
		return
	}
	if err := j.enc.Encode(NewMessage(e)); err != nil {
		j.failed = true
		logger.Warn("Progress listener went away, further progress is only logged", logger.Fields{"error": err})
	}
}

// DialTimeout bounds the connection attempt to the UI listener.
const DialTimeout = 5 * time.Second

// Dial connects to the UI progress listener on localhost:port.
func Dial(ctx context.Context, port int) (*JSONLines, io.Closer, error) {
	d := net.Dialer{Timeout: DialTimeout}
	addr := net.JoinHostPort("localhost", strconv.Itoa(port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, pkgerrors.Wrapf(err, "connect to progress listener %s", addr)
	}
	return NewJSONLines(conn), conn, nil
}

// Log writes events to the application log.
type Log struct{}

// Report logs e. Per-file updates are only visible at debug level.
func (Log) Report(e orchestrator.Event) {
	fields := logger.Fields{
		"operation": e.Op.String(),
		"version":   e.Version,
		"cache":     e.CacheKind,
	}
	if e.Type != orchestrator.EventFailed {
		fields["intact"] = humanize.IBytes(uint64(max(e.Tally.Intact, 0)))
		fields["altered"] = humanize.IBytes(uint64(max(e.Tally.Altered, 0)))
		fields["missing"] = humanize.IBytes(uint64(e.Tally.Missing()))
		fields["total"] = humanize.IBytes(uint64(max(e.Tally.Total, 0)))
	}

	switch e.Type {
	case orchestrator.EventStart:
		logger.Info("Cache operation started", fields)
	case orchestrator.EventUpdate:
		logger.Debug("Cache progress", fields)
	case orchestrator.EventComplete:
		logger.Success("Cache operation complete", fields)
	case orchestrator.EventFailed:
		fields["error"] = e.Err
		logger.Error("Cache operation failed", fields)
	}
}
