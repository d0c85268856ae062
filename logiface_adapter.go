package taskgraph

import (
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/logiface"
)

// logifaceEvent is the minimal logiface.Event implementation needed to back
// a Logger: a flat ordered slice of fields, a message, and a level. Real
// deployments would more likely wire an existing logiface backend (zerolog,
// logrus, slog, stumpy — see the teacher's logiface-* sibling modules); this
// one exists so the package has no hard dependency on any specific backend
// while still demonstrating real logiface wiring end to end.
type logifaceEvent struct {
	logiface.UnimplementedEvent
	level logiface.Level
	msg   string
	kv    []logifaceField
}

type logifaceField struct {
	key string
	val any
}

func (e *logifaceEvent) Level() logiface.Level { return e.level }

func (e *logifaceEvent) AddField(key string, val any) {
	e.kv = append(e.kv, logifaceField{key: key, val: val})
}

func (e *logifaceEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

func (e *logifaceEvent) AddError(err error) bool {
	e.kv = append(e.kv, logifaceField{key: "error", val: err})
	return true
}

func (e *logifaceEvent) reset() {
	e.msg = ""
	e.kv = e.kv[:0]
}

type logifaceEventFactory struct{}

func (logifaceEventFactory) NewEvent(level logiface.Level) *logifaceEvent {
	return &logifaceEvent{level: level}
}

// logifaceLineWriter renders an event as one log line. It is deliberately
// simple (no color, no structured encoding) — this is a reference wiring,
// not a production sink.
type logifaceLineWriter struct {
	out io.Writer
}

func (w logifaceLineWriter) Write(event *logifaceEvent) error {
	_, err := fmt.Fprintf(w.out, "[%s] %s", event.Level(), event.msg)
	if err != nil {
		return err
	}
	for _, f := range event.kv {
		if _, err := fmt.Fprintf(w.out, " %s=%v", f.key, f.val); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w.out)
	return err
}

// logifaceLogger adapts a *logiface.Logger[*logifaceEvent] to this
// package's Logger interface.
type logifaceLogger struct {
	l *logiface.Logger[*logifaceEvent]
}

// NewLogifaceLogger builds a Logger backed by github.com/joeycumines/logiface,
// writing one line per event to w.
func NewLogifaceLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := logiface.New[*logifaceEvent](
		logiface.WithEventFactory[*logifaceEvent](logifaceEventFactory{}),
		logiface.WithWriter[*logifaceEvent](logifaceLineWriter{out: w}),
	)
	return &logifaceLogger{l: l}
}

func (a *logifaceLogger) Debug(msg string, kv ...any) { logAt(a.l.Debug(), msg, kv) }
func (a *logifaceLogger) Info(msg string, kv ...any)  { logAt(a.l.Info(), msg, kv) }
func (a *logifaceLogger) Warn(msg string, kv ...any)  { logAt(a.l.Warning(), msg, kv) }
func (a *logifaceLogger) Error(msg string, kv ...any) { logAt(a.l.Err(), msg, kv) }

func logAt(b *logiface.Builder[*logifaceEvent], msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		if key == "" {
			key = fmt.Sprintf("arg%d", i)
		}
		if err, ok := kv[i+1].(error); ok {
			b = b.Err(err)
			continue
		}
		b = b.Any(key, kv[i+1])
	}
	b.Log(msg)
}

var _ Logger = (*logifaceLogger)(nil)
