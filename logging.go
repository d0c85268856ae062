package taskgraph

// Logger is the pluggable structured-logging facade, modeled on
// eventloop.Logger: a minimal level-keyed interface so callers can plug in
// whatever structured logger they already use. The package ships one
// adapter, NewLogifaceLogger (logiface_adapter.go), which imports
// github.com/joeycumines/logiface; the rest of the package logs only
// through this interface.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// noopLogger discards everything; it is the zero-cost default so Runtime
// never needs a nil check on the hot path.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

var _ Logger = noopLogger{}
