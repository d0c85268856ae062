package taskgraph

import "time"

// config holds every construction-time parameter of a Runtime. It is built
// from sane defaults and then mutated by the supplied Options, mirroring
// eventloop/options.go's LoopOption interface+resolver shape.
type config struct {
	window              uint32
	workerCounts        [maxWorkerKinds]int
	depPoolCapacity     uint32
	readyQueueSize      uint32
	completionQueueSize uint32
	reserveBackoff      time.Duration
	reserveMaxWait      time.Duration

	kernel             Kernel
	completionCallback func(TaskID, error)

	logger  Logger
	metrics *Metrics

	tracePath string

	maxMemFraction float64
}

func defaultConfig() *config {
	return &config{
		window:              1024,
		depPoolCapacity:     1 << 16,
		readyQueueSize:      1024,
		completionQueueSize: 1024,
		reserveBackoff:      50 * time.Microsecond,
		reserveMaxWait:      5 * time.Second,
		logger:              noopLogger{},
		metrics:             &Metrics{},
		maxMemFraction:      0.8,
	}
}

// Option configures a Runtime at construction time.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(c *config) error { return f(c) }

// WithWindow sets the task window size W. Must be a power of two.
func WithWindow(w uint32) Option {
	return optionFunc(func(c *config) error {
		if w == 0 || w&(w-1) != 0 {
			return &ConfigInvalid{Reason: "window must be a power of two"}
		}
		c.window = w
		return nil
	})
}

// WithWorkers sets the number of worker goroutines for a given kind.
func WithWorkers(kind WorkerKind, count int) Option {
	return optionFunc(func(c *config) error {
		if !kind.valid() {
			return &ConfigInvalid{Reason: "worker kind out of range"}
		}
		if count <= 0 {
			return &ConfigInvalid{Reason: "worker count must be > 0"}
		}
		c.workerCounts[kind] = count
		return nil
	})
}

// WithDepPoolCapacity sets the dependency-edge arena size.
func WithDepPoolCapacity(n uint32) Option {
	return optionFunc(func(c *config) error {
		if n == 0 {
			return &ConfigInvalid{Reason: "dep pool capacity must be > 0"}
		}
		c.depPoolCapacity = n
		return nil
	})
}

// WithQueueSizes sets the ready and completion queue capacities. Both must
// be powers of two and at least the task window, so that a fully-saturated
// window can never overflow either queue.
func WithQueueSizes(ready, completion uint32) Option {
	return optionFunc(func(c *config) error {
		if ready == 0 || ready&(ready-1) != 0 {
			return &ConfigInvalid{Reason: "ready queue size must be a power of two"}
		}
		if completion == 0 || completion&(completion-1) != 0 {
			return &ConfigInvalid{Reason: "completion queue size must be a power of two"}
		}
		c.readyQueueSize = ready
		c.completionQueueSize = completion
		return nil
	})
}

// WithReserveTiming tunes the backoff and maximum wait used while a
// submission is blocked on a saturated task window.
func WithReserveTiming(backoff, maxWait time.Duration) Option {
	return optionFunc(func(c *config) error {
		if backoff <= 0 || maxWait <= 0 {
			return &ConfigInvalid{Reason: "reserve timing must be positive"}
		}
		c.reserveBackoff = backoff
		c.reserveMaxWait = maxWait
		return nil
	})
}

// WithKernel supplies the function workers invoke to execute a task body.
// Required: Runtime construction fails without one.
func WithKernel(k Kernel) Option {
	return optionFunc(func(c *config) error {
		if k == nil {
			return &ConfigInvalid{Reason: "kernel must not be nil"}
		}
		c.kernel = k
		return nil
	})
}

// WithCompletionCallback registers a callback invoked on the completion
// drainer goroutine whenever a task finishes (err is non-nil on kernel
// failure). It must not block, and must not call back into the Runtime.
func WithCompletionCallback(cb func(TaskID, error)) Option {
	return optionFunc(func(c *config) error {
		c.completionCallback = cb
		return nil
	})
}

// WithLogger installs a structured logging sink.
func WithLogger(l Logger) Option {
	return optionFunc(func(c *config) error {
		if l == nil {
			return &ConfigInvalid{Reason: "logger must not be nil"}
		}
		c.logger = l
		return nil
	})
}

// WithTraceOutput enables chrome-trace JSON emission to the given path on
// Close.
func WithTraceOutput(path string) Option {
	return optionFunc(func(c *config) error {
		if path == "" {
			return &ConfigInvalid{Reason: "trace path must not be empty"}
		}
		c.tracePath = path
		return nil
	})
}

// WithMaxMemoryFraction caps the fraction of total system memory (per
// github.com/pbnjay/memory) that the configured window and dep pool sizing
// may be estimated to consume, checked at construction time.
func WithMaxMemoryFraction(f float64) Option {
	return optionFunc(func(c *config) error {
		if f <= 0 || f > 1 {
			return &ConfigInvalid{Reason: "max memory fraction must be in (0, 1]"}
		}
		c.maxMemFraction = f
		return nil
	})
}

func resolveConfig(opts []Option) (*config, error) {
	c := defaultConfig()
	for _, o := range opts {
		if err := o.apply(c); err != nil {
			return nil, err
		}
	}
	if c.kernel == nil {
		return nil, &ConfigInvalid{Reason: "no kernel configured, see WithKernel"}
	}
	haveWorkers := false
	for _, n := range c.workerCounts {
		if n > 0 {
			haveWorkers = true
			break
		}
	}
	if !haveWorkers {
		return nil, &ConfigInvalid{Reason: "no worker kinds configured, see WithWorkers"}
	}
	if c.readyQueueSize < c.window {
		return nil, &ConfigInvalid{Reason: "ready queue size must be >= window"}
	}
	if c.completionQueueSize < c.window {
		return nil, &ConfigInvalid{Reason: "completion queue size must be >= window"}
	}
	return c, nil
}
