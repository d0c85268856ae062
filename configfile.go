package taskgraph

import (
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML-serializable subset of config, for deployments
// that prefer a config file over wiring Options in code.
type fileConfig struct {
	Window              uint32 `toml:"window"`
	DepPoolCapacity     uint32 `toml:"dep_pool_capacity"`
	ReadyQueueSize      uint32 `toml:"ready_queue_size"`
	CompletionQueueSize uint32 `toml:"completion_queue_size"`
	ReserveBackoffMS    int64  `toml:"reserve_backoff_ms"`
	ReserveMaxWaitMS    int64  `toml:"reserve_max_wait_ms"`
	MaxMemoryFraction   float64 `toml:"max_memory_fraction"`
	TracePath           string  `toml:"trace_path"`

	Workers []struct {
		Kind  uint8 `toml:"kind"`
		Count int   `toml:"count"`
	} `toml:"workers"`
}

// WithConfigFile loads a TOML config file and applies every field it sets,
// grounded on the teacher's own use of github.com/BurntSushi/toml.
// Programmatic Options passed after WithConfigFile in the same New call
// still win, since options apply in order.
func WithConfigFile(path string) Option {
	return optionFunc(func(c *config) error {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return &ConfigInvalid{Reason: "config file: " + err.Error()}
		}

		if fc.Window != 0 {
			if err := WithWindow(fc.Window).apply(c); err != nil {
				return err
			}
		}
		if fc.DepPoolCapacity != 0 {
			c.depPoolCapacity = fc.DepPoolCapacity
		}
		if fc.ReadyQueueSize != 0 || fc.CompletionQueueSize != 0 {
			ready, completion := c.readyQueueSize, c.completionQueueSize
			if fc.ReadyQueueSize != 0 {
				ready = fc.ReadyQueueSize
			}
			if fc.CompletionQueueSize != 0 {
				completion = fc.CompletionQueueSize
			}
			if err := WithQueueSizes(ready, completion).apply(c); err != nil {
				return err
			}
		}
		if fc.ReserveBackoffMS != 0 || fc.ReserveMaxWaitMS != 0 {
			backoff, maxWait := c.reserveBackoff, c.reserveMaxWait
			if fc.ReserveBackoffMS != 0 {
				backoff = time.Duration(fc.ReserveBackoffMS) * time.Millisecond
			}
			if fc.ReserveMaxWaitMS != 0 {
				maxWait = time.Duration(fc.ReserveMaxWaitMS) * time.Millisecond
			}
			if err := WithReserveTiming(backoff, maxWait).apply(c); err != nil {
				return err
			}
		}
		if fc.MaxMemoryFraction != 0 {
			if err := WithMaxMemoryFraction(fc.MaxMemoryFraction).apply(c); err != nil {
				return err
			}
		}
		if fc.TracePath != "" {
			c.tracePath = fc.TracePath
		}
		for _, w := range fc.Workers {
			if err := WithWorkers(WorkerKind(w.Kind), w.Count).apply(c); err != nil {
				return err
			}
		}
		return nil
	})
}
