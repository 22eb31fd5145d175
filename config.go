package resq

import "runtime"

// Config defines settings for the job client and its worker pool.
type Config struct {
	// Namespace prefixes every key written to the store. Default "resq".
	Namespace string `mapstructure:"namespace"`

	// Queues lists the queues a worker pool consumes, in the order they
	// are offered to the blocking reserve. Default ["default"].
	Queues []string `mapstructure:"queues"`

	// Interval caps a single blocking reserve, in seconds. Workers re-check
	// their stop channel between reserves. Default 5.
	Interval int `mapstructure:"interval"`

	// Timeout is the per-operation limit for talking to the store (push,
	// status updates), in seconds. Default 60.
	Timeout int `mapstructure:"timeout"`

	// NumWorkers is the size of a worker pool.
	// Default - num logical cores.
	NumWorkers int `mapstructure:"num_workers"`
}

func (c *Config) InitDefaults() {
	if c.Namespace == "" {
		c.Namespace = "resq"
	}

	if len(c.Queues) == 0 {
		c.Queues = []string{"default"}
	}

	if c.Interval == 0 {
		c.Interval = 5
	}

	if c.Timeout == 0 {
		c.Timeout = 60
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = runtime.NumCPU()
	}
}
