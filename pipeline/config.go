package pipeline

import (
	"time"

	golog "github.com/tobozo/go-targz/log"
	"github.com/tobozo/go-targz/storage"
)

const defaultSectorSize = 4096
const defaultReadTimeout = 10 * time.Second

// Config holds everything a Pipeline needs before it starts running:
// sector size, diagnostics, and the optional collaborators a scenario
// may require (temp storage for the no-dictionary fallback, a fatal
// hook in place of a halting loop).
type Config struct {
	SectorSize       int
	Log              *golog.Logger
	OnFatal          func(error)
	HaltOnError      bool
	ReadTimeout      time.Duration
	TempStorage      storage.Adapter
	VerifyAfterWrite bool
	LowMemory        bool
}

// Option configures a Config via the functional-options pattern.
type Option func(*Config)

// WithSectorSize overrides the sector size (must be a positive multiple
// of 512; callers passing anything else get the default instead).
func WithSectorSize(n int) Option {
	return func(c *Config) {
		if n > 0 && n%512 == 0 {
			c.SectorSize = n
		}
	}
}

// WithLog attaches a logger. A nil logger is also valid and silently
// drops everything (see golog.Logger).
func WithLog(l *golog.Logger) Option {
	return func(c *Config) { c.Log = l }
}

// WithOnFatal sets the hook invoked in place of halt_on_error's busy
// loop whenever HaltOnError is set and the pipeline fails.
func WithOnFatal(fn func(error)) Option {
	return func(c *Config) { c.OnFatal = fn }
}

// WithHaltOnError sets the policy bit that gates OnFatal.
func WithHaltOnError(halt bool) Option {
	return func(c *Config) { c.HaltOnError = halt }
}

// WithReadTimeout bounds how long a single storage read/write callback
// may block before the caller should treat it as stalled. The pipeline
// itself does not enforce this — Storage Adapter implementations are
// expected to honor it — but it is threaded through as configuration so
// one place controls it.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ReadTimeout = d
		}
	}
}

// WithTempStorage supplies the adapter used for the two-phase
// gz-to-tempfile-to-tar fallback when no dictionary window fits in
// memory and the tar reader sink cannot be read back from.
func WithTempStorage(a storage.Adapter) Option {
	return func(c *Config) { c.TempStorage = a }
}

// WithVerifyAfterWrite turns on the slow-path re-stat verification
// after each extracted entry (existence and size checks).
func WithVerifyAfterWrite() Option {
	return func(c *Config) { c.VerifyAfterWrite = true }
}

// WithLowMemory forces sink-reflective INFLATE instead of a 32 KiB
// dictionary window, for hosts that cannot spare it.
func WithLowMemory() Option {
	return func(c *Config) { c.LowMemory = true }
}

// NewConfig builds a Config from its defaults plus the given options.
func NewConfig(opts ...Option) Config {
	c := Config{
		SectorSize:  defaultSectorSize,
		ReadTimeout: defaultReadTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
