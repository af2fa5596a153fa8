package pipeline

import (
	"github.com/tobozo/go-targz/errcode"
)

// State is the pipeline's lifecycle: Idle before anything runs, Running
// for the duration of exactly one scenario, then Done or Failed. Failed
// is terminal — the object must not be reused.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Scenario names which of the three hard scenarios a Pipeline ran.
type Scenario int

const (
	ScenarioNone Scenario = iota
	ScenarioUnpackGzToFile
	ScenarioUnpackTarGzWithDict
	ScenarioUnpackTarGzTempFile
	ScenarioPackTarGz
)

func (s Scenario) String() string {
	switch s {
	case ScenarioUnpackGzToFile:
		return "unpack-gz-to-file"
	case ScenarioUnpackTarGzWithDict:
		return "unpack-tar-gz-with-dict"
	case ScenarioUnpackTarGzTempFile:
		return "unpack-tar-gz-tempfile"
	case ScenarioPackTarGz:
		return "pack-tar-gz"
	default:
		return "none"
	}
}

// Result is what a completed (Done or Failed) scenario leaves behind.
type Result struct {
	Scenario       Scenario
	BytesIn        int64
	BytesOut       int64
	EntriesWritten int
	// SkippedEntries counts tar entries that were neither Regular nor
	// Directory (hardlinks, symlinks, devices, FIFOs, PAX records),
	// whose data was still consumed to keep the stream aligned.
	SkippedEntries int
}

// Pipeline is a single-use orchestrator: one Config, driven through
// exactly one of UnpackGzToFile/UnpackTarGz/PackTarGz, then disposed.
// Calling a scenario method twice on the same Pipeline is a programming
// error and returns StreamError without touching any collaborator.
type Pipeline struct {
	cfg    Config
	state  State
	result Result
	lastErr error
}

// New returns an Idle Pipeline configured by opts.
func New(opts ...Option) *Pipeline {
	return &Pipeline{cfg: NewConfig(opts...)}
}

// State reports the current lifecycle state.
func (p *Pipeline) State() State { return p.state }

// Result returns the outcome of the last completed scenario (zero value
// before one has run).
func (p *Pipeline) Result() Result { return p.result }

// LastError returns the error that moved the pipeline to Failed, or nil.
func (p *Pipeline) LastError() error { return p.lastErr }

// HasError is a convenience for LastError() != nil.
func (p *Pipeline) HasError() bool { return p.lastErr != nil }

// ClearError resets the error surface. It does not move a Failed
// pipeline back to Idle — Failed is terminal — it only lets a caller
// inspect-then-clear between separate pipeline objects sharing a
// logging sink.
func (p *Pipeline) ClearError() { p.lastErr = nil }

// start transitions Idle -> Running{scenario}, refusing reentry or
// reuse of a terminal pipeline.
func (p *Pipeline) start(scenario Scenario) error {
	if p.state != StateIdle {
		return errcode.New(errcode.StreamError)
	}
	p.state = StateRunning
	p.result = Result{Scenario: scenario}
	return nil
}

// fail records err, moves the pipeline to Failed, and — when
// HaltOnError is set and a fatal hook is configured — invokes that hook
// instead of spinning. The error is always returned too; OnFatal is an
// additional hook for callers that want process-terminating behavior,
// not a substitute for the explicit return.
func (p *Pipeline) fail(code errcode.CodeError, cause error) error {
	var err error
	if cause != nil {
		err = errcode.Wrap(code, cause)
	} else {
		err = errcode.New(code)
	}
	p.lastErr = err
	p.state = StateFailed
	if p.cfg.HaltOnError && p.cfg.OnFatal != nil {
		p.cfg.OnFatal(err)
	}
	return err
}

// finish transitions Running -> Done.
func (p *Pipeline) finish() {
	p.state = StateDone
}
