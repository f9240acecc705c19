package audiograph

import "fmt"

// ErrorKind classifies the non-fatal failures the mixer reports through
// its delegate.
type ErrorKind int

const (
	// KindInvalidSampleRate: a produced buffer's rate disagrees with the
	// resolved output rate.
	KindInvalidSampleRate ErrorKind = iota + 1
	// KindUnableToProvideInputData: a render-callback pull from a ring
	// buffer failed.
	KindUnableToProvideInputData
	// KindUnableToEnforceAudioFormat: settings convergence was attempted
	// while no output format is resolvable.
	KindUnableToEnforceAudioFormat
	// KindGraphBuildFailed: constructing or initializing the bus graph
	// failed.
	KindGraphBuildFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidSampleRate:
		return "invalid sample rate"
	case KindUnableToProvideInputData:
		return "unable to provide input data"
	case KindUnableToEnforceAudioFormat:
		return "unable to enforce audio format"
	case KindGraphBuildFailed:
		return "graph build failed"
	default:
		return "unknown"
	}
}

// Error carries one mixer failure and the underlying status. Channel is
// -1 when the failure is not tied to a single channel.
type Error struct {
	Kind    ErrorKind
	Channel int
	Err     error
}

func (e *Error) Error() string {
	if e.Channel >= 0 {
		return fmt.Sprintf("audiograph: %s (channel %d): %v", e.Kind, e.Channel, e.Err)
	}
	return fmt.Sprintf("audiograph: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
