// Package graph implements the pull-model render graph: a summing
// MixerNode with one input bus per source and a SinkNode producing the
// final output buffer. Nodes request samples from their buses through
// render callbacks; sources never push into the graph.
package graph

import (
	"errors"
	"fmt"

	ilog "github.com/pion/audiograph/internal/logging"
	"github.com/pion/audiograph/pkg/pcm"
	"github.com/pion/logging"
)

// Scope selects a node's input or output side.
type Scope int

const (
	ScopeInput Scope = iota
	ScopeOutput
)

// MinInputBusCount is the smallest input bus array a MixerNode carries.
// Requesting fewer buses keeps the extra ones disabled.
const MinInputBusCount = 2

var (
	ErrBusOutOfRange      = errors.New("graph: bus index out of range")
	ErrInvalidScope       = errors.New("graph: operation not valid for scope")
	ErrMissingFormat      = errors.New("graph: bus has no format")
	ErrFormatMismatch     = errors.New("graph: bus format differs from output format")
	ErrMissingCallback    = errors.New("graph: enabled bus has no render callback")
	ErrNotConnected       = errors.New("graph: mixer node is not connected to a sink")
	ErrNotInitialized     = errors.New("graph: node has not been initialized")
	ErrAlreadyInitialized = errors.New("graph: node is already initialized")
)

// RenderFunc fills dst with exactly frames frames for one bus. It must
// not block; it reports failure through its error, in which case the bus
// contributes silence for the call.
type RenderFunc func(frames int, dst []float32) error

// BusError reports a render callback failure for a single bus during one
// Render invocation. The rest of the graph still renders.
type BusError struct {
	Bus int
	Err error
}

func (e BusError) Error() string {
	return fmt.Sprintf("graph: bus %d render failed: %v", e.Bus, e.Err)
}

func (e BusError) Unwrap() error { return e.Err }

type inputBus struct {
	format  pcm.Format
	volume  float32
	render  RenderFunc
	scratch []float32
}

func (b *inputBus) enabled() bool { return b.render != nil }

// MixerNode sums its enabled input buses into a single output bus.
type MixerNode struct {
	log          logging.LeveledLogger
	inputs       []inputBus
	outputFormat pcm.Format
	outputVolume float32
	sink         *SinkNode
	initialized  bool
}

// NewMixerNode creates an uninitialized summing node with the minimum
// bus width.
func NewMixerNode() *MixerNode {
	n := &MixerNode{
		log:          ilog.NewLogger("audiograph/graph"),
		outputVolume: 1,
	}
	n.inputs = make([]inputBus, MinInputBusCount)
	for i := range n.inputs {
		n.inputs[i].volume = 1
	}
	return n
}

// SetBusCount grows the input bus array to at least count buses. The
// output side always has exactly one bus.
func (n *MixerNode) SetBusCount(scope Scope, count int) error {
	if scope != ScopeInput {
		return ErrInvalidScope
	}
	if count < MinInputBusCount {
		count = MinInputBusCount
	}
	for len(n.inputs) < count {
		n.inputs = append(n.inputs, inputBus{volume: 1})
	}
	return nil
}

// BusCount returns the number of input buses.
func (n *MixerNode) BusCount(scope Scope) int {
	if scope == ScopeOutput {
		return 1
	}
	return len(n.inputs)
}

// SetFormat fixes the format of one bus.
func (n *MixerNode) SetFormat(format pcm.Format, bus int, scope Scope) error {
	if scope == ScopeOutput {
		n.outputFormat = format
		return nil
	}
	if bus < 0 || bus >= len(n.inputs) {
		return ErrBusOutOfRange
	}
	n.inputs[bus].format = format
	return nil
}

// BindRenderCallback attaches the pull function for an input bus,
// enabling it. Buses without a callback stay disabled and contribute
// silence.
func (n *MixerNode) BindRenderCallback(render RenderFunc, bus int) error {
	if bus < 0 || bus >= len(n.inputs) {
		return ErrBusOutOfRange
	}
	n.inputs[bus].render = render
	return nil
}

// SetVolume sets the gain of one bus.
func (n *MixerNode) SetVolume(volume float32, bus int, scope Scope) error {
	if scope == ScopeOutput {
		n.outputVolume = volume
		return nil
	}
	if bus < 0 || bus >= len(n.inputs) {
		return ErrBusOutOfRange
	}
	n.inputs[bus].volume = volume
	return nil
}

// Enabled reports whether an input bus participates in rendering.
func (n *MixerNode) Enabled(bus int) bool {
	if bus < 0 || bus >= len(n.inputs) {
		return false
	}
	return n.inputs[bus].enabled()
}

// Connect wires the node's output to a sink.
func (n *MixerNode) Connect(sink *SinkNode) error {
	if sink == nil {
		return ErrNotConnected
	}
	n.sink = sink
	return nil
}

// Initialize validates the wiring: every enabled bus must carry the
// output format and a callback, and a sink must be connected.
func (n *MixerNode) Initialize() error {
	if n.initialized {
		return ErrAlreadyInitialized
	}
	if !n.outputFormat.IsValid() {
		return ErrMissingFormat
	}
	if n.sink == nil {
		return ErrNotConnected
	}
	for i := range n.inputs {
		bus := &n.inputs[i]
		if !bus.enabled() {
			continue
		}
		if !bus.format.IsValid() {
			return fmt.Errorf("bus %d: %w", i, ErrMissingFormat)
		}
		if bus.format != n.outputFormat {
			return fmt.Errorf("bus %d: %w", i, ErrFormatMismatch)
		}
	}
	n.initialized = true
	n.log.Debugf("initialized: %d buses, %dHz %dch",
		len(n.inputs), n.outputFormat.SampleRate, n.outputFormat.ChannelCount)
	return nil
}

// Render pulls frames frames from every enabled bus, sums them, and
// pushes the block through the connected sink. Callback failures are
// returned per bus; the failing bus contributes silence and the render
// still completes.
func (n *MixerNode) Render(frames int, sampleTime int64) (*pcm.Buffer, []BusError) {
	if !n.initialized {
		return nil, []BusError{{Bus: -1, Err: ErrNotInitialized}}
	}

	ch := n.outputFormat.ChannelCount
	mixed := pcm.NewBuffer(n.outputFormat, frames)
	var busErrs []BusError

	for i := range n.inputs {
		bus := &n.inputs[i]
		if !bus.enabled() {
			continue
		}
		if cap(bus.scratch) < frames*ch {
			bus.scratch = make([]float32, frames*ch)
		}
		scratch := bus.scratch[:frames*ch]
		if err := bus.render(frames, scratch); err != nil {
			busErrs = append(busErrs, BusError{Bus: i, Err: err})
			continue
		}
		vol := bus.volume
		for s := range scratch {
			mixed.Data[s] += scratch[s] * vol
		}
	}

	if n.outputVolume != 1 {
		for s := range mixed.Data {
			mixed.Data[s] *= n.outputVolume
		}
	}

	out, err := n.sink.Render(mixed)
	if err != nil {
		busErrs = append(busErrs, BusError{Bus: -1, Err: err})
		return nil, busErrs
	}
	return out, busErrs
}

// SinkNode terminates the graph, producing the output buffer handed to
// the engine's delegate.
type SinkNode struct {
	format      pcm.Format
	initialized bool
}

// NewSinkNode creates an uninitialized sink.
func NewSinkNode() *SinkNode {
	return &SinkNode{}
}

// SetFormat fixes the sink's input/output format.
func (s *SinkNode) SetFormat(format pcm.Format) {
	s.format = format
}

// Initialize validates the sink's format.
func (s *SinkNode) Initialize() error {
	if s.initialized {
		return ErrAlreadyInitialized
	}
	if !s.format.IsValid() {
		return ErrMissingFormat
	}
	s.initialized = true
	return nil
}

// Render passes a mixed block through, verifying the format.
func (s *SinkNode) Render(in *pcm.Buffer) (*pcm.Buffer, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	if in.Format != s.format {
		return nil, ErrFormatMismatch
	}
	return in, nil
}
