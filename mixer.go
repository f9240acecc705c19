// Package audiograph implements an audio mixing and synchronization
// engine for live media pipelines. Independently timed input channels
// are resampled to a common format and, when more than one channel is
// active, combined through a pull-model bus graph into one synchronized
// output stream whose timestamps are anchored to a monotonic clock.
package audiograph

import (
	"fmt"
	"sync"
	"time"

	ilog "github.com/pion/audiograph/internal/logging"
	"github.com/pion/audiograph/pkg/clock"
	"github.com/pion/audiograph/pkg/graph"
	"github.com/pion/audiograph/pkg/pcm"
	"github.com/pion/audiograph/pkg/ring"
	"github.com/pion/logging"
)

// ReferenceChannel is the distinguished channel whose cadence drives
// anchoring and render triggering.
const ReferenceChannel uint8 = 0

// Delegate receives the mixer's output stream and notifications.
// Callbacks are invoked synchronously on the appending goroutine and
// must not call back into the mixer.
type Delegate interface {
	OnOutputFormat(format pcm.Format)
	OnOutputBuffer(buf *pcm.Buffer, when clock.Time)
	OnError(err error)
}

// Sample pairs a decoded PCM block with the presentation time carried by
// its container.
type Sample struct {
	Buffer           *pcm.Buffer
	PresentationTime time.Duration
}

// Mixer owns one track per input channel, the bus graph combining them,
// and the timestamp anchor. All mutable state sits behind one mutex; the
// per-track render path is decoupled through each track's ring buffer.
type Mixer struct {
	log          logging.LeveledLogger
	delegate     Delegate
	clk          clock.Clock
	ringCapacity int

	mu         sync.Mutex
	settings   Settings
	tracks     []*track // arena indexed by channel id
	graph      *busGraph
	sampleTime int64
	anchor     clock.Time
	anchored   bool
	// Deferred anchor completion: host instant and presentation time
	// captured before the output rate was known.
	anchorPending bool
	anchorHost    time.Time
	anchorPTS     time.Duration
}

// busGraph pairs the summing node with its sink for one graph lifetime.
type busGraph struct {
	node   *graph.MixerNode
	sink   *graph.SinkNode
	format pcm.Format
}

// Option configures a Mixer.
type Option func(*Mixer)

// WithSettings supplies the initial settings.
func WithSettings(s Settings) Option {
	return func(m *Mixer) { m.settings = s }
}

// WithClock substitutes the clock used for timestamp anchoring.
func WithClock(c clock.Clock) Option {
	return func(m *Mixer) {
		if c != nil {
			m.clk = c
		}
	}
}

// WithRingCapacity sets each track's ring buffer capacity in frames.
func WithRingCapacity(frames int) Option {
	return func(m *Mixer) { m.ringCapacity = frames }
}

// New creates a mixer delivering to delegate.
func New(delegate Delegate, opts ...Option) *Mixer {
	m := &Mixer{
		log:          ilog.NewLogger("audiograph"),
		delegate:     delegate,
		clk:          clock.System{},
		ringCapacity: ring.DefaultCapacity,
	}
	for _, o := range opts {
		o(m)
	}
	m.settings = m.settings.normalized()
	return m
}

// AppendSample feeds one container sample to a channel.
func (m *Mixer) AppendSample(channel uint8, sample Sample) {
	if sample.Buffer == nil {
		return
	}
	m.Append(channel, sample.Buffer, sample.PresentationTime)
}

// Append feeds one raw PCM block with an explicit presentation time to a
// channel, creating the channel's track on first use. The very first
// append on the reference channel captures the timestamp anchor.
func (m *Mixer) Append(channel uint8, buf *pcm.Buffer, presentationTime time.Duration) {
	if buf == nil || buf.Frames() == 0 {
		return
	}

	m.mu.Lock()
	t := m.trackLocked(channel)
	if channel == ReferenceChannel && !m.anchored && !m.anchorPending {
		m.captureAnchorLocked(presentationTime)
	}
	r := t.resampler
	m.mu.Unlock()

	// Resampler callbacks re-enter the mixer, so the lock must be
	// released before appending.
	r.Append(buf, presentationTime)
}

// UpdateSettings replaces the mixer settings and re-converges the
// tracks. A change to the default rate or channel count re-applies
// settings to every track; otherwise only non-reference tracks converge
// on the current output format.
func (m *Mixer) UpdateSettings(s Settings) error {
	s = s.normalized()

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.settings
	m.settings = s

	if s.invalidates(old) {
		m.log.Debugf("default settings invalidated, re-applying to %d tracks", m.trackCountLocked())
		for _, t := range m.tracks {
			if t == nil {
				continue
			}
			if t.channel == ReferenceChannel {
				t.resampler.SetSettings(s.Default)
			} else {
				t.resampler.SetSettings(convergedSettings(s.channelSettings(t.channel), m.outputFormatLocked()))
			}
		}
		return nil
	}

	return m.convergeTracksLocked()
}

// Settings returns a copy of the current settings.
func (m *Mixer) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.normalized()
}

// InputFormat returns the reference channel's input format, once known.
func (m *Mixer) InputFormat() (pcm.Format, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.trackAtLocked(ReferenceChannel); t != nil {
		return t.resampler.InputFormat()
	}
	return pcm.Format{}, false
}

// OutputFormat returns the resolved output format, once known.
func (m *Mixer) OutputFormat() (pcm.Format, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.outputFormatLocked()
	return f, f.IsValid()
}

// TrackCount returns the number of active tracks.
func (m *Mixer) TrackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackCountLocked()
}

func (m *Mixer) trackAtLocked(channel uint8) *track {
	if int(channel) >= len(m.tracks) {
		return nil
	}
	return m.tracks[channel]
}

func (m *Mixer) trackCountLocked() int {
	var n int
	for _, t := range m.tracks {
		if t != nil {
			n++
		}
	}
	return n
}

func (m *Mixer) mixingRequiredLocked() bool {
	return m.trackCountLocked() > 1
}

// outputFormatLocked resolves the output format from the reference
// track's resampler; the zero Format means "not yet known".
func (m *Mixer) outputFormatLocked() pcm.Format {
	t := m.trackAtLocked(ReferenceChannel)
	if t == nil {
		return pcm.Format{}
	}
	f, ok := t.resampler.OutputFormat()
	if !ok {
		return pcm.Format{}
	}
	return f
}

// trackLocked returns the channel's track, creating it on first use.
func (m *Mixer) trackLocked(channel uint8) *track {
	for len(m.tracks) <= int(channel) {
		m.tracks = append(m.tracks, nil)
	}
	if t := m.tracks[channel]; t != nil {
		return t
	}

	var settings = m.settings.channelSettings(channel)
	if channel != ReferenceChannel {
		settings = convergedSettings(settings, m.outputFormatLocked())
	}
	t := newTrack(channel, settings, &trackDelegate{mixer: m, channel: channel})
	m.tracks[channel] = t
	m.log.Debugf("track %s created for channel %d", t.id, channel)

	if channel == ReferenceChannel {
		// Other tracks may have locked their rate before the reference
		// format was knowable.
		_ = m.convergeTracksLocked()
	}
	m.rebuildGraphLocked()
	return t
}

// convergeTracksLocked re-applies converged settings to every
// non-reference track. It reports KindUnableToEnforceAudioFormat when
// mixing is required but no output format is resolvable; the preferred
// settings still apply as-is.
func (m *Mixer) convergeTracksLocked() error {
	output := m.outputFormatLocked()
	for _, t := range m.tracks {
		if t == nil || t.channel == ReferenceChannel {
			continue
		}
		t.resampler.SetSettings(convergedSettings(m.settings.channelSettings(t.channel), output))
	}
	if m.mixingRequiredLocked() && !output.IsValid() {
		return &Error{
			Kind:    KindUnableToEnforceAudioFormat,
			Channel: -1,
			Err:     fmt.Errorf("reference channel has no output format"),
		}
	}
	return nil
}

// captureAnchorLocked records the anchor from the first reference
// append. With the output rate still unknown the host instant is kept
// and the anchor completes once the format resolves.
func (m *Mixer) captureAnchorLocked(presentationTime time.Duration) {
	host := m.clk.Now()
	if f := m.outputFormatLocked(); f.IsValid() {
		m.sampleTime = clock.SamplesOf(presentationTime, f.SampleRate)
		m.anchor = clock.AtHostTime(host, m.sampleTime, f.SampleRate)
		m.anchored = true
		m.log.Debugf("anchor captured: sampleTime=%d rate=%d", m.sampleTime, f.SampleRate)
		return
	}
	m.anchorPending = true
	m.anchorHost = host
	m.anchorPTS = presentationTime
}

// completeAnchorLocked finishes a deferred capture with the now-known
// output rate.
func (m *Mixer) completeAnchorLocked(rate int) {
	if !m.anchorPending {
		return
	}
	m.anchorPending = false
	m.sampleTime = clock.SamplesOf(m.anchorPTS, rate)
	m.anchor = clock.AtHostTime(m.anchorHost, m.sampleTime, rate)
	m.anchored = true
	m.log.Debugf("anchor completed: sampleTime=%d rate=%d", m.sampleTime, rate)
}

func (m *Mixer) resetAnchorLocked() {
	m.sampleTime = 0
	m.anchor = clock.Time{}
	m.anchored = false
	m.anchorPending = false
}

// rebuildGraphLocked tears down any existing graph and, when mixing is
// required and the output format is known, constructs a fresh one. A
// fresh graph also means a fresh anchor. Both node references are
// cleared up front so a failed build never leaves a partial graph.
func (m *Mixer) rebuildGraphLocked() {
	hadGraph := m.graph != nil
	m.graph = nil

	if !m.mixingRequiredLocked() {
		if hadGraph {
			m.log.Debugf("graph torn down: mixing no longer required")
		}
		return
	}

	format := m.outputFormatLocked()
	if !format.IsValid() {
		// Retried on the next reference format change.
		m.log.Debugf("graph build deferred: output format unknown")
		return
	}

	m.resetAnchorLocked()

	g, err := m.buildGraphLocked(format)
	if err != nil {
		m.delegate.OnError(&Error{Kind: KindGraphBuildFailed, Channel: -1, Err: err})
		return
	}
	m.graph = g
	m.log.Debugf("graph built: %d tracks, %dHz %dch",
		m.trackCountLocked(), format.SampleRate, format.ChannelCount)
}

func (m *Mixer) buildGraphLocked(format pcm.Format) (*busGraph, error) {
	node := graph.NewMixerNode()
	if err := node.SetBusCount(graph.ScopeInput, len(m.tracks)); err != nil {
		return nil, fmt.Errorf("set bus count: %w", err)
	}

	for i, t := range m.tracks {
		if t == nil {
			continue
		}
		if err := node.SetFormat(format, i, graph.ScopeInput); err != nil {
			return nil, fmt.Errorf("bus %d format: %w", i, err)
		}
		if err := node.SetVolume(1, i, graph.ScopeInput); err != nil {
			return nil, fmt.Errorf("bus %d volume: %w", i, err)
		}
		tr := t
		pull := func(frames int, dst []float32) error {
			// Renders run under the mixer lock, so reading the track's
			// ring pointer here is safe. An absent or empty ring yields
			// silence and never blocks.
			if tr.ring == nil {
				for i := range dst[:frames*format.ChannelCount] {
					dst[i] = 0
				}
				return nil
			}
			return tr.ring.Render(frames, dst)
		}
		if err := node.BindRenderCallback(pull, i); err != nil {
			return nil, fmt.Errorf("bus %d callback: %w", i, err)
		}
	}

	if err := node.SetFormat(format, 0, graph.ScopeOutput); err != nil {
		return nil, fmt.Errorf("output format: %w", err)
	}
	if err := node.SetVolume(1, 0, graph.ScopeOutput); err != nil {
		return nil, fmt.Errorf("output volume: %w", err)
	}

	sink := graph.NewSinkNode()
	sink.SetFormat(format)
	if err := node.Connect(sink); err != nil {
		return nil, fmt.Errorf("connect sink: %w", err)
	}
	if err := node.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize mixer node: %w", err)
	}
	if err := sink.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize sink node: %w", err)
	}
	return &busGraph{node: node, sink: sink, format: format}, nil
}

// resamplerFormatChanged handles a track's output-format notification:
// recreate that track's ring buffer in the new format (stale-format data
// is discarded), rebuild the graph when the reference format drives
// mixing, and forward the notification when it describes the output.
func (m *Mixer) resamplerFormatChanged(channel uint8, format pcm.Format) {
	m.mu.Lock()
	t := m.trackAtLocked(channel)
	if t == nil {
		m.mu.Unlock()
		return
	}

	mixing := m.mixingRequiredLocked()
	if mixing && channel == ReferenceChannel {
		_ = m.convergeTracksLocked()
		m.rebuildGraphLocked()
	}
	t.ring = ring.NewBuffer(format, m.ringCapacity)
	if channel == ReferenceChannel {
		m.completeAnchorLocked(format.SampleRate)
	}
	forward := !mixing || channel == ReferenceChannel
	m.mu.Unlock()

	if forward {
		m.delegate.OnOutputFormat(format)
	}
}

// resamplerBufferProduced handles a track's converted buffer: forward it
// untouched with one active track, otherwise stage it in the track's
// ring buffer and, on the reference cadence, run one render pass sized
// to this buffer.
func (m *Mixer) resamplerBufferProduced(channel uint8, buf *pcm.Buffer, presentationTime time.Duration) {
	m.mu.Lock()

	if !m.mixingRequiredLocked() {
		m.mu.Unlock()
		when := clock.AtSampleTime(
			clock.SamplesOf(presentationTime, buf.Format.SampleRate),
			buf.Format.SampleRate,
		)
		m.delegate.OnOutputBuffer(buf, when)
		return
	}

	output := m.outputFormatLocked()
	if output.IsValid() && buf.Format.SampleRate != output.SampleRate {
		m.mu.Unlock()
		m.delegate.OnError(&Error{
			Kind:    KindInvalidSampleRate,
			Channel: int(channel),
			Err:     fmt.Errorf("buffer rate %d, output rate %d", buf.Format.SampleRate, output.SampleRate),
		})
		return
	}

	t := m.trackAtLocked(channel)
	if t == nil {
		m.mu.Unlock()
		return
	}
	if t.ring == nil {
		if f, ok := t.resampler.OutputFormat(); ok {
			t.ring = ring.NewBuffer(f, m.ringCapacity)
		}
	}
	if t.ring != nil {
		if err := t.ring.Append(buf, presentationTime); err != nil {
			m.mu.Unlock()
			m.delegate.OnError(&Error{Kind: KindUnableToProvideInputData, Channel: int(channel), Err: err})
			return
		}
	}

	if channel == ReferenceChannel {
		m.renderLocked(buf.Frames())
	}
	m.mu.Unlock()
}

// resamplerError propagates a track failure verbatim.
func (m *Mixer) resamplerError(channel uint8, err error) {
	m.delegate.OnError(err)
	m.log.Debugf("channel %d resampler error: %v", channel, err)
}

// renderLocked runs one pull pass over the graph, publishes the mixed
// block with its anchored timestamp, and advances the sample position by
// exactly the rendered frame count.
func (m *Mixer) renderLocked(frames int) {
	if m.graph == nil || !m.anchored {
		return
	}

	out, busErrs := m.graph.node.Render(frames, m.sampleTime)
	for _, be := range busErrs {
		m.delegate.OnError(&Error{Kind: KindUnableToProvideInputData, Channel: be.Bus, Err: be})
	}
	if out == nil {
		return
	}

	when := m.anchor.Extrapolate(m.sampleTime)
	m.delegate.OnOutputBuffer(out, when)
	m.sampleTime += int64(frames)
}
