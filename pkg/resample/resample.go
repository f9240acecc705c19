// Package resample converts a stream of arbitrary sample rate and channel
// layout into a settled output format, notifying a delegate whenever the
// output format changes and as each converted buffer becomes available.
package resample

import (
	"errors"
	"math"
	"sync"
	"time"

	ilog "github.com/pion/audiograph/internal/logging"
	"github.com/pion/audiograph/pkg/pcm"
	"github.com/pion/logging"
)

var (
	ErrInvalidChannelMap = errors.New("resample: channel map refers to a channel the input does not have")
)

// Settings selects the output format and channel treatment.
// A zero SampleRate or ChannelCount follows the input.
type Settings struct {
	SampleRate   int
	ChannelCount int
	// Downmix averages every input channel into each output channel.
	Downmix bool
	// ChannelMap assigns input channels to output channels
	// (ChannelMap[out] = in). It takes precedence over Downmix.
	ChannelMap []int
}

// Delegate receives the resampler's notifications. Callbacks are invoked
// synchronously on the goroutine calling Append.
type Delegate interface {
	OnFormatChanged(format pcm.Format)
	OnBufferProduced(buf *pcm.Buffer, presentationTime time.Duration)
	OnError(err error)
}

// Resampler is a streaming converter for one channel. Append must be
// called from a single goroutine; SetSettings may be called from another.
type Resampler struct {
	log      logging.LeveledLogger
	delegate Delegate

	mu           sync.Mutex
	settings     Settings
	inputFormat  pcm.Format
	outputFormat pcm.Format

	// Interpolation state, touched only on the Append goroutine.
	pos     float64
	last    []float32
	hasLast bool
}

// New creates a resampler delivering to delegate.
func New(settings Settings, delegate Delegate) *Resampler {
	return &Resampler{
		log:      ilog.NewLogger("audiograph/resample"),
		delegate: delegate,
		settings: settings,
	}
}

// Settings returns the current settings.
func (r *Resampler) Settings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// SetSettings replaces the settings. The output format is re-derived on
// the next Append, which is also when any format-change notification
// fires.
func (r *Resampler) SetSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
}

// InputFormat returns the most recently appended format.
func (r *Resampler) InputFormat() (pcm.Format, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputFormat, r.inputFormat.IsValid()
}

// OutputFormat returns the settled output format, once known.
func (r *Resampler) OutputFormat() (pcm.Format, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputFormat, r.outputFormat.IsValid()
}

// Append converts buf and delivers the result to the delegate. A format
// change is reported before the first buffer in the new format.
func (r *Resampler) Append(buf *pcm.Buffer, presentationTime time.Duration) {
	if !buf.Format.IsValid() || buf.Frames() == 0 {
		return
	}

	r.mu.Lock()
	r.inputFormat = buf.Format
	settings := r.settings
	derived := deriveFormat(settings, buf.Format)
	changed := derived != r.outputFormat
	r.outputFormat = derived
	r.mu.Unlock()

	if changed {
		r.pos = 0
		r.last = make([]float32, derived.ChannelCount)
		r.hasLast = false
		r.log.Debugf("output format changed: %dHz %dch", derived.SampleRate, derived.ChannelCount)
		r.delegate.OnFormatChanged(derived)
	}

	remapped, err := remap(buf, derived.ChannelCount, settings)
	if err != nil {
		r.delegate.OnError(err)
		return
	}

	out := r.convertRate(remapped, derived)
	if out.Frames() == 0 {
		return
	}
	r.delegate.OnBufferProduced(out, presentationTime)
}

// deriveFormat resolves the output format from settings, falling back to
// the input for unset fields.
func deriveFormat(s Settings, in pcm.Format) pcm.Format {
	out := pcm.Format{SampleRate: s.SampleRate, ChannelCount: s.ChannelCount}
	if out.SampleRate == 0 {
		out.SampleRate = in.SampleRate
	}
	if out.ChannelCount == 0 {
		if s.ChannelMap != nil {
			out.ChannelCount = len(s.ChannelMap)
		} else {
			out.ChannelCount = in.ChannelCount
		}
	}
	return out
}

// remap converts buf's channel layout to channels output channels at the
// input rate.
func remap(buf *pcm.Buffer, channels int, s Settings) (*pcm.Buffer, error) {
	inCh := buf.Format.ChannelCount
	if inCh == channels && s.ChannelMap == nil && !s.Downmix {
		return buf, nil
	}

	if s.ChannelMap != nil {
		for _, in := range s.ChannelMap {
			if in < 0 || in >= inCh {
				return nil, ErrInvalidChannelMap
			}
		}
	}

	frames := buf.Frames()
	out := pcm.NewBuffer(pcm.Format{SampleRate: buf.Format.SampleRate, ChannelCount: channels}, frames)
	switch {
	case s.ChannelMap != nil:
		for i := 0; i < frames; i++ {
			for c, in := range s.ChannelMap {
				if c >= channels {
					break
				}
				out.Set(i, c, buf.At(i, in))
			}
		}
	case s.Downmix || channels < inCh:
		for i := 0; i < frames; i++ {
			var sum float32
			for c := 0; c < inCh; c++ {
				sum += buf.At(i, c)
			}
			mean := sum / float32(inCh)
			for c := 0; c < channels; c++ {
				out.Set(i, c, mean)
			}
		}
	default:
		// Upmix: copy what exists, leave the rest silent.
		for i := 0; i < frames; i++ {
			for c := 0; c < inCh; c++ {
				out.Set(i, c, buf.At(i, c))
			}
		}
	}
	return out, nil
}

// convertRate linearly interpolates src (already in the output channel
// layout) to the output rate, carrying the fractional position and the
// final frame across chunk boundaries.
func (r *Resampler) convertRate(src *pcm.Buffer, format pcm.Format) *pcm.Buffer {
	inRate := src.Format.SampleRate
	if inRate == format.SampleRate {
		out := src.Clone()
		out.Format = format
		return out
	}

	ch := format.ChannelCount
	inFrames := src.Frames()
	ratio := float64(inRate) / float64(format.SampleRate)
	estimated := int(float64(inFrames)/ratio) + 2

	data := make([]float32, 0, estimated*ch)
	pos := r.pos
	for {
		i := int(math.Floor(pos))
		if i >= inFrames-1 {
			break
		}
		frac := float32(pos - math.Floor(pos))
		for c := 0; c < ch; c++ {
			var s0 float32
			if i < 0 {
				if r.hasLast {
					s0 = r.last[c]
				} else {
					s0 = src.At(0, c)
				}
			} else {
				s0 = src.At(i, c)
			}
			s1 := src.At(i+1, c)
			data = append(data, s0+(s1-s0)*frac)
		}
		pos += ratio
	}
	r.pos = pos - float64(inFrames)
	for c := 0; c < ch; c++ {
		r.last[c] = src.At(inFrames-1, c)
	}
	r.hasLast = true

	return &pcm.Buffer{Format: format, Data: data}
}
