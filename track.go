package audiograph

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/audiograph/pkg/pcm"
	"github.com/pion/audiograph/pkg/resample"
	"github.com/pion/audiograph/pkg/ring"
)

// track groups one channel's resampler with its ring buffer. Tracks are
// created lazily on first append and live until the mixer is closed; the
// ring buffer stays nil until the resampler reports an output format and
// is replaced whenever that format changes.
type track struct {
	id        string
	channel   uint8
	resampler *resample.Resampler
	ring      *ring.Buffer
}

func newTrack(channel uint8, settings resample.Settings, delegate resample.Delegate) *track {
	t := &track{
		id:      uuid.NewString(),
		channel: channel,
	}
	t.resampler = resample.New(settings, delegate)
	return t
}

// trackDelegate routes one resampler's notifications back into the mixer
// with the channel attached. It stands in for a back-reference from the
// resampler to its owner.
type trackDelegate struct {
	mixer   *Mixer
	channel uint8
}

func (d *trackDelegate) OnFormatChanged(format pcm.Format) {
	d.mixer.resamplerFormatChanged(d.channel, format)
}

func (d *trackDelegate) OnBufferProduced(buf *pcm.Buffer, presentationTime time.Duration) {
	d.mixer.resamplerBufferProduced(d.channel, buf, presentationTime)
}

func (d *trackDelegate) OnError(err error) {
	d.mixer.resamplerError(d.channel, err)
}
