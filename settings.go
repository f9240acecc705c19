package audiograph

import (
	"github.com/pion/audiograph/pkg/pcm"
	"github.com/pion/audiograph/pkg/resample"
)

// Settings configures the mixer's per-channel resampling. Default drives
// the reference channel and is the fallback for channels without an
// explicit entry. For non-reference channels only the Downmix and
// ChannelMap preferences are honored; sample rate and channel count
// always converge on the reference channel's resolved output format.
type Settings struct {
	Default  resample.Settings
	Channels map[uint8]resample.Settings
}

// normalized returns a copy whose Channels map carries the reference
// channel entry equal to Default.
func (s Settings) normalized() Settings {
	out := Settings{Default: s.Default, Channels: make(map[uint8]resample.Settings, len(s.Channels)+1)}
	for ch, cs := range s.Channels {
		out.Channels[ch] = cs
	}
	out.Channels[ReferenceChannel] = s.Default
	return out
}

// channelSettings returns the preferred settings for a channel.
func (s Settings) channelSettings(ch uint8) resample.Settings {
	if cs, ok := s.Channels[ch]; ok {
		return cs
	}
	return s.Default
}

// invalidates reports whether switching from old to s changes the
// default output shape, which requires re-applying settings everywhere.
func (s Settings) invalidates(old Settings) bool {
	return s.Default.SampleRate != old.Default.SampleRate ||
		s.Default.ChannelCount != old.Default.ChannelCount
}

// convergedSettings forces a non-reference channel's rate and channel
// count onto the resolved output format while keeping its own downmix
// and channel-map preference. With the format still unknown the
// preferred settings apply as-is.
func convergedSettings(preferred resample.Settings, output pcm.Format) resample.Settings {
	if !output.IsValid() {
		return preferred
	}
	preferred.SampleRate = output.SampleRate
	preferred.ChannelCount = output.ChannelCount
	return preferred
}
