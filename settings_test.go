package audiograph

import (
	"testing"

	"github.com/pion/audiograph/pkg/pcm"
	"github.com/pion/audiograph/pkg/resample"
	"github.com/stretchr/testify/assert"
)

func TestNormalizedPinsReferenceChannel(t *testing.T) {
	s := Settings{
		Default: resample.Settings{SampleRate: 48000, ChannelCount: 2},
		Channels: map[uint8]resample.Settings{
			0: {SampleRate: 8000, ChannelCount: 1},
			3: {Downmix: true},
		},
	}

	n := s.normalized()
	// Any explicit entry for the reference channel is overridden.
	assert.Equal(t, s.Default, n.Channels[ReferenceChannel])
	assert.Equal(t, resample.Settings{Downmix: true}, n.Channels[3])
	// The input map is left untouched.
	assert.Equal(t, resample.Settings{SampleRate: 8000, ChannelCount: 1}, s.Channels[0])
}

func TestChannelSettingsFallsBackToDefault(t *testing.T) {
	s := Settings{
		Default:  resample.Settings{SampleRate: 44100},
		Channels: map[uint8]resample.Settings{2: {Downmix: true}},
	}
	assert.Equal(t, resample.Settings{Downmix: true}, s.channelSettings(2))
	assert.Equal(t, s.Default, s.channelSettings(7))
}

func TestInvalidates(t *testing.T) {
	base := Settings{Default: resample.Settings{SampleRate: 48000, ChannelCount: 2}}

	cases := []struct {
		name string
		next Settings
		want bool
	}{
		{"identical", Settings{Default: resample.Settings{SampleRate: 48000, ChannelCount: 2}}, false},
		{"rate change", Settings{Default: resample.Settings{SampleRate: 44100, ChannelCount: 2}}, true},
		{"channel change", Settings{Default: resample.Settings{SampleRate: 48000, ChannelCount: 1}}, true},
		{"per-channel only", Settings{
			Default:  resample.Settings{SampleRate: 48000, ChannelCount: 2},
			Channels: map[uint8]resample.Settings{1: {Downmix: true}},
		}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.next.invalidates(base))
		})
	}
}

func TestConvergedSettings(t *testing.T) {
	preferred := resample.Settings{
		SampleRate:   22050,
		ChannelCount: 1,
		Downmix:      true,
		ChannelMap:   []int{1},
	}

	// Known output format pins rate and width, keeps routing prefs.
	got := convergedSettings(preferred, pcm.Format{SampleRate: 48000, ChannelCount: 2})
	assert.Equal(t, resample.Settings{
		SampleRate:   48000,
		ChannelCount: 2,
		Downmix:      true,
		ChannelMap:   []int{1},
	}, got)

	// Unknown format leaves the preference as-is.
	assert.Equal(t, preferred, convergedSettings(preferred, pcm.Format{}))
}
