package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/pion/audiograph/pkg/pcm"
)

// go-mp3 always emits 16-bit little-endian stereo.
const mp3Channels = 2

type mp3Reader struct {
	dec    *gomp3.Decoder
	format pcm.Format
	buf    []byte
}

// NewMP3 decodes MPEG-1 layer III audio from r.
func NewMP3(r io.Reader) (Reader, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return &mp3Reader{
		dec: dec,
		format: pcm.Format{
			SampleRate:   dec.SampleRate(),
			ChannelCount: mp3Channels,
		},
	}, nil
}

func (r *mp3Reader) Format() pcm.Format { return r.format }

func (r *mp3Reader) Read(frames int) (*pcm.Buffer, error) {
	want := frames * mp3Channels * 2
	if cap(r.buf) < want {
		r.buf = make([]byte, want)
	}
	r.buf = r.buf[:want]

	n, err := io.ReadFull(r.dec, r.buf)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}

	samples := n / 2
	out := pcm.NewBuffer(r.format, samples/mp3Channels)
	for i := 0; i < samples; i++ {
		v := int16(binary.LittleEndian.Uint16(r.buf[2*i:]))
		out.Data[i] = float32(v) / 32768
	}
	return out, err
}
