package decode

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
	"github.com/pion/audiograph/pkg/pcm"
)

type oggReader struct {
	dec    *oggvorbis.Reader
	format pcm.Format
}

// NewOgg decodes Vorbis audio in an Ogg container from r.
func NewOgg(r io.Reader) (Reader, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return &oggReader{
		dec: dec,
		format: pcm.Format{
			SampleRate:   dec.SampleRate(),
			ChannelCount: dec.Channels(),
		},
	}, nil
}

func (r *oggReader) Format() pcm.Format { return r.format }

func (r *oggReader) Read(frames int) (*pcm.Buffer, error) {
	out := pcm.NewBuffer(r.format, frames)
	// oggvorbis reads samples, not frames, and may return short counts
	// mid-stream; fill the block before handing it over.
	filled := 0
	for filled < len(out.Data) {
		n, err := r.dec.Read(out.Data[filled:])
		filled += n
		if err != nil {
			if err == io.EOF && filled > 0 {
				err = nil
			}
			if filled == 0 {
				return nil, err
			}
			out.Data = out.Data[:filled-filled%r.format.ChannelCount]
			return out, err
		}
	}
	return out, nil
}
