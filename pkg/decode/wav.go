package decode

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pion/audiograph/pkg/pcm"
)

type wavReader struct {
	dec    *wav.Decoder
	format pcm.Format
	scale  float32
}

// NewWAV decodes RIFF/WAVE integer PCM from rs.
func NewWAV(rs io.ReadSeeker) (Reader, error) {
	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrInvalidFile)
	}
	if dec.BitDepth == 0 || dec.BitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFile, dec.BitDepth)
	}
	return &wavReader{
		dec: dec,
		format: pcm.Format{
			SampleRate:   int(dec.SampleRate),
			ChannelCount: int(dec.NumChans),
		},
		scale: float32(int64(1) << (dec.BitDepth - 1)),
	}, nil
}

func (r *wavReader) Format() pcm.Format { return r.format }

func (r *wavReader) Read(frames int) (*pcm.Buffer, error) {
	in := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: r.format.ChannelCount,
			SampleRate:  r.format.SampleRate,
		},
		Data: make([]int, frames*r.format.ChannelCount),
	}
	n, err := r.dec.PCMBuffer(in)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}

	out := pcm.NewBuffer(r.format, n/r.format.ChannelCount)
	for i := 0; i < n; i++ {
		out.Data[i] = float32(in.Data[i]) / r.scale
	}
	return out, nil
}

// WAVWriter encodes float32 PCM blocks to a 16-bit RIFF/WAVE stream.
type WAVWriter struct {
	enc    *wav.Encoder
	format pcm.Format
}

func NewWAVWriter(ws io.WriteSeeker, format pcm.Format) *WAVWriter {
	return &WAVWriter{
		enc:    wav.NewEncoder(ws, format.SampleRate, 16, format.ChannelCount, 1),
		format: format,
	}
}

func (w *WAVWriter) Write(buf *pcm.Buffer) error {
	if buf.Format != w.format {
		return fmt.Errorf("wav: buffer format %+v does not match writer format %+v", buf.Format, w.format)
	}
	samples := buf.ToInt16()
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	return w.enc.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: w.format.ChannelCount,
			SampleRate:  w.format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	})
}

// Close finalizes the RIFF headers.
func (w *WAVWriter) Close() error { return w.enc.Close() }
