// Package pcm implements the engine's audio buffer model: interleaved
// float32 samples tagged with a sample rate and channel count.
package pcm

// Format describes the shape of a PCM stream.
type Format struct {
	SampleRate   int
	ChannelCount int
}

// IsValid reports whether both fields are set.
func (f Format) IsValid() bool {
	return f.SampleRate > 0 && f.ChannelCount > 0
}

// Buffer is a finite block of interleaved float32 samples.
type Buffer struct {
	Format Format
	Data   []float32
}

// NewBuffer allocates a zeroed buffer holding frames frames of f.
func NewBuffer(f Format, frames int) *Buffer {
	return &Buffer{
		Format: f,
		Data:   make([]float32, frames*f.ChannelCount),
	}
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b.Format.ChannelCount == 0 {
		return 0
	}
	return len(b.Data) / b.Format.ChannelCount
}

// At returns the sample for frame i on channel ch.
func (b *Buffer) At(i, ch int) float32 {
	return b.Data[i*b.Format.ChannelCount+ch]
}

// Set stores the sample for frame i on channel ch.
func (b *Buffer) Set(i, ch int, s float32) {
	b.Data[i*b.Format.ChannelCount+ch] = s
}

// Zero overwrites every sample with silence.
func (b *Buffer) Zero() {
	for i := range b.Data {
		b.Data[i] = 0
	}
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{
		Format: b.Format,
		Data:   make([]float32, len(b.Data)),
	}
	copy(out.Data, b.Data)
	return out
}

// FromInt16 converts interleaved 16-bit PCM into a float32 buffer,
// normalizing to [-1, 1).
func FromInt16(f Format, samples []int16) *Buffer {
	out := &Buffer{
		Format: f,
		Data:   make([]float32, len(samples)),
	}
	for i, s := range samples {
		out.Data[i] = float32(s) / 0x8000
	}
	return out
}

// ToInt16 converts the buffer back to interleaved 16-bit PCM, clamping
// out-of-range samples.
func (b *Buffer) ToInt16() []int16 {
	out := make([]int16, len(b.Data))
	for i, s := range b.Data {
		scaled := s * 0x8000
		switch {
		case scaled > 0x7fff:
			out[i] = 0x7fff
		case scaled < -0x8000:
			out[i] = -0x8000
		default:
			out[i] = int16(scaled)
		}
	}
	return out
}
