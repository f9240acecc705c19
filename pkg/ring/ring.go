// Package ring implements a fixed-format circular buffer for timed PCM.
// A producer appends whole buffers; a single consumer renders exact frame
// counts back out. Rendering never blocks: when fewer frames are pending
// than requested the remainder is zero-filled.
package ring

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/audiograph/pkg/pcm"
)

// DefaultCapacity is the ring capacity in frames when none is given,
// one second of audio at 48kHz.
const DefaultCapacity = 48000

var (
	ErrFormatMismatch = errors.New("ring: buffer format does not match ring format")
	ErrShortDst       = errors.New("ring: destination slice too small for requested frames")
)

// Buffer is a circular store of interleaved samples in one fixed format.
// Critical sections perform only bounded copies, so a producer never
// stalls the consumer for an unbounded duration.
type Buffer struct {
	mu       sync.Mutex
	format   pcm.Format
	data     []float32
	readPos  int           // frame index of the oldest pending frame
	pending  int           // frames available to render
	capacity int           // capacity in frames
	head     time.Duration // presentation time just past the newest frame
}

// NewBuffer creates a ring for the given format holding capacity frames.
// capacity <= 0 selects DefaultCapacity.
func NewBuffer(format pcm.Format, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		format:   format,
		data:     make([]float32, capacity*format.ChannelCount),
		capacity: capacity,
	}
}

// Format returns the ring's fixed format.
func (b *Buffer) Format() pcm.Format {
	return b.format
}

// Append copies buf into the ring. When the ring is full the oldest
// frames are overwritten. presentationTime locates buf's first frame on
// the producer's timeline; only the head position is retained.
func (b *Buffer) Append(buf *pcm.Buffer, presentationTime time.Duration) error {
	if buf.Format != b.format {
		return ErrFormatMismatch
	}

	frames := buf.Frames()
	ch := b.format.ChannelCount
	src := buf.Data

	b.mu.Lock()
	defer b.mu.Unlock()

	if frames >= b.capacity {
		// Larger than the whole ring: keep only the newest frames.
		src = src[(frames-b.capacity)*ch:]
		frames = b.capacity
	}

	writePos := (b.readPos + b.pending) % b.capacity
	tail := b.capacity - writePos
	if frames <= tail {
		copy(b.data[writePos*ch:], src[:frames*ch])
	} else {
		copy(b.data[writePos*ch:], src[:tail*ch])
		copy(b.data, src[tail*ch:frames*ch])
	}

	b.pending += frames
	if b.pending > b.capacity {
		// Overwrote the oldest data; advance the read position past it.
		overrun := b.pending - b.capacity
		b.readPos = (b.readPos + overrun) % b.capacity
		b.pending = b.capacity
	}
	b.head = presentationTime + time.Duration(buf.Frames())*time.Second/time.Duration(b.format.SampleRate)
	return nil
}

// Render copies exactly frames frames into dst, advancing the read
// position. Frames beyond what is pending are zero-filled; Render never
// waits for the producer.
func (b *Buffer) Render(frames int, dst []float32) error {
	ch := b.format.ChannelCount
	if len(dst) < frames*ch {
		return ErrShortDst
	}
	dst = dst[:frames*ch]

	b.mu.Lock()
	defer b.mu.Unlock()

	n := frames
	if n > b.pending {
		n = b.pending
	}
	tail := b.capacity - b.readPos
	if n <= tail {
		copy(dst, b.data[b.readPos*ch:(b.readPos+n)*ch])
	} else {
		copy(dst, b.data[b.readPos*ch:])
		copy(dst[tail*ch:], b.data[:(n-tail)*ch])
	}
	b.readPos = (b.readPos + n) % b.capacity
	b.pending -= n

	for i := n * ch; i < frames*ch; i++ {
		dst[i] = 0
	}
	return nil
}

// Pending returns the number of frames available to render.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Head returns the presentation time just past the newest appended frame.
func (b *Buffer) Head() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head
}
