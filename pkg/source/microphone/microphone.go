// Package microphone captures system audio input through the miniaudio
// bindings and delivers it as interleaved float32 PCM blocks with
// monotonically advancing presentation times.
package microphone

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
	ilog "github.com/pion/audiograph/internal/logging"
	"github.com/pion/audiograph/pkg/pcm"
)

var logger = ilog.NewLogger("audiograph/source/microphone")

var ErrInvalidFormat = errors.New("microphone: invalid capture format")

var hostEndian binary.ByteOrder

func init() {
	// miniaudio emits samples in the host byte order.
	switch v := *(*uint16)(unsafe.Pointer(&([]byte{0x12, 0x34}[0]))); v {
	case 0x1234:
		hostEndian = binary.BigEndian
	case 0x3412:
		hostEndian = binary.LittleEndian
	default:
		panic(fmt.Sprintf("failed to determine host endianness: %x", v))
	}
}

// Handler consumes one captured block. It runs on the capture device's
// callback goroutine and should hand work off quickly.
type Handler func(buf *pcm.Buffer, presentationTime time.Duration)

// Capture owns one open capture device.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format pcm.Format

	mu     sync.Mutex
	frames int64
	closed bool
}

// Open starts capturing in the requested format and streams blocks to
// handler until Close.
func Open(format pcm.Format, handler Handler) (*Capture, error) {
	if !format.IsValid() {
		return nil, ErrInvalidFormat
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugf("%v", message)
	})
	if err != nil {
		return nil, err
	}

	c := &Capture{ctx: ctx, format: format}

	var config malgo.DeviceConfig
	config.DeviceType = malgo.Capture
	config.PerformanceProfile = malgo.LowLatency
	config.SampleRate = uint32(format.SampleRate)
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = uint32(format.ChannelCount)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, chunk []byte, frameCount uint32) {
			c.deliver(chunk, int(frameCount), handler)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, config, callbacks)
	if err != nil {
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
		return nil, err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
		return nil, err
	}

	c.device = device
	return c, nil
}

// Format returns the capture format.
func (c *Capture) Format() pcm.Format { return c.format }

func (c *Capture) deliver(chunk []byte, frameCount int, handler Handler) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	pts := time.Duration(c.frames) * time.Second / time.Duration(c.format.SampleRate)
	c.frames += int64(frameCount)
	c.mu.Unlock()

	buf := pcm.NewBuffer(c.format, frameCount)
	for i := range buf.Data {
		bits := hostEndian.Uint32(chunk[4*i:])
		buf.Data[i] = math.Float32frombits(bits)
	}
	handler(buf, pts)
}

// Close stops the device and releases the context. Blocks already in
// flight may still reach the handler.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var err error
	if serr := c.device.Stop(); serr != nil {
		err = serr
	}
	c.device.Uninit()
	if uerr := c.ctx.Uninit(); uerr != nil && err == nil {
		err = uerr
	}
	c.ctx.Free()
	return err
}
