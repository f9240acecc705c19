package ring

import (
	"reflect"
	"testing"
	"time"

	"github.com/pion/audiograph/pkg/pcm"
)

var testFormat = pcm.Format{SampleRate: 48000, ChannelCount: 2}

func buf(samples ...float32) *pcm.Buffer {
	return &pcm.Buffer{Format: testFormat, Data: samples}
}

func TestAppendRenderRoundtrip(t *testing.T) {
	b := NewBuffer(testFormat, 8)
	if err := b.Append(buf(1, 2, 3, 4, 5, 6), 0); err != nil {
		t.Fatal(err)
	}
	if b.Pending() != 3 {
		t.Fatalf("expected 3 pending frames, got %d", b.Pending())
	}

	dst := make([]float32, 6)
	if err := b.Render(3, dst); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dst, []float32{1, 2, 3, 4, 5, 6}) {
		t.Errorf("unexpected rendered data: %v", dst)
	}
	if b.Pending() != 0 {
		t.Errorf("expected empty ring, got %d pending", b.Pending())
	}
}

func TestRenderUnderrunZeroFills(t *testing.T) {
	b := NewBuffer(testFormat, 8)
	if err := b.Append(buf(1, 2), 0); err != nil {
		t.Fatal(err)
	}

	dst := []float32{9, 9, 9, 9, 9, 9}
	if err := b.Render(3, dst); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dst, []float32{1, 2, 0, 0, 0, 0}) {
		t.Errorf("expected zero-filled tail, got %v", dst)
	}
}

func TestRenderEmptyRing(t *testing.T) {
	b := NewBuffer(testFormat, 8)
	dst := []float32{9, 9, 9, 9}
	if err := b.Render(2, dst); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dst, []float32{0, 0, 0, 0}) {
		t.Errorf("expected silence, got %v", dst)
	}
}

func TestWrapAround(t *testing.T) {
	b := NewBuffer(testFormat, 4)
	if err := b.Append(buf(1, 1, 2, 2, 3, 3), 0); err != nil {
		t.Fatal(err)
	}
	dst := make([]float32, 4)
	if err := b.Render(2, dst); err != nil {
		t.Fatal(err)
	}
	// Read position now mid-ring; the next append wraps.
	if err := b.Append(buf(4, 4, 5, 5), 0); err != nil {
		t.Fatal(err)
	}
	dst = make([]float32, 6)
	if err := b.Render(3, dst); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dst, []float32{3, 3, 4, 4, 5, 5}) {
		t.Errorf("unexpected data after wrap: %v", dst)
	}
}

func TestOverwriteOldest(t *testing.T) {
	b := NewBuffer(testFormat, 2)
	if err := b.Append(buf(1, 1, 2, 2, 3, 3), 0); err != nil {
		t.Fatal(err)
	}
	if b.Pending() != 2 {
		t.Fatalf("expected capacity-capped pending, got %d", b.Pending())
	}
	dst := make([]float32, 4)
	if err := b.Render(2, dst); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dst, []float32{2, 2, 3, 3}) {
		t.Errorf("expected newest frames to survive, got %v", dst)
	}
}

func TestAppendFormatMismatch(t *testing.T) {
	b := NewBuffer(testFormat, 8)
	bad := &pcm.Buffer{Format: pcm.Format{SampleRate: 44100, ChannelCount: 2}, Data: []float32{0, 0}}
	if err := b.Append(bad, 0); err != ErrFormatMismatch {
		t.Errorf("expected ErrFormatMismatch, got %v", err)
	}
}

func TestRenderShortDst(t *testing.T) {
	b := NewBuffer(testFormat, 8)
	if err := b.Render(4, make([]float32, 2)); err != ErrShortDst {
		t.Errorf("expected ErrShortDst, got %v", err)
	}
}

func TestHeadAdvances(t *testing.T) {
	b := NewBuffer(testFormat, 48000)
	chunk := pcm.NewBuffer(testFormat, 4800) // 100ms
	if err := b.Append(chunk, time.Second); err != nil {
		t.Fatal(err)
	}
	if b.Head() != time.Second+100*time.Millisecond {
		t.Errorf("expected head at 1.1s, got %v", b.Head())
	}
}
