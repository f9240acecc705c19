package pcm

import (
	"reflect"
	"testing"
)

func TestBufferFrames(t *testing.T) {
	b := NewBuffer(Format{SampleRate: 48000, ChannelCount: 2}, 256)
	if b.Frames() != 256 {
		t.Errorf("expected 256 frames, got %d", b.Frames())
	}
	if len(b.Data) != 512 {
		t.Errorf("expected 512 samples, got %d", len(b.Data))
	}
}

func TestBufferAtSet(t *testing.T) {
	b := NewBuffer(Format{SampleRate: 48000, ChannelCount: 2}, 4)
	b.Set(1, 0, 0.5)
	b.Set(1, 1, -0.25)
	if b.At(1, 0) != 0.5 || b.At(1, 1) != -0.25 {
		t.Errorf("unexpected samples: %v", b.Data)
	}
	if b.At(0, 0) != 0 {
		t.Errorf("expected untouched frame to stay silent")
	}
}

func TestInt16Roundtrip(t *testing.T) {
	in := []int16{0, 16384, -16384, 32767, -32768}
	b := FromInt16(Format{SampleRate: 44100, ChannelCount: 1}, in)
	expected := []int16{0, 16384, -16384, 32767, -32768}
	if got := b.ToInt16(); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestToInt16Clamps(t *testing.T) {
	b := &Buffer{
		Format: Format{SampleRate: 48000, ChannelCount: 1},
		Data:   []float32{1.5, -1.5},
	}
	expected := []int16{32767, -32768}
	if got := b.ToInt16(); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestZero(t *testing.T) {
	b := &Buffer{
		Format: Format{SampleRate: 48000, ChannelCount: 1},
		Data:   []float32{0.1, 0.2, 0.3},
	}
	b.Zero()
	for i, s := range b.Data {
		if s != 0 {
			t.Fatalf("sample %d not zeroed: %f", i, s)
		}
	}
}

func TestClone(t *testing.T) {
	b := &Buffer{
		Format: Format{SampleRate: 48000, ChannelCount: 1},
		Data:   []float32{0.1, 0.2},
	}
	c := b.Clone()
	c.Data[0] = 0.9
	if b.Data[0] != 0.1 {
		t.Errorf("clone shares storage with source")
	}
}

func TestFormatIsValid(t *testing.T) {
	if (Format{}).IsValid() {
		t.Errorf("zero format must not be valid")
	}
	if !(Format{SampleRate: 48000, ChannelCount: 2}).IsValid() {
		t.Errorf("complete format must be valid")
	}
}
