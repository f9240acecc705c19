package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pion/audiograph/pkg/pcm"
)

var testFormat = pcm.Format{SampleRate: 48000, ChannelCount: 1}

func constSource(v float32) RenderFunc {
	return func(frames int, dst []float32) error {
		for i := range dst {
			dst[i] = v
		}
		return nil
	}
}

func newTestNode(t *testing.T, sources ...RenderFunc) *MixerNode {
	t.Helper()
	n := NewMixerNode()
	if err := n.SetBusCount(ScopeInput, len(sources)); err != nil {
		t.Fatal(err)
	}
	for i, src := range sources {
		if err := n.SetFormat(testFormat, i, ScopeInput); err != nil {
			t.Fatal(err)
		}
		if err := n.SetVolume(1, i, ScopeInput); err != nil {
			t.Fatal(err)
		}
		if err := n.BindRenderCallback(src, i); err != nil {
			t.Fatal(err)
		}
	}
	if err := n.SetFormat(testFormat, 0, ScopeOutput); err != nil {
		t.Fatal(err)
	}
	sink := NewSinkNode()
	sink.SetFormat(testFormat)
	if err := n.Connect(sink); err != nil {
		t.Fatal(err)
	}
	if err := n.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := sink.Initialize(); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRenderSumsBuses(t *testing.T) {
	n := newTestNode(t, constSource(0.25), constSource(0.5))

	out, busErrs := n.Render(4, 0)
	if len(busErrs) != 0 {
		t.Fatalf("unexpected bus errors: %v", busErrs)
	}
	if !reflect.DeepEqual(out.Data, []float32{0.75, 0.75, 0.75, 0.75}) {
		t.Errorf("unexpected mix: %v", out.Data)
	}
}

func TestRenderAppliesVolume(t *testing.T) {
	n := newTestNode(t, constSource(0.5), constSource(0.5))
	if err := n.SetVolume(0.5, 1, ScopeInput); err != nil {
		t.Fatal(err)
	}

	out, _ := n.Render(2, 0)
	if !reflect.DeepEqual(out.Data, []float32{0.75, 0.75}) {
		t.Errorf("unexpected mix with per-bus gain: %v", out.Data)
	}
}

func TestDisabledBusContributesSilence(t *testing.T) {
	n := NewMixerNode()
	if err := n.SetBusCount(ScopeInput, 3); err != nil {
		t.Fatal(err)
	}
	// Only bus 1 gets a callback; 0 and 2 stay disabled.
	if err := n.SetFormat(testFormat, 1, ScopeInput); err != nil {
		t.Fatal(err)
	}
	if err := n.BindRenderCallback(constSource(0.5), 1); err != nil {
		t.Fatal(err)
	}
	if err := n.SetFormat(testFormat, 0, ScopeOutput); err != nil {
		t.Fatal(err)
	}
	sink := NewSinkNode()
	sink.SetFormat(testFormat)
	if err := n.Connect(sink); err != nil {
		t.Fatal(err)
	}
	if err := n.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := sink.Initialize(); err != nil {
		t.Fatal(err)
	}

	if n.Enabled(0) || !n.Enabled(1) || n.Enabled(2) {
		t.Fatalf("unexpected bus enablement")
	}
	out, busErrs := n.Render(2, 0)
	if len(busErrs) != 0 {
		t.Fatalf("unexpected bus errors: %v", busErrs)
	}
	if !reflect.DeepEqual(out.Data, []float32{0.5, 0.5}) {
		t.Errorf("unexpected mix: %v", out.Data)
	}
}

func TestBusErrorDoesNotHaltRender(t *testing.T) {
	pullErr := errors.New("no input data")
	failing := RenderFunc(func(frames int, dst []float32) error {
		return pullErr
	})
	n := newTestNode(t, failing, constSource(0.5))

	out, busErrs := n.Render(2, 0)
	if len(busErrs) != 1 {
		t.Fatalf("expected one bus error, got %v", busErrs)
	}
	if busErrs[0].Bus != 0 || !errors.Is(busErrs[0], pullErr) {
		t.Errorf("unexpected bus error: %+v", busErrs[0])
	}
	if !reflect.DeepEqual(out.Data, []float32{0.5, 0.5}) {
		t.Errorf("healthy bus must still render: %v", out.Data)
	}
}

func TestMinimumBusWidth(t *testing.T) {
	n := NewMixerNode()
	if err := n.SetBusCount(ScopeInput, 1); err != nil {
		t.Fatal(err)
	}
	if got := n.BusCount(ScopeInput); got != MinInputBusCount {
		t.Errorf("expected %d buses, got %d", MinInputBusCount, got)
	}
}

func TestInitializeRejectsFormatMismatch(t *testing.T) {
	n := NewMixerNode()
	if err := n.SetFormat(pcm.Format{SampleRate: 44100, ChannelCount: 1}, 0, ScopeInput); err != nil {
		t.Fatal(err)
	}
	if err := n.BindRenderCallback(constSource(0), 0); err != nil {
		t.Fatal(err)
	}
	if err := n.SetFormat(testFormat, 0, ScopeOutput); err != nil {
		t.Fatal(err)
	}
	if err := n.Connect(NewSinkNode()); err != nil {
		t.Fatal(err)
	}
	if err := n.Initialize(); !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("expected ErrFormatMismatch, got %v", err)
	}
}

func TestInitializeRequiresSink(t *testing.T) {
	n := NewMixerNode()
	if err := n.SetFormat(testFormat, 0, ScopeOutput); err != nil {
		t.Fatal(err)
	}
	if err := n.Initialize(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestRenderBeforeInitialize(t *testing.T) {
	n := NewMixerNode()
	out, busErrs := n.Render(4, 0)
	if out != nil || len(busErrs) != 1 || !errors.Is(busErrs[0], ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v %v", out, busErrs)
	}
}

func TestSinkRejectsWrongFormat(t *testing.T) {
	sink := NewSinkNode()
	sink.SetFormat(testFormat)
	if err := sink.Initialize(); err != nil {
		t.Fatal(err)
	}
	bad := pcm.NewBuffer(pcm.Format{SampleRate: 44100, ChannelCount: 1}, 4)
	if _, err := sink.Render(bad); !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("expected ErrFormatMismatch, got %v", err)
	}
}
