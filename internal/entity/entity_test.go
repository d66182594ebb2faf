package entity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
	"github.com/coreman2200/fpga-matrixpanel/internal/transport"
)

type nullSink struct {
	mu         sync.Mutex
	brightness []uint8
}

func (s *nullSink) Begin(transport.Geometry) error { return nil }
func (s *nullSink) Clear() error                   { return nil }
func (s *nullSink) Send(*panel.FrameBuffer) error  { return nil }
func (s *nullSink) Close() error                   { return nil }
func (s *nullSink) String() string                 { return "null" }

func (s *nullSink) SetBrightness(l uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brightness = append(s.brightness, l)
	return nil
}

func (s *nullSink) last() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness[len(s.brightness)-1]
}

func newRegistry(t *testing.T) (*Registry, *display.Display, *nullSink) {
	t.Helper()
	r := NewRegistry()
	d := display.New("matrix_display_0", nil)
	d.SetPanelWidth(4)
	d.SetPanelHeight(2)
	d.SetInitialWatchdog(false)
	s := &nullSink{}
	d.SetSink(s)
	require.NoError(t, r.AddDisplay(d))
	return r, d, s
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) add(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) of(id string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, s := range r.states {
		if s.ID == id {
			out = append(out, s)
		}
	}
	return out
}

func TestLevelGamma(t *testing.T) {
	assert.Equal(t, 0, Level(false, 1, 2.8))
	assert.Equal(t, 255, Level(true, 1, 2.8))
	assert.Equal(t, 0, Level(true, 0, 2.8))
	// 0.5^2.8*255 = 36.6
	assert.Equal(t, 37, Level(true, 0.5, 2.8))
	assert.Equal(t, 128, Level(true, 0.5, 1))
	assert.Equal(t, 255, Level(true, 2, 1))
}

func TestUnknownDisplay(t *testing.T) {
	r, _, _ := newRegistry(t)
	_, err := r.NewLight("l", "", "nope", 2.8, config.AlwaysOn)
	assert.ErrorIs(t, err, ErrUnknownID)
	_, err = r.Switch("nope")
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestDuplicateIDs(t *testing.T) {
	r, d, _ := newRegistry(t)
	assert.Error(t, r.AddDisplay(d))
	_, err := r.NewBrightness("matrix_display_0", "", "matrix_display_0")
	assert.Error(t, err)
}

func TestLightWritesGammaBrightness(t *testing.T) {
	r, _, s := newRegistry(t)
	rec := &recorder{}
	r.Subscribe(rec.add)
	l, err := r.NewLight("light", "Matrix", "matrix_display_0", 2.8, config.RestoreDefaultOn)
	require.NoError(t, err)
	require.NoError(t, r.Setup())
	assert.Equal(t, uint8(255), s.last())
	assert.True(t, l.State().On)

	require.NoError(t, l.Set(true, 128))
	assert.Equal(t, uint8(Level(true, 128.0/255, 2.8)), s.last())

	require.NoError(t, l.Set(false, -1))
	assert.Equal(t, uint8(0), s.last())
	assert.Equal(t, 128, l.State().Brightness)

	got := rec.of("light")
	require.Len(t, got, 3)
	assert.False(t, got[2].On)
}

func TestSwitchFanOutAndRestore(t *testing.T) {
	r, d, _ := newRegistry(t)
	rec := &recorder{}
	r.Subscribe(rec.add)
	a, err := r.NewPowerSwitch("a", "", "matrix_display_0", config.AlwaysOff)
	require.NoError(t, err)
	b, err := r.NewPowerSwitch("b", "", "matrix_display_0", config.AlwaysOff)
	require.NoError(t, err)
	require.NoError(t, r.Setup())
	assert.False(t, d.Enabled())

	a.WriteState(true)
	assert.True(t, d.Enabled())
	assert.True(t, a.State().On)
	assert.True(t, b.State().On)
	assert.True(t, rec.of("b")[len(rec.of("b"))-1].On)
}

func TestSwitchAlwaysOnEnablesAtSetup(t *testing.T) {
	r, d, _ := newRegistry(t)
	_, err := r.NewPowerSwitch("a", "", "matrix_display_0", config.AlwaysOn)
	require.NoError(t, err)
	require.NoError(t, r.Setup())
	assert.True(t, d.Enabled())
}

func TestNumberFanOut(t *testing.T) {
	r, d, s := newRegistry(t)
	a, err := r.NewBrightness("a", "", "matrix_display_0")
	require.NoError(t, err)
	b, err := r.NewBrightness("b", "", "matrix_display_0")
	require.NoError(t, err)
	require.NoError(t, r.Setup())
	assert.Equal(t, float64(config.DefaultBrightness), a.State().Value)

	require.NoError(t, a.Control(42.7))
	assert.Equal(t, uint8(42), s.last())
	assert.Equal(t, 42, d.Brightness())
	assert.Equal(t, 42.7, b.State().Value)

	require.NoError(t, b.Control(900))
	assert.Equal(t, uint8(255), s.last())
	assert.Equal(t, 255.0, a.State().Value)
}

func TestStates(t *testing.T) {
	r, _, _ := newRegistry(t)
	_, err := r.NewLight("l", "", "matrix_display_0", 1, config.AlwaysOn)
	require.NoError(t, err)
	_, err = r.NewPowerSwitch("s", "", "matrix_display_0", config.AlwaysOn)
	require.NoError(t, err)
	_, err = r.NewBrightness("n", "", "matrix_display_0")
	require.NoError(t, err)
	require.NoError(t, r.Setup())
	st := r.States()
	require.Len(t, st, 3)
	assert.Equal(t, KindLight, st[0].Kind)
	assert.Equal(t, KindSwitch, st[1].Kind)
	assert.Equal(t, KindNumber, st[2].Kind)
	require.NoError(t, r.Close())
}

func TestPublishReachesEveryListener(t *testing.T) {
	r, _, _ := newRegistry(t)
	s, err := r.NewPowerSwitch("s", "", "matrix_display_0", config.AlwaysOff)
	require.NoError(t, err)

	var a, b recorder
	r.Subscribe(a.add)
	r.Subscribe(func(st State) {
		b.add(st)
		// Subscribing from a listener must not deadlock or affect this round.
		r.Subscribe(func(State) {})
	})

	s.WriteState(true)
	require.Len(t, a.of("s"), 1)
	require.Len(t, b.of("s"), 1)
	assert.True(t, a.of("s")[0].On)

	s.WriteState(false)
	assert.Len(t, a.of("s"), 2)
	assert.Len(t, b.of("s"), 2)
}
