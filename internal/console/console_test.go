package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/entity"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
	"github.com/coreman2200/fpga-matrixpanel/internal/transport"
)

type nullSink struct{}

func (nullSink) Begin(transport.Geometry) error { return nil }
func (nullSink) SetBrightness(uint8) error      { return nil }
func (nullSink) Clear() error                   { return nil }
func (nullSink) Send(*panel.FrameBuffer) error  { return nil }
func (nullSink) Close() error                   { return nil }
func (nullSink) String() string                 { return "null" }

func newConsole(t *testing.T) (*Console, *entity.Registry, *display.Display, *bytes.Buffer) {
	t.Helper()
	reg := entity.NewRegistry()
	d := display.New("wall", nil)
	d.SetPanelWidth(4)
	d.SetPanelHeight(2)
	d.SetInitialWatchdogIntervalUsec(1000)
	d.SetSink(nullSink{})
	require.NoError(t, reg.AddDisplay(d))
	_, err := reg.NewLight("lamp", "", "wall", 1, config.AlwaysOn)
	require.NoError(t, err)
	require.NoError(t, reg.Setup())
	out := &bytes.Buffer{}
	return New(reg, out), reg, d, out
}

func TestBrightnessAndPower(t *testing.T) {
	c, _, d, _ := newConsole(t)
	require.NoError(t, c.Exec("brightness wall 40"))
	assert.Equal(t, 40, d.Brightness())
	require.NoError(t, c.Exec("power wall off"))
	assert.False(t, d.Enabled())
	require.NoError(t, c.Exec("  # comment only"))
	require.NoError(t, c.Exec(""))
}

func TestWriterWithQuotedParams(t *testing.T) {
	c, _, d, _ := newConsole(t)
	require.NoError(t, c.Exec(`writer wall text "text=HELLO WORLD" color=#ff0000`))
	assert.Equal(t, "text", d.Writer())
	require.NoError(t, c.Exec("writer wall solid Blue"))
	assert.Equal(t, "solid", d.Writer())
	assert.Error(t, c.Exec("writer wall solid Blue Red"))
	assert.Error(t, c.Exec("writer wall plasma"))
}

func TestLight(t *testing.T) {
	c, reg, d, _ := newConsole(t)
	require.NoError(t, c.Exec("light lamp on 51"))
	assert.Equal(t, 51, d.Brightness())
	l, err := reg.Light("lamp")
	require.NoError(t, err)
	assert.Equal(t, 51, l.State().Brightness)
}

func TestErrors(t *testing.T) {
	c, _, _, _ := newConsole(t)
	err := c.Exec("brightness wall")
	require.Error(t, err)
	assert.Equal(t, "usage: brightness <display> <0..255>", err.Error())
	assert.ErrorIs(t, c.Exec("power nope on"), entity.ErrUnknownID)
	assert.Error(t, c.Exec("fly"))
	assert.Error(t, c.Exec(`power "wall`))
}

func TestRecoverAndStatus(t *testing.T) {
	c, _, d, out := newConsole(t)
	require.NoError(t, c.Exec("recover wall"))
	assert.EqualValues(t, 1, d.Watchdog().Recoveries())
	require.NoError(t, c.Exec("status wall"))
	assert.Contains(t, out.String(), "wall sink=null enabled=true")
	assert.Contains(t, out.String(), "recoveries=1")
}

func TestRunReportsErrorsAndContinues(t *testing.T) {
	c, _, d, out := newConsole(t)
	in := strings.NewReader("bogus\nbrightness wall 9\nhelp\n")
	require.NoError(t, c.Run(context.Background(), in))
	assert.Equal(t, 9, d.Brightness())
	assert.Contains(t, out.String(), `error: unknown command "bogus"`)
	assert.Contains(t, out.String(), "recover <display>")
}
