package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	diag "github.com/coreman2200/fpga-matrixpanel/internal/diagnostics"
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

func newServer(t *testing.T) (*Server, *entity.Registry, *httptest.Server) {
	t.Helper()
	reg := entity.NewRegistry()
	d := display.New("wall", nil)
	d.SetPanelWidth(2)
	d.SetPanelHeight(1)
	d.SetInitialWatchdog(false)
	d.SetSink(nullSink{})
	require.NoError(t, reg.AddDisplay(d))
	require.NoError(t, reg.Setup())

	s := New(reg, diag.NewHub(8))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, reg, ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHealth(t *testing.T) {
	_, _, ts := newServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var h health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.True(t, h.Healthy)
	require.Len(t, h.Displays, 1)
	assert.Equal(t, "wall", h.Displays[0].ID)
}

func TestControlChangesDisplayAndPersists(t *testing.T) {
	s, reg, ts := newServer(t)
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	cfg, err := config.Parse([]byte("matrix_display:\n  - id: wall\n    width: 2\n    height: 1\n"))
	require.NoError(t, err)
	s.Config, s.ConfigPath = cfg, path

	c := dial(t, ts, "/control")
	require.NoError(t, c.WriteJSON(map[string]any{"display": "wall", "brightness": 300, "power": false, "writer": "solid", "preset": "Green"}))
	var st display.Status
	require.NoError(t, c.ReadJSON(&st))
	assert.Equal(t, 255, st.Brightness)
	assert.False(t, st.Enabled)
	assert.Equal(t, "solid", st.Writer)

	d, err := reg.Display("wall")
	require.NoError(t, err)
	assert.Equal(t, 255, d.Brightness())

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 255, saved.Displays[0].InitialBrightness())
	require.NotNil(t, saved.Displays[0].Writer)
	assert.Equal(t, "Green", saved.Displays[0].Writer.Preset)
}

func TestControlUnknownDisplayRaisesDiagnostic(t *testing.T) {
	s, _, ts := newServer(t)
	dc := dial(t, ts, "/diag")
	_, ok := s.ApplyControl(Control{Display: "nope"})
	require.False(t, ok)

	dc.SetReadDeadline(time.Now().Add(2 * time.Second))
	var d diag.Diagnostic
	require.NoError(t, dc.ReadJSON(&d))
	assert.Equal(t, "CONTROL.UNKNOWN_DISPLAY", d.Code)
	assert.Equal(t, "nope", d.Evidence["display"])
}

func TestFramesBroadcast(t *testing.T) {
	s, reg, ts := newServer(t)
	d, err := reg.Display("wall")
	require.NoError(t, err)
	d.DrawPixel(0, 0, panel.RGB{R: 7})

	c := dial(t, ts, "/ws")
	require.Eventually(t, func() bool { return s.clientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.BroadcastFrames()

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	require.NoError(t, c.ReadJSON(&f))
	assert.Equal(t, "wall", f.Display)
	assert.Equal(t, 2, f.W)
	assert.Equal(t, []byte{7, 0, 0, 0, 0, 0}, f.RGB)
}

func TestControlDoesNotWaitForFrameWriters(t *testing.T) {
	s, _, _ := newServer(t)
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	cfg, err := config.Parse([]byte("matrix_display:\n  - id: wall\n    width: 2\n    height: 1\n"))
	require.NoError(t, err)
	s.Config, s.ConfigPath = cfg, path

	// A broadcast stuck on a slow client holds the frame write lock.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	done := make(chan display.Status, 1)
	go func() {
		v := 12
		st, _ := s.ApplyControl(Control{Display: "wall", Brightness: &v})
		done <- st
	}()
	select {
	case st := <-done:
		assert.Equal(t, 12, st.Brightness)
	case <-time.After(time.Second):
		t.Fatal("control blocked behind frame broadcast")
	}
	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, saved.Displays[0].InitialBrightness())
}
