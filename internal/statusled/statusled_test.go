package statusled

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

func TestNewRejectsBadOrder(t *testing.T) {
	buf := bytes.Buffer{}
	_, err := New(spitest.NewRecordRaw(&buf), "RGX")
	assert.Error(t, err)
}

func TestSetWritesOnlyOnChange(t *testing.T) {
	buf := bytes.Buffer{}
	l, err := New(spitest.NewRecordRaw(&buf), "grb")
	require.NoError(t, err)
	assert.Equal(t, "nrzled{recordraw}", l.String())

	require.NoError(t, l.Set(Healthy))
	n := buf.Len()
	assert.Greater(t, n, 0)
	require.NoError(t, l.Set(Healthy))
	assert.Equal(t, n, buf.Len())
	require.NoError(t, l.Set(Failed))
	assert.Greater(t, buf.Len(), n)
}

func TestRawOrder(t *testing.T) {
	c := panel.RGB{R: 1, G: 2, B: 3}
	assert.Equal(t, []byte{1, 2, 3}, (&LED{order: "GRB"}).raw(c))
	assert.Equal(t, []byte{2, 1, 3}, (&LED{order: "RGB"}).raw(c))
	assert.Equal(t, []byte{2, 3, 1}, (&LED{order: "BGR"}).raw(c))
}

func TestColor(t *testing.T) {
	errs := map[string]uint64{}
	ok := display.Status{ID: "a", Enabled: true, Healthy: true}
	assert.Equal(t, Healthy, Color([]display.Status{ok}, errs))

	off := ok
	off.Enabled = false
	assert.Equal(t, Disabled, Color([]display.Status{off}, errs))

	bad := ok
	bad.Errors = 3
	assert.Equal(t, Errors, Color([]display.Status{bad}, errs))
	// Same count on the next poll is not new.
	assert.Equal(t, Healthy, Color([]display.Status{bad}, errs))

	dead := ok
	dead.Healthy = false
	assert.Equal(t, Failed, Color([]display.Status{ok, dead}, errs))
}

func TestColorTable(t *testing.T) {
	a := display.Status{ID: "a", Enabled: true, Healthy: true}
	b := display.Status{ID: "b", Enabled: true, Healthy: true}
	aOff, bOff := a, b
	aOff.Enabled, bOff.Enabled = false, false

	tests := []struct {
		name     string
		statuses []display.Status
		want     panel.RGB
	}{
		{"all enabled", []display.Status{a, b}, Healthy},
		{"one of two disabled", []display.Status{a, bOff}, Healthy},
		{"all disabled", []display.Status{aOff, bOff}, Disabled},
		{"no displays", nil, Healthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Color(tt.statuses, map[string]uint64{}))
		})
	}
}

func TestColorCountsErrorsBehindAFailedDisplay(t *testing.T) {
	errs := map[string]uint64{}
	dead := display.Status{ID: "a", Enabled: true}
	b := display.Status{ID: "b", Enabled: true, Healthy: true, Errors: 5}

	assert.Equal(t, Failed, Color([]display.Status{dead, b}, errs))
	assert.EqualValues(t, 5, errs["b"])

	dead.Healthy = true
	assert.Equal(t, Healthy, Color([]display.Status{dead, b}, errs), "unchanged error count is not new")
}
