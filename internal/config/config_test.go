package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

const minimal = `
matrix_display:
  - id: matrix
    width: 64
    height: 32
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)
	require.Len(t, c.Displays, 1)

	d := c.Displays[0]
	assert.Equal(t, "matrix", d.ID)
	assert.Equal(t, 1, d.Chain())
	assert.Equal(t, 128, d.InitialBrightness())
	assert.Equal(t, 16*time.Millisecond, d.Interval())
	assert.Equal(t, P(15), d.CEPin)
	assert.Equal(t, P(14), d.CLKPin)
	assert.Equal(t, P(2), d.MOSIPin)
	assert.Equal(t, P(27), d.ResetStatusPin)
	assert.False(t, d.ResetPin.Set)
	assert.True(t, d.Watchdog())
	assert.Equal(t, time.Second, d.WatchdogInterval())
	assert.False(t, d.UseCustomLibrary)
	assert.True(t, d.AutoClear())
	assert.Equal(t, ClockSpeed(""), d.SPISpeed)
	assert.Equal(t, 64, d.LogicalWidth())
}

func TestParseFullDisplay(t *testing.T) {
	c, err := Parse([]byte(`
matrix_display:
  - id: wall
    width: 32
    height: 16
    chain_length: 3
    brightness: 0
    update_interval: 40
    SPI_CE_pin: GPIO5
    SPI_CLK_pin: "18"
    SPI_MOSI_pin: {number: 23, inverted: true}
    FPGA_RESET_pin: 4
    spispeed: hz 40m
    use_watchdog: false
    watchdog_interval_usec: 250000
    use_custom_library: true
    writer: {name: solid, preset: Red}
    rotation: 180
light:
  - name: Wall
    matrix_id: wall
switch:
  - matrix_id: wall
    restore_mode: ALWAYS_ON
number:
  - matrix_id: wall
`))
	require.NoError(t, err)
	d := c.Displays[0]
	assert.Equal(t, 3, d.Chain())
	assert.Equal(t, 96, d.LogicalWidth())
	assert.Equal(t, 0, d.InitialBrightness())
	assert.Equal(t, 40*time.Millisecond, d.Interval())
	assert.Equal(t, 5, d.CEPin.Number)
	assert.Equal(t, 18, d.CLKPin.Number)
	assert.Equal(t, Pin{Number: 23, Inverted: true, Set: true}, d.MOSIPin)
	assert.Equal(t, P(4), d.ResetPin)
	assert.False(t, d.ResetStatusPin.Set, "reset pin replaces the status pin default")
	assert.Equal(t, HZ40M, d.SPISpeed)
	assert.Equal(t, 40*physic.MegaHertz, d.SPISpeed.Frequency())
	assert.False(t, d.Watchdog())
	assert.Equal(t, 250*time.Millisecond, d.WatchdogInterval())
	assert.True(t, d.UseCustomLibrary)
	require.NotNil(t, d.Writer)
	assert.Equal(t, "solid", d.Writer.Name)
	assert.Equal(t, "Red", d.Writer.Preset)
	assert.Equal(t, 180, d.Rotation)

	require.Len(t, c.Lights, 1)
	assert.Equal(t, "matrix_light_0", c.Lights[0].ID)
	assert.Equal(t, 2.8, c.Lights[0].Gamma())
	assert.Equal(t, AlwaysOn, c.Switches[0].RestoreMode)
	assert.Equal(t, "matrix_brightness_0", c.Numbers[0].ID)
}

func TestBrightnessRange(t *testing.T) {
	for _, b := range []string{"-1", "256", "300"} {
		_, err := Parse([]byte(minimal + "    brightness: " + b + "\n"))
		require.Error(t, err, b)
		assert.Contains(t, err.Error(), "matrix_display[0].brightness: must be in 0..255")
	}
	for _, b := range []string{"0", "255"} {
		_, err := Parse([]byte(minimal + "    brightness: " + b + "\n"))
		assert.NoError(t, err, b)
	}
}

func TestDimensionsMustBePositive(t *testing.T) {
	_, err := Parse([]byte(`
matrix_display:
  - width: 0
    height: -2
    chain_length: 0
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "matrix_display[0].width")
	assert.Contains(t, msg, "matrix_display[0].height")
	assert.Contains(t, msg, "matrix_display[0].chain_length")
}

func TestGeometryFitsTheWire(t *testing.T) {
	_, err := Parse([]byte(`
matrix_display:
  - width: 65536
    height: 32
    chain_length: 256
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix_display[0].width: must be at most 65535, got 65536")
	assert.Contains(t, err.Error(), "matrix_display[0].chain_length: must be at most 255, got 256")

	_, err = Parse([]byte(minimal + "    chain_length: 255\n"))
	assert.NoError(t, err)
}

func TestMissingDimensions(t *testing.T) {
	_, err := Parse([]byte("matrix_display:\n  - id: m\n"))
	require.Error(t, err)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "matrix_display[0].width", fe.Path)
}

func TestClockSpeedParsing(t *testing.T) {
	cs, err := ParseClockSpeed("hz_8m")
	require.NoError(t, err)
	assert.Equal(t, HZ8M, cs)

	cs, err = ParseClockSpeed(" Hz 80M ")
	require.NoError(t, err)
	assert.Equal(t, HZ80M, cs)
	assert.EqualValues(t, 80, cs.MHz())

	_, err = ParseClockSpeed("HZ_12M")
	assert.True(t, errors.Is(err, ErrUnknownClockSpeed))

	_, err = Parse([]byte(minimal + "    spispeed: HZ_1M\n"))
	assert.True(t, errors.Is(err, ErrUnknownClockSpeed))

	assert.Equal(t, 20*physic.MegaHertz, ClockSpeed("").Frequency())
	assert.Equal(t, []ClockSpeed{HZ8M, HZ10M, HZ15M, HZ16M, HZ20M, HZ26M, HZ40M, HZ80M}, ClockSpeeds())
}

func TestUnknownClockSpeedIsAFieldError(t *testing.T) {
	_, err := Parse([]byte(minimal + "    spispeed: HZ_1M\n    brightness: 300\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownClockSpeed))

	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok, "violations are joined")
	var paths []string
	for _, e := range joined.Unwrap() {
		var fe *FieldError
		if errors.As(e, &fe) {
			paths = append(paths, fe.Path)
		}
	}
	assert.ElementsMatch(t, []string{"matrix_display[0].brightness", "matrix_display[0].spispeed"}, paths)
	assert.Contains(t, err.Error(), `matrix_display[0].spispeed: unknown clock speed "HZ_1M"`)
}

func TestPinConflicts(t *testing.T) {
	_, err := Parse([]byte(minimal + "    SPI_CLK_pin: 15\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GPIO15 is already used by SPI_CE_pin")

	_, err = Parse([]byte(minimal + "    SPI_MOSI_pin: 40\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside 0..39")

	_, err = Parse([]byte(minimal + "    FPGA_RESET_pin: 4\n    FPGA_RESETSTATUS_pin: 26\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be combined")

	_, err = Parse([]byte(minimal + "    SPI_CE_pin: bogus\n"))
	assert.Error(t, err)
}

func TestEntityReferences(t *testing.T) {
	_, err := Parse([]byte(minimal + `
light:
  - id: l
    matrix_id: nope
switch:
  - id: s
number:
  - id: matrix
    matrix_id: matrix
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `light[0].matrix_id: unknown display "nope"`)
	assert.Contains(t, msg, "switch[0].matrix_id: is required")
	assert.Contains(t, msg, `number[0].id: duplicate id "matrix"`)
}

func TestUpdateIntervalForms(t *testing.T) {
	c, err := Parse([]byte(minimal + "    update_interval: 1s\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.Displays[0].Interval())

	_, err = Parse([]byte(minimal + "    update_interval: 0ms\n"))
	assert.Error(t, err)

	_, err = Parse([]byte(minimal + "    update_interval: soon\n"))
	assert.Error(t, err)
}

func TestSaveRoundTripKeepsSchemaKeys(t *testing.T) {
	c, err := Parse([]byte(minimal + "    spispeed: HZ_26M\n"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "matrix.yaml")
	require.NoError(t, Save(path, c))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "SPI_CE_pin: 15")
	assert.Contains(t, string(raw), "spispeed: HZ_26M")
	assert.Contains(t, string(raw), "update_interval: 16ms")

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.Displays[0].CEPin, back.Displays[0].CEPin)
	assert.Equal(t, c.Displays[0].Interval(), back.Displays[0].Interval())
	assert.Equal(t, HZ26M, back.Displays[0].SPISpeed)
}
