package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirrored from the display component schema.
const (
	DefaultChainLength          = 1
	DefaultBrightness           = 128
	DefaultUpdateInterval       = 16 * time.Millisecond
	DefaultWatchdogIntervalUsec = 1000000
	DefaultGammaCorrect         = 2.8
	DefaultTopicPrefix          = "matrix"
	DefaultWebAddr              = ":8080"
	DefaultColorOrder           = "GRB"

	DefaultCEPin          = 15
	DefaultCLKPin         = 14
	DefaultMOSIPin        = 2
	DefaultResetStatusPin = 27

	// Wire limits of the panel controller's config command: geometry is
	// sent as 16-bit values and the chain length as one byte.
	MaxPanelSize   = 0xFFFF
	MaxChainLength = 0xFF

	// Library is fetched for the generated firmware unless use_custom_library is set.
	Library = "https://github.com/w531t4/ESP32-FPGA-MatrixPanel#v2.0.0"
)

// WriterRef names a drawing callback and its arguments.
type WriterRef struct {
	Name   string            `yaml:"name"`
	Preset string            `yaml:"preset,omitempty"`
	Params map[string]string `yaml:"params,omitempty"`
}

func (w *WriterRef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		w.Name = n.Value
		return nil
	}
	type plain WriterRef
	return n.Decode((*plain)(w))
}

// Display is one FPGA matrix display (the PanelConfig).
type Display struct {
	ID                   string     `yaml:"id"`
	Width                int        `yaml:"width"`
	Height               int        `yaml:"height"`
	ChainLength          *int       `yaml:"chain_length,omitempty"`
	Brightness           *int       `yaml:"brightness,omitempty"`
	UpdateInterval       *Duration  `yaml:"update_interval,omitempty"`
	CEPin                Pin        `yaml:"SPI_CE_pin,omitempty"`
	CLKPin               Pin        `yaml:"SPI_CLK_pin,omitempty"`
	MOSIPin              Pin        `yaml:"SPI_MOSI_pin,omitempty"`
	ResetStatusPin       Pin        `yaml:"FPGA_RESETSTATUS_pin,omitempty"`
	ResetPin             Pin        `yaml:"FPGA_RESET_pin,omitempty"`
	SPISpeed             ClockSpeed `yaml:"spispeed,omitempty"`
	UseWatchdog          *bool      `yaml:"use_watchdog,omitempty"`
	WatchdogIntervalUsec *int       `yaml:"watchdog_interval_usec,omitempty"`
	UseCustomLibrary     bool       `yaml:"use_custom_library,omitempty"`
	Writer               *WriterRef `yaml:"writer,omitempty"`
	AutoClearEnabled     *bool      `yaml:"auto_clear_enabled,omitempty"`
	Rotation             int        `yaml:"rotation,omitempty"`
	SPIPort              string     `yaml:"spi_port,omitempty"`
}

// RestoreMode selects the initial state of switches and lights.
type RestoreMode string

const (
	AlwaysOff         RestoreMode = "ALWAYS_OFF"
	AlwaysOn          RestoreMode = "ALWAYS_ON"
	RestoreDefaultOff RestoreMode = "RESTORE_DEFAULT_OFF"
	RestoreDefaultOn  RestoreMode = "RESTORE_DEFAULT_ON"
)

// InitialState reports the state an entity starts in when nothing is restored.
func (r RestoreMode) InitialState() bool {
	return r == AlwaysOn || r == RestoreDefaultOn
}

type Light struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	MatrixID     string      `yaml:"matrix_id"`
	GammaCorrect *float64    `yaml:"gamma_correct,omitempty"`
	RestoreMode  RestoreMode `yaml:"restore_mode,omitempty"`
}

type Switch struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	MatrixID    string      `yaml:"matrix_id"`
	RestoreMode RestoreMode `yaml:"restore_mode,omitempty"`
}

type Number struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	MatrixID string `yaml:"matrix_id"`
}

type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

type Web struct {
	Addr string `yaml:"addr,omitempty"`
}

type StatusLED struct {
	SPIPort    string `yaml:"spi_port,omitempty"`
	ColorOrder string `yaml:"color_order,omitempty"`
}

type Config struct {
	Displays  []Display  `yaml:"matrix_display"`
	Lights    []Light    `yaml:"light,omitempty"`
	Switches  []Switch   `yaml:"switch,omitempty"`
	Numbers   []Number   `yaml:"number,omitempty"`
	MQTT      *MQTT      `yaml:"mqtt,omitempty"`
	Web       *Web       `yaml:"web,omitempty"`
	StatusLED *StatusLED `yaml:"status_led,omitempty"`
}

// Load reads, defaults and validates the config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Display returns the display with the given id.
func (c *Config) Display(id string) (*Display, bool) {
	for i := range c.Displays {
		if c.Displays[i].ID == id {
			return &c.Displays[i], true
		}
	}
	return nil, false
}
