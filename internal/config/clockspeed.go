package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// ErrUnknownClockSpeed is returned for spispeed values outside the enum.
var ErrUnknownClockSpeed = errors.New("unknown clock speed")

// ClockSpeed is one of the SPI clock rates the FPGA firmware accepts.
type ClockSpeed string

const (
	HZ8M  ClockSpeed = "HZ_8M"
	HZ10M ClockSpeed = "HZ_10M"
	HZ15M ClockSpeed = "HZ_15M"
	HZ16M ClockSpeed = "HZ_16M"
	HZ20M ClockSpeed = "HZ_20M"
	HZ26M ClockSpeed = "HZ_26M"
	HZ40M ClockSpeed = "HZ_40M"
	HZ80M ClockSpeed = "HZ_80M"

	// DefaultClockSpeed is used when spispeed is not configured.
	DefaultClockSpeed = HZ20M
)

var clockSpeeds = map[ClockSpeed]physic.Frequency{
	HZ8M:  8 * physic.MegaHertz,
	HZ10M: 10 * physic.MegaHertz,
	HZ15M: 15 * physic.MegaHertz,
	HZ16M: 16 * physic.MegaHertz,
	HZ20M: 20 * physic.MegaHertz,
	HZ26M: 26 * physic.MegaHertz,
	HZ40M: 40 * physic.MegaHertz,
	HZ80M: 80 * physic.MegaHertz,
}

// ClockSpeeds lists the accepted names, slowest first.
func ClockSpeeds() []ClockSpeed {
	out := make([]ClockSpeed, 0, len(clockSpeeds))
	for k := range clockSpeeds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return clockSpeeds[out[i]] < clockSpeeds[out[j]] })
	return out
}

// ParseClockSpeed normalises s (upper case, spaces to underscores) and
// checks it against the enum.
func ParseClockSpeed(s string) (ClockSpeed, error) {
	n := normalizeClockSpeed(s)
	if _, ok := clockSpeeds[n]; !ok {
		return "", fmt.Errorf("%w %q (valid: %v)", ErrUnknownClockSpeed, s, ClockSpeeds())
	}
	return n, nil
}

// Frequency returns the SPI clock for c, or the default clock when c is unset.
func (c ClockSpeed) Frequency() physic.Frequency {
	if f, ok := clockSpeeds[c]; ok {
		return f
	}
	return clockSpeeds[DefaultClockSpeed]
}

// MHz is the whole-megahertz value, as printed by DumpConfig.
func (c ClockSpeed) MHz() int64 {
	return int64(c.Frequency() / physic.MegaHertz)
}

func (c *ClockSpeed) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	// Membership is checked by Validate so the error carries its key path.
	*c = normalizeClockSpeed(s)
	return nil
}

func normalizeClockSpeed(s string) ClockSpeed {
	return ClockSpeed(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")))
}
