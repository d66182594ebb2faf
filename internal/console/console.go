// Package console reads operator commands, one per line.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/entity"
	"github.com/coreman2200/fpga-matrixpanel/internal/writers"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	run   func(c *Console, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":       {"help", (*Console).help},
		"list":       {"list", (*Console).list},
		"status":     {"status [display]", (*Console).status},
		"brightness": {"brightness <display> <0..255>", (*Console).brightness},
		"power":      {"power <display> on|off", (*Console).power},
		"writer":     {"writer <display> <name> [preset] [key=value ...]", (*Console).writer},
		"light":      {"light <id> on|off [0..255]", (*Console).light},
		"recover":    {"recover <display>", (*Console).recover},
	}
}

type Console struct {
	reg *entity.Registry
	out io.Writer
}

func New(reg *entity.Registry, out io.Writer) *Console {
	return &Console{reg: reg, out: out}
}

// Exec runs one command line. Blank lines and # comments are ignored.
func (c *Console) Exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	if err := cmd.run(c, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: %s", cmd.usage)
		}
		return err
	}
	return nil
}

// Run executes lines from r until EOF or ctx is done. Command errors are
// printed and do not stop the loop.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if err := c.Exec(line); err != nil {
				fmt.Fprintln(c.out, "error:", err)
				log.Debug().Err(err).Str("line", line).Msg("console")
			}
		}
	}
}

func (c *Console) help(args []string) error {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(c.out, " ", commands[n].usage)
	}
	return nil
}

func (c *Console) list(args []string) error {
	for _, d := range c.reg.Displays() {
		fmt.Fprintf(c.out, "display %s\n", d)
	}
	for _, s := range c.reg.States() {
		fmt.Fprintf(c.out, "%s %s\n", s.Kind, s.ID)
	}
	return nil
}

func (c *Console) display(id string) (*display.Display, error) {
	return c.reg.Display(id)
}

func (c *Console) status(args []string) error {
	ds := c.reg.Displays()
	if len(args) == 1 {
		d, err := c.display(args[0])
		if err != nil {
			return err
		}
		ds = []*display.Display{d}
	}
	for _, d := range ds {
		s := d.Status()
		fmt.Fprintf(c.out, "%s sink=%s enabled=%t brightness=%d writer=%s frames=%d errors=%d healthy=%t stalls=%d recoveries=%d\n",
			s.ID, s.Sink, s.Enabled, s.Brightness, s.Writer, s.Frames, s.Errors, s.Healthy, s.Stalls, s.Recoveries)
	}
	return nil
}

func (c *Console) brightness(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	d, err := c.display(args[0])
	if err != nil {
		return err
	}
	v, err := strconv.Atoi(args[1])
	if err != nil {
		return errUsage
	}
	for _, n := range c.reg.Numbers() {
		if n.Display() == d {
			return n.Control(float64(v))
		}
	}
	return d.SetBrightness(v)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, errUsage
}

func (c *Console) power(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	d, err := c.display(args[0])
	if err != nil {
		return err
	}
	on, err := parseOnOff(args[1])
	if err != nil {
		return err
	}
	for _, s := range c.reg.Switches() {
		if s.Display() == d {
			s.WriteState(on)
			return nil
		}
	}
	d.SetState(on)
	return nil
}

func (c *Console) writer(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	d, err := c.display(args[0])
	if err != nil {
		return err
	}
	ref := config.WriterRef{Name: args[1]}
	for _, a := range args[2:] {
		if k, v, ok := strings.Cut(a, "="); ok {
			if ref.Params == nil {
				ref.Params = map[string]string{}
			}
			ref.Params[k] = v
		} else if ref.Preset == "" {
			ref.Preset = a
		} else {
			return errUsage
		}
	}
	w, err := writers.New(ref)
	if err != nil {
		return err
	}
	d.SetWriter(w)
	return nil
}

func (c *Console) light(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	l, err := c.reg.Light(args[0])
	if err != nil {
		return err
	}
	on, err := parseOnOff(args[1])
	if err != nil {
		return err
	}
	br := -1
	if len(args) == 3 {
		if br, err = strconv.Atoi(args[2]); err != nil {
			return errUsage
		}
	}
	return l.Set(on, br)
}

func (c *Console) recover(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	d, err := c.display(args[0])
	if err != nil {
		return err
	}
	wd := d.Watchdog()
	if wd == nil {
		return fmt.Errorf("%s has no watchdog", d.ID())
	}
	wd.Trigger()
	return nil
}
