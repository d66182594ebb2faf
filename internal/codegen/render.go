package codegen

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"strconv"
	"text/template"
	"time"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
)

const modulePath = "github.com/coreman2200/fpga-matrixpanel"

var sourceTmpl = template.Must(template.New("setup").Parse(`// Code generated by matrixgen. DO NOT EDIT.

package {{.Package}}

import (
{{- range .StdImports}}
	"{{.}}"
{{- end}}
{{if .StdImports}}
{{end}}
{{- range .Imports}}
	"{{.}}"
{{- end}}
)
{{if .Libraries}}
// Panel firmware:
{{- range .Libraries}}
//	{{.}}
{{- end}}
{{end}}
// SetupMatrix registers the configured displays and entities with reg.
func SetupMatrix(reg *entity.Registry, port transport.PortOpener) error {
{{- range .Blocks}}
	{
{{- range .}}
		{{.}}
{{- end}}
	}
{{- end}}
	return nil
}
`))

type source struct {
	Package    string
	StdImports []string
	Imports    []string
	Libraries  []string
	Blocks     [][]string
}

// Render writes p as gofmt-formatted Go source of SetupMatrix.
func (p *Plan) Render(w io.Writer) error {
	src := source{Package: p.Package, Libraries: p.Libraries}
	if src.Package == "" {
		src.Package = DefaultPackage
	}
	used := map[string]bool{"entity": true, "transport": true}
	for _, o := range p.Displays {
		b, err := displayBlock(o, used)
		if err != nil {
			return fmt.Errorf("%s: %w", o.ID, err)
		}
		src.Blocks = append(src.Blocks, b)
	}
	for _, o := range p.Entities {
		b, err := entityBlock(o, used)
		if err != nil {
			return fmt.Errorf("%s %s: %w", o.Kind, o.ID, err)
		}
		src.Blocks = append(src.Blocks, b)
	}
	for _, pkg := range []string{"time", "config", "display", "entity", "transport", "writers"} {
		if !used[pkg] {
			continue
		}
		if pkg == "time" {
			src.StdImports = append(src.StdImports, pkg)
		} else {
			src.Imports = append(src.Imports, modulePath+"/internal/"+pkg)
		}
	}

	var buf bytes.Buffer
	if err := sourceTmpl.Execute(&buf, src); err != nil {
		return err
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("format generated source: %w", err)
	}
	_, err = w.Write(out)
	return err
}

const checkErr = "if err != nil {\nreturn err\n}"

func displayBlock(o Object, used map[string]bool) ([]string, error) {
	used["display"] = true
	lines := []string{fmt.Sprintf("d := display.New(%s, port)", strconv.Quote(o.ID))}
	for _, c := range o.Calls {
		var s string
		switch c.Method {
		case "set_panel_width", "set_panel_height", "set_chain_length", "set_initial_brightness",
			"set_initial_watchdog_interval_usec", "set_initial_watchdog", "set_auto_clear",
			"set_spi_port", "set_spispeed":
			s = fmt.Sprintf("d.%s(%s)", goName(c.Method), literal(c.Args[0]))
		case "set_pins":
			used["config"] = true
			s = fmt.Sprintf("d.SetPins(%s)", literal(c.Args[0]))
		case "set_update_interval":
			v, err := arg[time.Duration](c, 0)
			if err != nil {
				return nil, err
			}
			used["time"] = true
			s = "d.SetUpdateInterval(" + durationLiteral(v) + ")"
		case "set_rotation":
			s = fmt.Sprintf("if err := d.SetRotation(%s); err != nil {\nreturn err\n}", literal(c.Args[0]))
		case "register_display":
			s = "if err := reg.AddDisplay(d); err != nil {\nreturn err\n}"
		case "set_writer":
			used["config"], used["writers"] = true, true
			s = fmt.Sprintf("w, err := writers.New(%s)\n%s\nd.SetWriter(w)", literal(c.Args[0]), checkErr)
		default:
			return nil, fmt.Errorf("%w %q", ErrUnknownCall, c.Method)
		}
		lines = append(lines, s)
	}
	return lines, nil
}

func entityBlock(o Object, used map[string]bool) ([]string, error) {
	p := pending{gamma: -1}
	var lines []string
	for _, c := range o.Calls {
		var err error
		switch c.Method {
		case "set_name":
			p.name, err = arg[string](c, 0)
		case "set_display":
			p.matrix, err = arg[string](c, 0)
		case "set_gamma_correct":
			p.gamma, err = arg[float64](c, 0)
		case "set_restore_mode":
			p.restore, err = arg[config.RestoreMode](c, 0)
		case "register_light":
			used["config"] = true
			lines = append(lines, fmt.Sprintf("if _, err := reg.NewLight(%q, %q, %q, %s, config.RestoreMode(%q)); err != nil {\nreturn err\n}",
				o.ID, p.name, p.matrix, strconv.FormatFloat(p.gamma, 'g', -1, 64), p.restore))
		case "register_power_switch":
			used["config"] = true
			lines = append(lines, fmt.Sprintf("if _, err := reg.NewPowerSwitch(%q, %q, %q, config.RestoreMode(%q)); err != nil {\nreturn err\n}",
				o.ID, p.name, p.matrix, p.restore))
		case "register_brightness":
			lines = append(lines, fmt.Sprintf("if _, err := reg.NewBrightness(%q, %q, %q); err != nil {\nreturn err\n}",
				o.ID, p.name, p.matrix))
		default:
			err = fmt.Errorf("%w %q", ErrUnknownCall, c.Method)
		}
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

// goName maps set_panel_width to SetPanelWidth.
func goName(method string) string {
	var b bytes.Buffer
	up := true
	for _, r := range method {
		if r == '_' {
			up = true
			continue
		}
		if up && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		up = false
		b.WriteRune(r)
	}
	switch s := b.String(); s {
	case "SetSpiPort":
		return "SetSPIPort"
	case "SetSpispeed":
		return "SetSPISpeed"
	default:
		return s
	}
}

func literal(v any) string { return fmt.Sprintf("%#v", v) }

func durationLiteral(d time.Duration) string {
	switch {
	case d%time.Second == 0:
		return fmt.Sprintf("%d * time.Second", d/time.Second)
	case d%time.Millisecond == 0:
		return fmt.Sprintf("%d * time.Millisecond", d/time.Millisecond)
	case d%time.Microsecond == 0:
		return fmt.Sprintf("%d * time.Microsecond", d/time.Microsecond)
	default:
		return fmt.Sprintf("time.Duration(%d)", int64(d))
	}
}
