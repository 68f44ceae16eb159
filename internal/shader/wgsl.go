// Package shader generates the WGSL compute program whose storage writes the
// layout predictor models.
package shader

import (
	"bytes"
	"fmt"
	"slices"
	"text/template"

	"github.com/23skdu/longbow-padcheck/internal/layout"
)

const (
	EntryPoint = "main"
	Group      = 0
	Binding    = 0
)

const programTemplate = `alias Mat = mat{{.Columns}}x{{.Rows}}<f32>;

@group({{.Group}}) @binding({{.Binding}}) var<storage, read_write> buffer : array<Mat, {{.Matrices}}>;

@compute @workgroup_size(1)
fn {{.EntryPoint}}() {
  var m : Mat;
  for (var c = 0u; c < {{.Columns}}u; c++) {
    m[c] = vec{{.Rows}}<f32>({{range $i, $t := .RowTerms}}{{if $i}}, {{end}}f32(c * {{$.ColumnStep}}u + {{$t}}u){{end}});
  }
{{- range .Writes}}
  buffer[{{.Index}}] = m * f32({{.Scale}}u);
{{- end}}
}
`

var tmpl = template.Must(template.New("program").Parse(programTemplate))

// Program is a generated compute shader together with the parameters it was
// generated from.
type Program struct {
	Params     layout.Params
	Skip       []int
	EntryPoint string
	Source     string
}

// Writes reports whether the program stores array slot i.
func (p *Program) Writes(i int) bool {
	return i >= 0 && i < p.Params.Matrices && !slices.Contains(p.Skip, i)
}

type Option func(*options)

type options struct {
	skip []int
}

// WithSkip drops the store of the given array slots. The untouched slots must
// then read back as guard values.
func WithSkip(instances ...int) Option {
	return func(o *options) {
		o.skip = append(o.skip, instances...)
	}
}

type write struct {
	Index int
	Scale uint32
}

type templateData struct {
	layout.Params
	Group      int
	Binding    int
	EntryPoint string
	ColumnStep uint32
	RowTerms   []uint32
	Writes     []write
}

// Generate renders the program for p.
func Generate(p layout.Params, opts ...Option) (*Program, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	for _, k := range o.skip {
		if k < 0 || k >= p.Matrices {
			return nil, fmt.Errorf("skip instance %d out of range [0, %d)", k, p.Matrices)
		}
	}

	prog := &Program{
		Params:     p,
		Skip:       slices.Clone(o.skip),
		EntryPoint: EntryPoint,
	}

	data := templateData{
		Params:     p,
		Group:      Group,
		Binding:    Binding,
		EntryPoint: EntryPoint,
		ColumnStep: p.TemplateValue(1, 0) - p.TemplateValue(0, 0),
	}
	for k := 0; k < p.Rows; k++ {
		data.RowTerms = append(data.RowTerms, p.TemplateValue(0, k))
	}
	for i := 0; i < p.Matrices; i++ {
		if prog.Writes(i) {
			data.Writes = append(data.Writes, write{Index: i, Scale: p.Scale(i)})
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render program: %w", err)
	}
	prog.Source = buf.String()
	return prog, nil
}
