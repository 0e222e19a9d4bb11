// Package forms attaches Bootstrap grid layout metadata to forms: column
// spans for inputs and labels, and the set of submit buttons rendered under
// the form. It only produces metadata; field validation and HTML rendering
// live elsewhere.
package forms

import "sort"

// Button describes one form button.
type Button struct {
	Text  string
	Class string
}

// NamedButton pairs a button with its lookup name, for ordered rendering.
type NamedButton struct {
	Name string
	Button
}

// Layer is one level of layout defaults. Layers are merged front to back,
// so later layers override earlier ones on collision; call-site options are
// applied after all layers. This replaces the implicit walk over a class
// hierarchy: a form type declares its layer stack explicitly, most general
// first.
type Layer struct {
	Buttons       map[string]Button
	ButtonOrder   []string
	InputColumns  string
	LabelColumns  string
	OffsetColumns string
}

// Base is the layer every form starts from.
var Base = Layer{
	Buttons: map[string]Button{
		"submit": {Text: "Submit", Class: "primary"},
	},
	ButtonOrder:   []string{"submit"},
	OffsetColumns: "col-sm-10 offset-sm-2",
}

// Field carries per-field layout metadata. The validation side of a field is
// not modeled here.
type Field struct {
	Name         string
	InputColumns string
	LabelColumns string
}

// Form is the merged layout of one form instance. The button map is fixed
// after New returns.
type Form struct {
	Fields []*Field

	buttons       map[string]Button
	arrival       []string
	order         []string
	inputColumns  string
	labelColumns  string
	offsetColumns string
}

// Option adjusts a single form at construction time.
type Option func(*options)

type options struct {
	inputColumns  string
	labelColumns  string
	offsetColumns string
	buttons       map[string]Button
}

func WithInputColumns(c string) Option {
	return func(o *options) { o.inputColumns = c }
}

func WithLabelColumns(c string) Option {
	return func(o *options) { o.labelColumns = c }
}

func WithOffsetColumns(c string) Option {
	return func(o *options) { o.offsetColumns = c }
}

// WithButtons merges extra buttons with the highest precedence.
func WithButtons(buttons map[string]Button) Option {
	return func(o *options) { o.buttons = buttons }
}

// New merges the given layers (after the package Base layer) and applies
// call-site options, then decorates every field passed in. Fields added to
// the form afterwards are not decorated; construct the layout after the
// field set is complete.
func New(layers []Layer, fields []*Field, opts ...Option) *Form {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	f := &Form{
		Fields:  fields,
		buttons: make(map[string]Button),
	}

	merged := make([]Layer, 0, len(layers)+1)
	merged = append(merged, Base)
	merged = append(merged, layers...)

	for _, layer := range merged {
		f.mergeButtons(layer.Buttons)
		if len(layer.ButtonOrder) > 0 {
			f.order = layer.ButtonOrder
		}
		if layer.InputColumns != "" {
			f.inputColumns = layer.InputColumns
		}
		if layer.LabelColumns != "" {
			f.labelColumns = layer.LabelColumns
		}
		if layer.OffsetColumns != "" {
			f.offsetColumns = layer.OffsetColumns
		}
	}

	f.mergeButtons(o.buttons)
	if o.inputColumns != "" {
		f.inputColumns = o.inputColumns
	}
	if o.labelColumns != "" {
		f.labelColumns = o.labelColumns
	}
	if o.offsetColumns != "" {
		f.offsetColumns = o.offsetColumns
	}

	if f.inputColumns != "" {
		for _, fld := range f.Fields {
			fld.InputColumns = f.inputColumns
		}
	}
	if f.labelColumns != "" {
		for _, fld := range f.Fields {
			fld.LabelColumns = f.labelColumns
		}
	}

	return f
}

func (f *Form) mergeButtons(buttons map[string]Button) {
	// Maps carry no order, so arrival order of new names is tracked
	// separately for the unordered tie-break in Buttons.
	names := make([]string, 0, len(buttons))
	for name := range buttons {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, seen := f.buttons[name]; !seen {
			f.arrival = append(f.arrival, name)
		}
		f.buttons[name] = buttons[name]
	}
}

// Button returns the merged descriptor for name.
func (f *Form) Button(name string) (Button, bool) {
	b, ok := f.buttons[name]
	return b, ok
}

// Buttons returns the merged buttons in display order. Names listed in the
// button order sort by their position there; names absent from it sort
// before all listed names, in merge-arrival order. The relative order of
// unlisted names is an artifact of the merge sequence, not a contract.
func (f *Form) Buttons() []NamedButton {
	out := make([]NamedButton, 0, len(f.arrival))
	for _, name := range f.arrival {
		out = append(out, NamedButton{Name: name, Button: f.buttons[name]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return f.orderRank(out[i].Name) < f.orderRank(out[j].Name)
	})
	return out
}

func (f *Form) orderRank(name string) int {
	for i, n := range f.order {
		if n == name {
			return i
		}
	}
	return -1
}

// OffsetColumns returns the effective offset spec: the call-site override if
// one was given, otherwise the most specific layer default.
func (f *Form) OffsetColumns() string {
	return f.offsetColumns
}

// InputColumns returns the uniform input column spec, empty when unset.
func (f *Form) InputColumns() string {
	return f.inputColumns
}

// LabelColumns returns the uniform label column spec, empty when unset.
func (f *Form) LabelColumns() string {
	return f.labelColumns
}
