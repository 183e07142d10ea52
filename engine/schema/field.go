package schema

import "encoding/json"

// FieldKind distinguishes the three shapes a Field can take (spec §3).
type FieldKind int

const (
	KindLeaf FieldKind = iota
	KindRecord
	KindRepeated
)

// SignalDescriptor records which signal produced a subtree and the inputs it
// was computed from. It is metadata only — it does not change merge or
// selection semantics beyond what Field.Signal being non-nil implies.
type SignalDescriptor struct {
	Name       string         `json:"name"`
	Params     map[string]any `json:"params,omitempty"`
	InputPath  string         `json:"input_path,omitempty"`
	EnrichedAt string         `json:"enriched_at,omitempty"`
}

// Bin is a labeled numeric interval hint for ordinal leaves. Start or End
// being nil means the interval is open on that side.
type Bin struct {
	Label string   `json:"label"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

// Field is one node of a schema tree: a dtype-bearing leaf, a keyed record,
// or a singly-repeated wrapper.
type Field struct {
	Kind FieldKind

	// Leaf-only.
	Dtype DType

	// Record-only. Keys preserve declaration/discovery order via Order.
	Fields map[string]*Field
	Order  []string

	// Repeated-only.
	Elem *Field

	// May be set on a record or a leaf.
	Signal *SignalDescriptor
	Bins   []Bin

	// Leaf-only, string_span dtype: the path (dotted) of the ancestor
	// string leaf this span indexes into. Spec §3 calls this the
	// "source path", a record-level property recorded alongside the span
	// field rather than a back-reference in the tree itself (§9).
	SpanSource string
}

// NewLeaf constructs a leaf field of the given dtype.
func NewLeaf(dtype DType) *Field {
	return &Field{Kind: KindLeaf, Dtype: dtype}
}

// NewSpanLeaf constructs a string_span leaf pointing at sourcePath.
func NewSpanLeaf(sourcePath string) *Field {
	return &Field{Kind: KindLeaf, Dtype: DTypeStringSpan, SpanSource: sourcePath}
}

// NewRecord constructs a record field from an ordered set of named children.
func NewRecord(order []string, fields map[string]*Field) *Field {
	f := &Field{Kind: KindRecord, Fields: make(map[string]*Field, len(fields)), Order: append([]string(nil), order...)}
	for k, v := range fields {
		f.Fields[k] = v
	}
	return f
}

// NewRepeated constructs a repeated field wrapping a single element type.
func NewRepeated(elem *Field) *Field {
	return &Field{Kind: KindRepeated, Elem: elem}
}

// Get returns the named child of a record field, or nil if absent or not a
// record.
func (f *Field) Get(name string) *Field {
	if f == nil || f.Kind != KindRecord {
		return nil
	}
	return f.Fields[name]
}

// WithChild returns a copy of f (record kind) with name bound to child,
// preserving discovery order for existing keys and appending new ones.
func (f *Field) WithChild(name string, child *Field) *Field {
	out := &Field{
		Kind:   KindRecord,
		Fields: make(map[string]*Field, len(f.Fields)+1),
		Order:  append([]string(nil), f.Order...),
		Signal: f.Signal,
		Bins:   f.Bins,
	}
	for k, v := range f.Fields {
		out.Fields[k] = v
	}
	if _, exists := out.Fields[name]; !exists {
		out.Order = append(out.Order, name)
	}
	out.Fields[name] = child
	return out
}

// Clone returns a deep copy of the field tree, per §9 ("schemas are
// deep-copied on merge").
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	out := &Field{Kind: f.Kind, Dtype: f.Dtype, SpanSource: f.SpanSource}
	if f.Signal != nil {
		sig := *f.Signal
		if f.Signal.Params != nil {
			sig.Params = make(map[string]any, len(f.Signal.Params))
			for k, v := range f.Signal.Params {
				sig.Params[k] = v
			}
		}
		out.Signal = &sig
	}
	if f.Bins != nil {
		out.Bins = append([]Bin(nil), f.Bins...)
	}
	switch f.Kind {
	case KindRecord:
		out.Fields = make(map[string]*Field, len(f.Fields))
		out.Order = append([]string(nil), f.Order...)
		for k, v := range f.Fields {
			out.Fields[k] = v.Clone()
		}
	case KindRepeated:
		out.Elem = f.Elem.Clone()
	}
	return out
}

// wireField is the JSON-on-disk shape from spec §6: "Each node has
// {fields?, repeated_field?, dtype?, signal?, bins?}".
type wireField struct {
	Fields        map[string]*wireField `json:"fields,omitempty"`
	FieldOrder    []string              `json:"field_order,omitempty"`
	RepeatedField *wireField            `json:"repeated_field,omitempty"`
	Dtype         *DType                `json:"dtype,omitempty"`
	Signal        *SignalDescriptor     `json:"signal,omitempty"`
	Bins          []Bin                 `json:"bins,omitempty"`
	SpanSource    string                `json:"span_source,omitempty"`
}

func (f *Field) toWire() *wireField {
	if f == nil {
		return nil
	}
	w := &wireField{Signal: f.Signal, Bins: f.Bins, SpanSource: f.SpanSource}
	switch f.Kind {
	case KindLeaf:
		dt := f.Dtype
		w.Dtype = &dt
	case KindRecord:
		w.Fields = make(map[string]*wireField, len(f.Fields))
		w.FieldOrder = append([]string(nil), f.Order...)
		for k, v := range f.Fields {
			w.Fields[k] = v.toWire()
		}
	case KindRepeated:
		w.RepeatedField = f.Elem.toWire()
	}
	return w
}

func (w *wireField) toField() *Field {
	if w == nil {
		return nil
	}
	f := &Field{Signal: w.Signal, Bins: w.Bins, SpanSource: w.SpanSource}
	switch {
	case w.Dtype != nil:
		f.Kind = KindLeaf
		f.Dtype = *w.Dtype
	case w.RepeatedField != nil:
		f.Kind = KindRepeated
		f.Elem = w.RepeatedField.toField()
	default:
		f.Kind = KindRecord
		f.Fields = make(map[string]*Field, len(w.Fields))
		f.Order = append([]string(nil), w.FieldOrder...)
		for k, v := range w.Fields {
			f.Fields[k] = v.toField()
		}
		if len(f.Order) == 0 {
			for k := range f.Fields {
				f.Order = append(f.Order, k)
			}
		}
	}
	return f
}

// MarshalJSON implements the wire format of spec §6.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.toWire())
}

// UnmarshalJSON implements the wire format of spec §6.
func (f *Field) UnmarshalJSON(data []byte) error {
	var w wireField
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = *w.toField()
	return nil
}
