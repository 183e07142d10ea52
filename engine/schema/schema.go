package schema

import (
	"encoding/json"
	"fmt"

	"github.com/lilacdata/lilac/lilaerr"
)

// Schema is a tree of fields rooted at a record (spec §3). The root is
// always a KindRecord field so that top-level field lookups and merges are
// uniform.
type Schema struct {
	Root *Field
}

// New constructs a Schema from an ordered set of top-level fields.
func New(order []string, fields map[string]*Field) *Schema {
	return &Schema{Root: NewRecord(order, fields)}
}

// Empty returns a schema with no fields.
func Empty() *Schema {
	return &Schema{Root: NewRecord(nil, nil)}
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return Empty()
	}
	return &Schema{Root: s.Root.Clone()}
}

// Get walks path from the root and returns the field at that path, following
// "*" through the single child of a repeated node.
func (s *Schema) Get(p Path) (*Field, error) {
	cur := s.Root
	for i, seg := range p {
		if cur == nil {
			return nil, lilaerr.New(lilaerr.KindPathNotFound, p.String(), "no field at segment %d (%q)", i, seg)
		}
		switch cur.Kind {
		case KindRecord:
			if seg == WildcardSegment {
				return nil, lilaerr.New(lilaerr.KindPathNotFound, p.String(), "wildcard used against record at segment %d", i)
			}
			next, ok := cur.Fields[seg]
			if !ok {
				return nil, lilaerr.New(lilaerr.KindPathNotFound, p.String(), "no field %q", seg)
			}
			cur = next
		case KindRepeated:
			if seg != WildcardSegment {
				return nil, lilaerr.New(lilaerr.KindPathNotFound, p.String(), "expected %q against repeated field at segment %d, got %q", WildcardSegment, i, seg)
			}
			cur = cur.Elem
		default:
			return nil, lilaerr.New(lilaerr.KindPathNotFound, p.String(), "segment %d (%q) indexes into a leaf", i, seg)
		}
	}
	return cur, nil
}

// GetLeaf is Get but additionally requires the resolved field be a leaf.
func (s *Schema) GetLeaf(p Path) (*Field, error) {
	f, err := s.Get(p)
	if err != nil {
		return nil, err
	}
	if f.Kind != KindLeaf {
		return nil, lilaerr.New(lilaerr.KindNotALeaf, p.String(), "resolves to a %v, not a leaf", f.Kind)
	}
	return f, nil
}

// HasPath reports whether path resolves to any field.
func (s *Schema) HasPath(p Path) bool {
	_, err := s.Get(p)
	return err == nil
}

// LeafEntry pairs a leaf's path with its field.
type LeafEntry struct {
	Path  Path
	Field *Field
}

// Leaves lists every dtype-bearing path in depth-first, discovery order.
func (s *Schema) Leaves() []LeafEntry {
	var out []LeafEntry
	var walk func(p Path, f *Field)
	walk = func(p Path, f *Field) {
		switch f.Kind {
		case KindLeaf:
			out = append(out, LeafEntry{Path: p.Clone(), Field: f})
		case KindRecord:
			for _, name := range f.Order {
				walk(append(p.Clone(), name), f.Fields[name])
			}
		case KindRepeated:
			walk(append(p.Clone(), WildcardSegment), f.Elem)
		}
	}
	walk(nil, s.Root)
	return out
}

// Merge combines a set of schemas commutatively and associatively (spec §3
// invariant 4, §8 universal property 2): at every shared leaf the dtypes
// must be equal, record children union, repeated children recurse.
func Merge(schemas ...*Schema) (*Schema, error) {
	if len(schemas) == 0 {
		return Empty(), nil
	}
	acc := schemas[0].Clone()
	for _, next := range schemas[1:] {
		merged, err := mergeField(acc.Root, next.Root, nil)
		if err != nil {
			return nil, err
		}
		acc = &Schema{Root: merged}
	}
	return acc, nil
}

func mergeField(a, b *Field, at Path) (*Field, error) {
	if a == nil {
		return b.Clone(), nil
	}
	if b == nil {
		return a.Clone(), nil
	}
	if a.Kind != b.Kind {
		leaf, rec := a, b
		if a.Kind != KindLeaf || b.Kind != KindRecord {
			leaf, rec = b, a
		}
		if leaf.Kind != KindLeaf || rec.Kind != KindRecord {
			return nil, lilaerr.New(lilaerr.KindDtypeConflict, at.String(), "kind mismatch: %v vs %v", a.Kind, b.Kind)
		}
		return promoteLeafToRecord(leaf, rec), nil
	}
	switch a.Kind {
	case KindLeaf:
		if a.Dtype != b.Dtype {
			return nil, lilaerr.New(lilaerr.KindDtypeConflict, at.String(), "%s vs %s", a.Dtype, b.Dtype)
		}
		out := a.Clone()
		if out.Signal == nil {
			out.Signal = b.Signal
		}
		if len(out.Bins) == 0 {
			out.Bins = b.Bins
		}
		return out, nil
	case KindRepeated:
		elem, err := mergeField(a.Elem, b.Elem, append(at.Clone(), WildcardSegment))
		if err != nil {
			return nil, err
		}
		return NewRepeated(elem), nil
	case KindRecord:
		order := append([]string(nil), a.Order...)
		fields := make(map[string]*Field, len(a.Fields)+len(b.Fields))
		for k, v := range a.Fields {
			fields[k] = v
		}
		for _, k := range b.Order {
			if _, exists := fields[k]; !exists {
				order = append(order, k)
			}
		}
		for k, v := range fields {
			bv, ok := b.Fields[k]
			if !ok {
				fields[k] = v
				continue
			}
			merged, err := mergeField(v, bv, append(at.Clone(), k))
			if err != nil {
				return nil, err
			}
			fields[k] = merged
		}
		for k, v := range b.Fields {
			if _, ok := fields[k]; !ok {
				fields[k] = v
			}
		}
		out := NewRecord(order, fields)
		if a.Signal != nil {
			out.Signal = a.Signal
		} else {
			out.Signal = b.Signal
		}
		return out, nil
	default:
		return nil, fmt.Errorf("schema: unknown field kind %v", a.Kind)
	}
}

// promoteLeafToRecord folds a leaf merged against a record at the same
// path into a record whose implicit "value" field carries the leaf's own
// dtype, alongside whatever fields the record side contributes. A signal
// may attach a child schema at a path that was previously a bare leaf
// (spec §3: "or replaces the leaf with a record").
func promoteLeafToRecord(leaf, rec *Field) *Field {
	out := rec.Clone()
	if _, exists := out.Fields["value"]; !exists {
		out.Fields["value"] = leaf.Clone()
		out.Order = append([]string{"value"}, out.Order...)
	}
	if out.Signal == nil {
		out.Signal = leaf.Signal
	}
	return out
}

// ToJSON renders the schema per the wire format of spec §6.
func (s *Schema) ToJSON() ([]byte, error) {
	return json.Marshal(s.Root)
}

// FromJSON parses a schema from the wire format of spec §6.
func FromJSON(data []byte) (*Schema, error) {
	var root Field
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindManifestCorrupt, "", fmt.Errorf("parse schema: %w", err))
	}
	return &Schema{Root: &root}, nil
}
