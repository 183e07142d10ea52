// Package selector compiles a schema path into a per-row projection.
// Given a path with wildcard segments, a Selector produces, for each
// row, a value shaped like the implied nesting (spec §4.3).
package selector

import (
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/lilaerr"
)

// Mode controls how wildcard levels in the path are rendered.
type Mode int

const (
	// Structured preserves nesting: consumers see per-row nested containers.
	Structured Mode = iota
	// Flatten collapses every wildcard level into a single per-row list.
	Flatten
	// Unnest emits one logical value per leaf occurrence. Mechanically
	// this evaluates the same document-side expression as Flatten; it is
	// engine/stats, the caller, that explodes the returned slice into one
	// row per occurrence instead of one row per source row.
	Unnest
)

type hop struct {
	wildcard bool
	expr     jp.Expr
}

// Selector is a compiled projection for one schema path.
type Selector struct {
	Path  schema.Path
	Field *schema.Field

	hops     []hop
	flatExpr jp.Expr

	spanSource schema.Path
	sourceHops []hop
}

// Compile resolves path against s and builds the document-side
// evaluators (go-ojg/jp expressions) used to project rows.
func Compile(s *schema.Schema, path schema.Path) (*Selector, error) {
	field, err := s.GetLeaf(path)
	if err != nil {
		return nil, err
	}

	hops, err := compileHops(path)
	if err != nil {
		return nil, err
	}

	flatExpr, err := jp.ParseString(buildJSONPath(path))
	if err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindPathNotFound, path.String(), err)
	}

	sel := &Selector{Path: path, Field: field, hops: hops, flatExpr: flatExpr}

	if field.Dtype == schema.DTypeStringSpan && field.SpanSource != "" {
		if err := schema.ValidateSpanSource(s, path, field.SpanSource); err != nil {
			return nil, err
		}
		sourcePath := schema.ParsePath(field.SpanSource)
		sourceHops, err := compileHops(sourcePath)
		if err != nil {
			return nil, err
		}
		sel.spanSource = sourcePath
		sel.sourceHops = sourceHops
	}

	return sel, nil
}

func compileHops(path schema.Path) ([]hop, error) {
	hops := make([]hop, len(path))
	for i, seg := range path {
		if seg == schema.WildcardSegment {
			expr, err := jp.ParseString("[*]")
			if err != nil {
				return nil, lilaerr.Wrap(lilaerr.KindPathNotFound, path.String(), err)
			}
			hops[i] = hop{wildcard: true, expr: expr}
			continue
		}
		expr, err := jp.ParseString(seg)
		if err != nil {
			return nil, lilaerr.Wrap(lilaerr.KindPathNotFound, path.String(), err)
		}
		hops[i] = hop{expr: expr}
	}
	return hops, nil
}

func buildJSONPath(path schema.Path) string {
	var b strings.Builder
	for _, seg := range path {
		if seg == schema.WildcardSegment {
			b.WriteString("[*]")
			continue
		}
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(seg)
	}
	return b.String()
}

// Select projects row according to mode, resolving spans inline when the
// selected leaf is a string_span.
func (sel *Selector) Select(mode Mode, row any) (any, error) {
	switch mode {
	case Structured:
		return sel.selectStructured(row, sel.hops)
	case Flatten:
		values := sel.flatExpr.Get(row)
		out := make([]any, len(values))
		for i, v := range values {
			resolved, err := sel.resolveIfSpan(row, v)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case Unnest:
		values := sel.flatExpr.Get(row)
		out := make([]any, len(values))
		for i, v := range values {
			resolved, err := sel.resolveIfSpan(row, v)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return nil, lilaerr.New(lilaerr.KindInvalidFilter, sel.Path.String(), "unknown selector mode %d", mode)
	}
}

// SelectSpan returns the raw {start,end} span at this selector's path,
// without resolving it against its source text. It is an error to call
// this on a selector whose leaf is not a string_span. Callers that need
// the parent span a chained UDF should offset against (spec §4.5 rule 3)
// use this instead of Select, which returns the already-resolved string.
func (sel *Selector) SelectSpan(row any) (*schema.Span, error) {
	if sel.Field.Dtype != schema.DTypeStringSpan {
		return nil, lilaerr.New(lilaerr.KindDtypeConflict, sel.Path.String(), "not a string_span leaf")
	}
	raw, err := sel.resolveStructured(row, sel.hops)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	span, err := schema.SpanFromCell(schema.Lift(raw))
	if err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindDtypeConflict, sel.Path.String(), err)
	}
	return &span, nil
}

func (sel *Selector) selectStructured(container any, hops []hop) (any, error) {
	if len(hops) == 0 {
		return sel.resolveIfSpan(container, container)
	}

	h := hops[0]
	rest := hops[1:]

	if h.wildcard {
		list, ok := container.([]any)
		if !ok {
			if container == nil {
				return []any{}, nil
			}
			return nil, lilaerr.New(lilaerr.KindNotALeaf, sel.Path.String(), "expected list at wildcard level, got %T", container)
		}
		out := make([]any, len(list))
		for i, elem := range list {
			v, err := sel.selectStructured(elem, rest)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	matches := h.expr.Get(container)
	if len(matches) == 0 {
		return nil, nil
	}
	return sel.selectStructured(matches[0], rest)
}

// resolveIfSpan substitutes a span {start,end} value with its resolved
// substring when this selector targets a string_span leaf. rootRow is
// the whole row, used to fetch the source text independently of where
// the span value was found.
func (sel *Selector) resolveIfSpan(rootRow any, value any) (any, error) {
	if sel.spanSource == nil || value == nil {
		return value, nil
	}
	span, err := schema.SpanFromCell(schema.Lift(value))
	if err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindDtypeConflict, sel.Path.String(), err)
	}
	sourceVal, err := sel.resolveStructured(rootRow, sel.sourceHops)
	if err != nil {
		return nil, err
	}
	source, ok := sourceVal.(string)
	if !ok {
		return nil, lilaerr.New(lilaerr.KindDtypeConflict, sel.spanSource.String(), "span source did not resolve to a string")
	}
	resolved, err := span.Resolve(source)
	if err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindDtypeConflict, sel.Path.String(), err)
	}
	return resolved, nil
}

func (sel *Selector) resolveStructured(container any, hops []hop) (any, error) {
	if len(hops) == 0 {
		return container, nil
	}
	h := hops[0]
	rest := hops[1:]
	if h.wildcard {
		list, ok := container.([]any)
		if !ok || len(list) == 0 {
			return nil, nil
		}
		return sel.resolveStructured(list[0], rest)
	}
	matches := h.expr.Get(container)
	if len(matches) == 0 {
		return nil, nil
	}
	return sel.resolveStructured(matches[0], rest)
}
