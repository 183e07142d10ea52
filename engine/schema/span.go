package schema

import (
	"fmt"

	"github.com/lilacdata/lilac/lilaerr"
)

// Span is a {start, end} pair relative to a source string leaf (spec §3).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Resolve substrings the source text by the span's offsets, per spec §8
// universal property 4 (round-trip: resolved value equals s[start:end]).
func (s Span) Resolve(source string) (string, error) {
	if s.Start < 0 || s.End > len(source) || s.Start > s.End {
		return "", fmt.Errorf("schema: span {%d,%d} out of bounds for source of length %d", s.Start, s.End, len(source))
	}
	return source[s.Start:s.End], nil
}

// Offset shifts a span by a parent span's start, per the UDF runner's span
// offsetting rule (spec §4.5 rule 3): chained spans must index into the
// original string, not the parent's substring.
func (s Span) Offset(parentStart int) Span {
	return Span{Start: s.Start + parentStart, End: s.End + parentStart}
}

// SpanFromCell extracts a Span from a lifted Cell whose Value is the
// {start, end} map decoded from JSON.
func SpanFromCell(c Cell) (Span, error) {
	m, ok := c.Value.(map[string]any)
	if !ok {
		return Span{}, fmt.Errorf("schema: span cell value is %T, not an object", c.Value)
	}
	start, ok1 := asInt(m["start"])
	end, ok2 := asInt(m["end"])
	if !ok1 || !ok2 {
		return Span{}, fmt.Errorf("schema: span cell missing start/end")
	}
	return Span{Start: start, End: end}, nil
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

// ValidateSpanSource checks schema invariant 3: the span field's source
// path must exist in the schema and be of dtype string.
func ValidateSpanSource(s *Schema, spanPath Path, sourcePath string) error {
	sp := ParsePath(sourcePath)
	f, err := s.GetLeaf(sp)
	if err != nil {
		return lilaerr.New(lilaerr.KindPathNotFound, spanPath.String(), "span source path %q: %v", sourcePath, err)
	}
	if f.Dtype != DTypeString {
		return lilaerr.New(lilaerr.KindDtypeConflict, spanPath.String(), "span source path %q is %s, not string", sourcePath, f.Dtype)
	}
	return nil
}
