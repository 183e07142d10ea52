package udf

import (
	"context"
	"testing"
)

func TestKeywordSpecShape(t *testing.T) {
	k := NewKeyword("quick")
	if k.Spec.Kind != KindTextToSpan || !k.Spec.ProducesSpans {
		t.Fatalf("unexpected keyword spec: %+v", k.Spec)
	}
}

func TestKeywordNoMatchYieldsNullOutput(t *testing.T) {
	k := NewKeyword("zzz")
	out, err := New(1, 8).Run(context.Background(), k, []Input{{RowID: "r1", Value: "no match here"}}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out[0].Value != nil || out[0].Span != nil {
		t.Fatalf("expected null output on no match, got %+v", out[0])
	}
}

func TestKeywordCaseInsensitive(t *testing.T) {
	k := NewKeyword("FOX")
	out, err := New(1, 8).Run(context.Background(), k, []Input{{RowID: "r1", Value: "a quick fox"}}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out[0].Span == nil || out[0].Span.Start != 8 {
		t.Fatalf("expected match at offset 8, got %+v", out[0])
	}
}
