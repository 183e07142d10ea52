package main

import (
	"context"
	"fmt"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/udf"
	"github.com/lilacdata/lilac/pkg/ollama"
)

// builtinSignals are the UDFs the CLI can dispatch `compute-signal` to by
// name. UDFs are Go closures (spec §4.5), so a CLI driver needs some
// concrete set compiled into the binary rather than inventing compute
// logic from JSON; these are the ones the spec itself names directly
// ("len(text)" in §4.5 scenario D; keyword match spans in §4.6 rule 1a)
// plus the embedding signal that every TextToEmbedding column (§4.5 rule
// 4) and semantic/concept search synthesis (§4.6) ultimately depend on.
var builtinSignals = map[string]func(params map[string]any) (*udf.UDF, error){
	"length":  newLengthSignal,
	"keyword": newKeywordSignal,
	"embed":   newEmbedSignal,
}

// newLengthSignal counts runes in a text leaf (spec §4.5 scenario D's
// "UDF len(text)").
func newLengthSignal(map[string]any) (*udf.UDF, error) {
	return &udf.UDF{
		Spec: udf.Spec{
			Name:         "length",
			InputKind:    udf.InputText,
			Kind:         udf.KindTextToText,
			OutputSchema: schema.NewLeaf(schema.DTypeInt64),
		},
		Hooks: udf.Hooks{
			Compute: func(_ context.Context, batch []udf.Input) ([]udf.Output, error) {
				out := make([]udf.Output, len(batch))
				for i, in := range batch {
					s, _ := in.Value.(string)
					out[i] = udf.Output{Value: int64(len([]rune(s)))}
				}
				return out, nil
			},
		},
	}, nil
}

// newKeywordSignal wraps the same NewKeyword builtin the planner
// synthesizes for a keyword search (spec §4.6 rule 1a), so a committed
// `compute-signal --signal keyword` shard and a query-time keyword
// search column apply identical match logic.
func newKeywordSignal(params map[string]any) (*udf.UDF, error) {
	term, _ := params["keyword"].(string)
	if term == "" {
		return nil, fmt.Errorf("keyword signal requires a non-empty params.keyword")
	}
	return udf.NewKeyword(term), nil
}

// newEmbedSignal builds a TextToEmbedding UDF backed by an Ollama
// embedding server (pkg/ollama), for committing a vector column via
// `compute-signal --signal embed` (spec §4.5 rule 4: the row store keeps
// only the span/commit bookkeeping, the vector itself goes to the index).
// params.model overrides --ollama-model; --ollama-url picks the server.
func newEmbedSignal(params map[string]any) (*udf.UDF, error) {
	model, _ := params["model"].(string)
	if model == "" {
		model = ollamaModel
	}
	if ollamaURL == "" {
		return nil, fmt.Errorf("embed signal requires --ollama-url to be set")
	}
	client := ollama.NewEmbedClient(ollamaURL, model)
	return udf.NewTextEmbedding("embed", client), nil
}

func buildSignal(name string, params map[string]any) (*udf.UDF, error) {
	ctor, ok := builtinSignals[name]
	if !ok {
		return nil, fmt.Errorf("unknown signal %q", name)
	}
	return ctor(params)
}
