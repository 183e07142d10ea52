package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lilacdata/lilac/engine/exec"
	"github.com/lilacdata/lilac/engine/planner"
	"github.com/lilacdata/lilac/engine/store"
	"github.com/lilacdata/lilac/engine/udf"
)

// requestColumn is query.go's JSON-friendly stand-in for
// planner.ColumnSelector: a UDF can't be unmarshaled directly since it
// carries Go closures, so a column that wants one names a builtin signal
// by name instead (see signals.go).
type requestColumn struct {
	Path         string         `json:"path"`
	Alias        string         `json:"alias,omitempty"`
	Signal       string         `json:"signal,omitempty"`
	SignalParams map[string]any `json:"signal_params,omitempty"`
}

func (rc requestColumn) resolve() (planner.ColumnSelector, error) {
	sel := planner.ColumnSelector{Path: rc.Path, Alias: rc.Alias}
	if rc.Signal != "" {
		u, err := buildSignal(rc.Signal, rc.SignalParams)
		if err != nil {
			return planner.ColumnSelector{}, err
		}
		sel.UDF = u
	}
	return sel, nil
}

// queryRequest is `lilac query`'s stdin payload.
type queryRequest struct {
	Dataset        string            `json:"dataset"`
	Columns        []requestColumn   `json:"columns"`
	Filters        []planner.Filter  `json:"filters,omitempty"`
	Searches       []planner.Search  `json:"searches,omitempty"`
	Sort           *planner.SortSpec `json:"sort,omitempty"`
	Limit          int               `json:"limit,omitempty"`
	Offset         int               `json:"offset,omitempty"`
	CombineColumns bool              `json:"combine_columns,omitempty"`
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a select/filter/sort/search query, reading a JSON request from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req queryRequest
		if err := readJSON(cmd.InOrStdin(), &req); err != nil {
			return err
		}

		view, err := store.OpenView(openStore(), req.Dataset)
		if err != nil {
			return err
		}

		columns := make([]planner.ColumnSelector, len(req.Columns))
		for i, rc := range req.Columns {
			sel, err := rc.resolve()
			if err != nil {
				return err
			}
			columns[i] = sel
		}

		plan, err := planner.Compile(view.Schema, &planner.Query{
			Columns:  columns,
			Filters:  req.Filters,
			Searches: req.Searches,
			Sort:     req.Sort,
			Limit:    req.Limit,
			Offset:   req.Offset,
		})
		if err != nil {
			return err
		}

		index, err := openIndex()
		if err != nil {
			return err
		}
		runner := udf.New(runnerWorkers, runnerChunkSize)
		result, err := exec.New(view, index, runner).Execute(context.Background(), plan, req.CombineColumns)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func readJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
