package main

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	computeSignalDataset string
	computeSignalPath    string
	computeSignalName    string
	computeSignalParams  map[string]string
)

var computeSignalCmd = &cobra.Command{
	Use:   "compute-signal",
	Short: "Run a builtin signal over a path and commit it as a new signal shard",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := make(map[string]any, len(computeSignalParams))
		for k, v := range computeSignalParams {
			params[k] = v
		}
		u, err := buildSignal(computeSignalName, params)
		if err != nil {
			return err
		}
		w, err := openWriter()
		if err != nil {
			return err
		}
		return w.ComputeSignal(context.Background(), computeSignalDataset, computeSignalPath, u)
	},
}

func init() {
	computeSignalCmd.Flags().StringVar(&computeSignalDataset, "dataset", "", "dataset directory")
	computeSignalCmd.Flags().StringVar(&computeSignalPath, "path", "", "UDF input selection path")
	computeSignalCmd.Flags().StringVar(&computeSignalName, "signal", "", "builtin signal name (length, keyword, embed)")
	computeSignalCmd.Flags().StringToStringVar(&computeSignalParams, "param", nil, "signal parameter, e.g. --param keyword=brake")
	_ = computeSignalCmd.MarkFlagRequired("dataset")
	_ = computeSignalCmd.MarkFlagRequired("path")
	_ = computeSignalCmd.MarkFlagRequired("signal")
}
