package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lilacdata/lilac/engine/stats"
	"github.com/lilacdata/lilac/engine/store"
)

var (
	statsDataset string
	statsPath    string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute per-leaf stats (count, distinct, min/max, avg text length) for a path",
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := store.OpenView(openStore(), statsDataset)
		if err != nil {
			return err
		}
		result, err := stats.Compute(context.Background(), view, statsPath)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsDataset, "dataset", "", "dataset directory")
	statsCmd.Flags().StringVar(&statsPath, "path", "", "schema path to summarize")
	_ = statsCmd.MarkFlagRequired("dataset")
	_ = statsCmd.MarkFlagRequired("path")
}
