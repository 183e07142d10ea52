package main

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	deleteSignalDataset      string
	deleteSignalName         string
	deleteSignalEnrichedPath string
)

var deleteSignalCmd = &cobra.Command{
	Use:   "delete-signal",
	Short: "Remove a signal's shard and manifest so it stops contributing to the dataset's view",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWriter()
		if err != nil {
			return err
		}
		return w.DeleteSignal(context.Background(), deleteSignalDataset, deleteSignalName, deleteSignalEnrichedPath)
	},
}

func init() {
	deleteSignalCmd.Flags().StringVar(&deleteSignalDataset, "dataset", "", "dataset directory")
	deleteSignalCmd.Flags().StringVar(&deleteSignalName, "signal", "", "signal name")
	deleteSignalCmd.Flags().StringVar(&deleteSignalEnrichedPath, "enriched-path", "", "the signal's enriched schema path, e.g. text.keyword")
	_ = deleteSignalCmd.MarkFlagRequired("dataset")
	_ = deleteSignalCmd.MarkFlagRequired("signal")
	_ = deleteSignalCmd.MarkFlagRequired("enriched-path")
}
