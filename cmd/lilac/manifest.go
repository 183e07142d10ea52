package main

import (
	"github.com/spf13/cobra"
)

var manifestDataset string

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print a dataset's manifest summary (schema, row count)",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := openStore().Manifest(manifestDataset)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), info)
	},
}

func init() {
	manifestCmd.Flags().StringVar(&manifestDataset, "dataset", "", "dataset directory")
	_ = manifestCmd.MarkFlagRequired("dataset")
}
