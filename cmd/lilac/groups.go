package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lilacdata/lilac/engine/stats"
	"github.com/lilacdata/lilac/engine/store"
)

type groupsRequest struct {
	Dataset string              `json:"dataset"`
	stats.GroupsRequest
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Run select_groups over a path, reading a JSON request from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req groupsRequest
		if err := readJSON(cmd.InOrStdin(), &req); err != nil {
			return err
		}
		view, err := store.OpenView(openStore(), req.Dataset)
		if err != nil {
			return err
		}
		result, err := stats.ComputeGroups(context.Background(), view, req.GroupsRequest)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}
