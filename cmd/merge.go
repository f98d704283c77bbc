package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var mergeBatchID int64

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Refresh the merged results table",
}

var mergeSerpCmd = &cobra.Command{
	Use:   "serp <project-id>",
	Short: "Re-aggregate extracted leads and refresh SERP counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		env, err := initDatasetEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Merger.MergeSerpLeads(cmd.Context(), id)
		if err != nil {
			return eris.Wrap(err, "merge serp leads")
		}
		return printJSON(result)
	},
}

var mergeDatasetCmd = &cobra.Command{
	Use:   "dataset <project-id>",
	Short: "Re-merge a dataset batch into the results (retry after a failed merge)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		env, err := initDatasetEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		batches, err := env.Store.ListDatasetBatches(cmd.Context(), id)
		if err != nil {
			return err
		}
		var columns []string
		for _, b := range batches {
			if b.ID == mergeBatchID {
				columns = b.EnrichmentColumns
				break
			}
		}
		if columns == nil {
			return eris.Errorf("batch %d not found in project %d", mergeBatchID, id)
		}

		result, err := env.Merger.MergeDatasetLeads(cmd.Context(), id, mergeBatchID, columns)
		if err != nil {
			return eris.Wrap(err, "merge dataset leads")
		}
		return printJSON(result)
	},
}

func init() {
	mergeDatasetCmd.Flags().Int64Var(&mergeBatchID, "batch", 0, "dataset batch ID (required)")
	_ = mergeDatasetCmd.MarkFlagRequired("batch")

	mergeCmd.AddCommand(mergeSerpCmd, mergeDatasetCmd)
	rootCmd.AddCommand(mergeCmd)
}
