package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <project-id>",
	Short: "Extract lead names from unprocessed and failed URLs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Orchestrator.Extract(cmd.Context(), id)
		if err != nil {
			return eris.Wrap(err, "extract leads")
		}
		return printJSON(result)
	},
}

var extractTestCmd = &cobra.Command{
	Use:   "test <project-id>",
	Short: "Re-run extraction over every URL without persisting anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, extractions, err := env.Orchestrator.TestExtraction(cmd.Context(), id)
		if err != nil {
			return eris.Wrap(err, "test extraction")
		}
		return printJSON(map[string]any{
			"result": result,
			"urls":   extractions,
		})
	},
}

func init() {
	extractCmd.AddCommand(extractTestCmd)
	rootCmd.AddCommand(extractCmd)
}
