package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/store"
)

var (
	resultsLimit  int
	resultsOffset int
	exportPath    string
)

var resultsCmd = &cobra.Command{
	Use:   "results <project-id>",
	Short: "Show merged results ordered by SERP count",
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

		rows, err := env.Results.List(cmd.Context(), id, store.ResultFilter{
			Limit:  resultsLimit,
			Offset: resultsOffset,
		})
		if err != nil {
			return err
		}
		return printJSON(rows)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Export merged results as CSV",
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

		out := os.Stdout
		if exportPath != "" {
			f, err := os.Create(exportPath)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close()
			out = f
		}

		n, err := env.Results.ExportCSV(cmd.Context(), id, out)
		if err != nil {
			return err
		}
		if exportPath != "" {
			zap.L().Info("results exported",
				zap.String("path", exportPath),
				zap.Int("rows", n),
			)
		}
		return nil
	},
}

func init() {
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 0, "max rows to return (0 = store default)")
	resultsCmd.Flags().IntVar(&resultsOffset, "offset", 0, "rows to skip")
	exportCmd.Flags().StringVar(&exportPath, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(resultsCmd, exportCmd)
}
