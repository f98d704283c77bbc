package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <project-id>",
	Short: "Run every saved query against the search provider",
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

		queries, err := env.Store.ListQueries(cmd.Context(), id)
		if err != nil {
			return err
		}
		texts := make([]string, len(queries))
		for i, q := range queries {
			texts[i] = q.Query
		}

		result, err := env.Resolver.Resolve(cmd.Context(), id, texts)
		if err != nil {
			return eris.Wrap(err, "resolve queries")
		}
		zap.L().Info("resolve complete",
			zap.Int("queries_processed", result.QueriesProcessed),
			zap.Int("urls_upserted", result.URLsUpserted),
		)
		return printJSON(result)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
