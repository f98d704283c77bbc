package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

var (
	generateCount int
	generateSave  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <project-id>",
	Short: "Generate search queries from the project description",
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

		project, err := env.Store.GetProject(cmd.Context(), id)
		if err != nil {
			return err
		}
		if project.Description == "" {
			return eris.New("project has no description to generate queries from")
		}

		queries, err := env.Generator.Generate(cmd.Context(), project.Description, project.QueryPrompt, generateCount)
		if err != nil {
			return eris.Wrap(err, "generate queries")
		}

		if generateSave {
			saved, err := env.Store.AddQueries(cmd.Context(), id, queries)
			if err != nil {
				return eris.Wrap(err, "save queries")
			}
			zap.L().Info("queries saved", zap.Int64("project_id", id), zap.Int("count", len(saved)))
		}
		return printJSON(queries)
	},
}

var queriesCmd = &cobra.Command{
	Use:   "queries <project-id>",
	Short: "List a project's saved search queries",
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

		queries, err := env.Store.ListQueries(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(queries)
	},
}

func init() {
	generateCmd.Flags().IntVar(&generateCount, "count", leadgen.MaxQueries, "number of queries to generate (1-20)")
	generateCmd.Flags().BoolVar(&generateSave, "save", true, "persist the generated queries")
	rootCmd.AddCommand(generateCmd, queriesCmd)
}
