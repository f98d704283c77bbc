package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	projectDescription      string
	projectQueryPrompt      string
	projectExtractionPrompt string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage lead-generation projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initDatasetEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		project, err := env.Store.CreateProject(cmd.Context(), args[0], projectDescription)
		if err != nil {
			return eris.Wrap(err, "create project")
		}
		return printJSON(project)
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initDatasetEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		projects, err := env.Store.ListProjects(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "list projects")
		}
		return printJSON(projects)
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project and its URL status counts",
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

		project, err := env.Store.GetProject(cmd.Context(), id)
		if err != nil {
			return err
		}
		counts, err := env.Store.CountURLsByStatus(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"project":    project,
			"url_status": counts,
		})
	},
}

var projectPromptsCmd = &cobra.Command{
	Use:   "set-prompts <project-id>",
	Short: "Set per-project query and extraction guidance",
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

		if err := env.Store.UpdateProjectPrompts(cmd.Context(), id, projectQueryPrompt, projectExtractionPrompt); err != nil {
			return err
		}
		zap.L().Info("project prompts updated", zap.Int64("project_id", id))
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project and all of its data",
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

		if err := env.Store.DeleteProject(cmd.Context(), id); err != nil {
			return err
		}
		zap.L().Info("project deleted", zap.Int64("project_id", id))
		return nil
	},
}

var projectResetCmd = &cobra.Command{
	Use:   "reset-extraction <project-id>",
	Short: "Reset URL statuses and delete extracted leads for reprocessing",
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

		urls, leads, err := env.Store.ResetExtraction(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(map[string]int{
			"urls_reset":    urls,
			"leads_deleted": leads,
		})
	},
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, eris.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectDescription, "description", "", "target company profile description")
	projectPromptsCmd.Flags().StringVar(&projectQueryPrompt, "query-prompt", "", "extra guidance for query generation")
	projectPromptsCmd.Flags().StringVar(&projectExtractionPrompt, "extraction-prompt", "", "avoid-criteria for lead extraction")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd,
		projectPromptsCmd, projectDeleteCmd, projectResetCmd)
	rootCmd.AddCommand(projectCmd)
}
