package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

var (
	datasetName        string
	datasetLeadColumn  string
	datasetEnrichment  []string
	datasetColumnsFlag bool
	datasetFormat      string
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Upload and inspect lead datasets",
}

var datasetUploadCmd = &cobra.Command{
	Use:   "upload <project-id> <file>",
	Short: "Validate and ingest a CSV or XLSX lead dataset",
	Args:  cobra.ExactArgs(2),
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

		data, err := os.ReadFile(args[1])
		if err != nil {
			return eris.Wrap(err, "read dataset file")
		}

		format := datasetFormat
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(args[1]), ".")
		}
		name := datasetName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
		}

		result, err := env.Ingestor.Ingest(cmd.Context(), leadgen.IngestRequest{
			ProjectID:         id,
			Name:              name,
			LeadColumn:        datasetLeadColumn,
			EnrichmentColumns: datasetEnrichment,
			ColumnsExist:      datasetColumnsFlag,
			Format:            format,
			Data:              data,
		})
		if err != nil {
			return eris.Wrap(err, "upload dataset")
		}
		return printJSON(result)
	},
}

var datasetListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List a project's dataset batches",
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
		return printJSON(batches)
	},
}

func init() {
	datasetUploadCmd.Flags().StringVar(&datasetName, "name", "", "dataset name (default: file name)")
	datasetUploadCmd.Flags().StringVar(&datasetLeadColumn, "lead-column", "", "column holding lead names (required)")
	datasetUploadCmd.Flags().StringSliceVar(&datasetEnrichment, "enrichment-columns", nil, "enrichment columns present in the file")
	datasetUploadCmd.Flags().BoolVar(&datasetColumnsFlag, "columns-exist", false, "enrichment columns exist in the file (otherwise a presence column is synthesized)")
	datasetUploadCmd.Flags().StringVar(&datasetFormat, "format", "", "csv or xlsx (default: from file extension)")
	_ = datasetUploadCmd.MarkFlagRequired("lead-column")

	datasetCmd.AddCommand(datasetUploadCmd, datasetListCmd)
	rootCmd.AddCommand(datasetCmd)
}
