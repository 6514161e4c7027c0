package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/celldiag/pkg/celldiag"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Validate or publish the cell graph",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <schema.yaml>",
	Short: "Check a schema file and print its statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := ontology.LoadSchemaYAML(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ontology.NewIndex(s).Statistics())
	},
}

var schemaPushCmd = &cobra.Command{
	Use:   "push <schema.yaml>",
	Short: "Replace the configured schema source with a schema file",
	Long: `Validate a schema file and save it to the configured schema source. With
schema.source: neo4j this replaces the graph stored in Neo4j.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := ontology.LoadSchemaYAML(args[0])
		if err != nil {
			return err
		}
		cfg, log, err := loadSettings()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := cmd.Context()
		src, err := celldiag.SchemaSource(ctx, cfg, log)
		if err != nil {
			return err
		}
		if c, ok := src.(interface{ Close(context.Context) error }); ok {
			defer c.Close(ctx)
		}
		if err := src.Save(ctx, s); err != nil {
			return err
		}
		log.Info("schema pushed", zap.String("source", cfg.Schema.Source), zap.String("version", s.Version))
		fmt.Fprintf(cmd.OutOrStdout(), "pushed schema %s (%d entities, %d relationships) to %s\n",
			s.Version, len(s.Entities), len(s.Relationships), cfg.Schema.Source)
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaValidateCmd, schemaPushCmd)
	rootCmd.AddCommand(schemaCmd)
}
