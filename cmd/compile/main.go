// Command compile turns a category's curated workbook (a workbook map
// plus its backing xlsx file) into the generated artifacts the harvester
// engine loads at runtime: field_rules.json, known_values.json,
// component_db/*.json, and friends.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/specconverge/compiler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var workbookMapPath string
	var workbookPath string
	var outDir string
	var jsonReport bool

	cmd := &cobra.Command{
		Use:           "compile",
		Short:         "Compile a category's workbook into generated field-rules artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			wm, err := compiler.LoadWorkbookMap(workbookMapPath)
			if err != nil {
				return fmt.Errorf("loading workbook map: %w", err)
			}

			result, err := compiler.Compile(wm, workbookPath)
			if err != nil {
				return fmt.Errorf("compiling workbook: %w", err)
			}

			if err := compiler.WriteArtifacts(outDir, result); err != nil {
				return fmt.Errorf("writing artifacts: %w", err)
			}

			if jsonReport {
				return json.NewEncoder(os.Stdout).Encode(result.Report)
			}
			fmt.Printf("category=%s fields=%d component_types=%d\n",
				result.Report.Category, result.Report.FieldCount, len(result.Report.ComponentTypes))
			for _, w := range result.Report.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workbookMapPath, "workbook-map", "", "path to the workbook map YAML")
	cmd.Flags().StringVar(&workbookPath, "workbook", "", "path to the source xlsx workbook")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory for generated artifacts")
	cmd.Flags().BoolVar(&jsonReport, "json", false, "emit the compile report as JSON")
	cmd.MarkFlagRequired("workbook-map")
	cmd.MarkFlagRequired("workbook")
	cmd.MarkFlagRequired("out")

	return cmd
}
