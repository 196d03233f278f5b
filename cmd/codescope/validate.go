package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/codescope"
	"github.com/agentstation/codescope/definition"
)

var validatePrintDefault bool

// validateCmd checks a workflow descriptor.
var validateCmd = &cobra.Command{
	Use:   "validate [descriptor]",
	Short: "Validate a workflow descriptor",
	Long: `Validate a workflow descriptor against its schema and compile every prompt
template. Without an argument the --workflow flag or the built-in descriptor
is validated.`,
	Example: `  codescope validate review.yaml

  # Start a custom workflow from the built-in one
  codescope validate --print-default > review.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if validatePrintDefault {
			_, err := out.Write(definition.DefaultYAML())
			return err
		}

		path := workflowPath
		if len(args) == 1 {
			path = args[0]
		}

		def, err := loadDefinition(path)
		if err != nil {
			return err
		}
		wf, err := compileOffline(def)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "✓ workflow %q is valid (%d tasks: %s)\n",
			wf.Name(), len(wf.Labels()), strings.Join(wf.Labels(), ", "))
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validatePrintDefault, "print-default", false, "Print the built-in descriptor and exit")
	rootCmd.AddCommand(validateCmd)
}

// compileOffline builds the workflow without a model client.
func compileOffline(def *definition.Definition) (*codescope.Workflow, error) {
	wf, err := definition.Builder{Generator: offlineGenerator}.Build(def)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}
	return wf, nil
}
