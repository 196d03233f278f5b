package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// graphCmd prints the workflow topology.
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the workflow topology as a Mermaid flowchart",
	Example: `  codescope graph
  codescope graph --workflow review.yaml > graph.mmd`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := loadDefinition(workflowPath)
		if err != nil {
			return err
		}
		wf, err := compileOffline(def)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output == jsonFormat {
			data, err := json.MarshalIndent(map[string]any{
				"name":    wf.Name(),
				"tasks":   wf.Labels(),
				"mermaid": wf.Mermaid(),
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal graph: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprint(out, wf.Mermaid())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
