package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags.
	verbose      bool
	output       string
	configPath   string
	workflowPath string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "codescope",
	Short: "Parallel LLM review of source code",
	Long: `Codescope reviews a code snippet along independent axes (time complexity,
space complexity and readability by default) in parallel, then asks a
synthesizer to combine the reviews into a scored final report.

Configuration comes from an optional YAML file and CODESCOPE_* environment
variables. The API key is read from GROQ_API_KEY, CODESCOPE_API_KEY or the
file /run/secrets/groq_api_key.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", textFormat, "Output format (text, json, yaml)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&workflowPath, "workflow", "w", "", "Path to a workflow descriptor (default: built-in review)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
