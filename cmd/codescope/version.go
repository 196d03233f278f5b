package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/agentstation/codescope/definition"
	"github.com/agentstation/codescope/llm"
)

// buildInfo describes the binary and the review it runs without configuration.
type buildInfo struct {
	Version   string   `json:"version" yaml:"version"`
	Commit    string   `json:"commit" yaml:"commit"`
	BuildDate string   `json:"buildDate" yaml:"buildDate"`
	GoVersion string   `json:"goVersion" yaml:"goVersion"`
	Platform  string   `json:"platform" yaml:"platform"`
	Model     string   `json:"defaultModel" yaml:"defaultModel"`
	Workflow  string   `json:"defaultWorkflow" yaml:"defaultWorkflow"`
	Axes      []string `json:"axes" yaml:"axes"`
}

func currentBuildInfo() (buildInfo, error) {
	info := buildInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: goVersion,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Model:     llm.DefaultModel,
	}
	if info.GoVersion == "unknown" {
		info.GoVersion = runtime.Version()
	}

	def, err := definition.Default()
	if err != nil {
		return info, err
	}
	info.Workflow = def.Name
	info.Axes = def.Labels()
	return info, nil
}

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and default review settings",
	Example: `  codescope version
  codescope version --output json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := currentBuildInfo()
		if err != nil {
			return err
		}
		return writeVersion(cmd.OutOrStdout(), info, output)
	},
}

func writeVersion(w io.Writer, info buildInfo, format string) error {
	switch format {
	case jsonFormat:
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case yamlFormat:
		data, err := yaml.Marshal(info)
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	}

	fmt.Fprintf(w, "codescope %s (%s)\n", info.Version, info.Platform)
	if info.Version != "dev" {
		fmt.Fprintf(w, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(w, "  built:      %s\n", info.BuildDate)
	}
	fmt.Fprintf(w, "  go version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "  model:      %s\n", info.Model)
	_, err := fmt.Fprintf(w, "  workflow:   %s (%s)\n", info.Workflow, strings.Join(info.Axes, ", "))
	return err
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
