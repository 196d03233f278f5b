package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/agentstation/codescope/batch"
)

var (
	analyzeQuery       string
	analyzeDegrade     bool
	analyzeTimeout     time.Duration
	analyzeConcurrency int
	analyzeFailFast    bool
)

// analyzeCmd reviews snippets from files or stdin.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [file|-]...",
	Short: "Review code snippets",
	Long: `Review a code snippet along every axis of the workflow and print the
individual reviews followed by the synthesized final report.

The snippet is read from the given file, or from standard input when the
argument is omitted or "-". Several files are reviewed concurrently and
reported in argument order.`,
	Example: `  # Review a file
  codescope analyze solution.cpp

  # Review from stdin and print JSON
  cat solution.cpp | codescope analyze --output json

  # Extract the final report only
  codescope analyze solution.cpp --query '$.final_report'

  # Keep going when an axis fails
  codescope analyze solution.cpp --degrade

  # Review a directory of solutions, two at a time
  codescope analyze --concurrency 2 solutions/*.cpp`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeQuery, "query", "q", "", "JSONPath expression applied to the JSON report")
	analyzeCmd.Flags().BoolVar(&analyzeDegrade, "degrade", false, "Synthesize from the axes that succeeded when some fail")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "Deadline for the whole review (0 = none)")
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", batch.DefaultConcurrency, "Files reviewed at the same time")
	analyzeCmd.Flags().BoolVar(&analyzeFailFast, "fail-fast", false, "Stop reviewing further files after the first failure")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if analyzeDegrade {
		cfg.Degrade = true
	}
	logger := cfg.Logger(cmd.ErrOrStderr())
	logger.Debug("configuration loaded", "config", cfg)

	items, err := readItems(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	def, err := loadDefinition(cfg.Workflow)
	if err != nil {
		return err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return err
	}
	wf, err := buildWorkflow(cfg, def, gen, logger, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if analyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, analyzeTimeout)
		defer cancel()
	}

	if len(items) == 1 {
		report, err := wf.Run(ctx, items[0].Code)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), report, output, analyzeQuery)
	}

	opts := []batch.Option{batch.WithConcurrency(analyzeConcurrency)}
	if analyzeFailFast {
		opts = append(opts, batch.WithFailFast())
	}
	outcomes, err := batch.NewProcessor(wf, opts...).Process(ctx, items)
	if werr := writeOutcomes(cmd.OutOrStdout(), outcomes, output, analyzeQuery); werr != nil {
		return werr
	}
	if err != nil {
		return fmt.Errorf("%d of %d reviews failed: %w", len(batch.Failed(outcomes)), len(outcomes), err)
	}
	return nil
}

// readItems reads one item per argument, or a single item from stdin.
func readItems(args []string, stdin io.Reader) ([]batch.Item, error) {
	if len(args) <= 1 {
		code, err := readInput(args, stdin)
		if err != nil {
			return nil, err
		}
		name := stdinArg
		if len(args) == 1 {
			name = args[0]
		}
		return []batch.Item{{Name: name, Code: code}}, nil
	}

	items := make([]batch.Item, 0, len(args))
	for _, arg := range args {
		if arg == stdinArg {
			return nil, fmt.Errorf("stdin cannot be combined with other files")
		}
		code, err := readInput([]string{arg}, stdin)
		if err != nil {
			return nil, err
		}
		items = append(items, batch.Item{Name: arg, Code: code})
	}
	return items, nil
}

// writeOutcomes renders the reviews of several files.
func writeOutcomes(w io.Writer, outcomes []batch.Outcome, format, query string) error {
	if query == "" {
		switch format {
		case jsonFormat:
			data, err := json.MarshalIndent(outcomes, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal reports: %w", err)
			}
			_, err = fmt.Fprintln(w, string(data))
			return err
		case yamlFormat:
			data, err := goyaml.Marshal(outcomes)
			if err != nil {
				return fmt.Errorf("failed to marshal reports: %w", err)
			}
			_, err = fmt.Fprint(w, string(data))
			return err
		}
	}

	for _, o := range outcomes {
		if query == "" {
			fmt.Fprintf(w, "=== %s ===\n", o.Name)
		}
		if o.Err != nil {
			fmt.Fprintf(w, "✗ %s: %s\n\n", o.Name, o.Error)
			continue
		}
		if err := writeReport(w, o.Report, format, query); err != nil {
			return err
		}
		if query == "" {
			fmt.Fprintln(w)
		}
	}
	return nil
}
