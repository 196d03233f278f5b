package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	goyaml "github.com/goccy/go-yaml"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/codescope"
	"github.com/agentstation/codescope/definition"
	"github.com/agentstation/codescope/fallback"
	"github.com/agentstation/codescope/internal/config"
	"github.com/agentstation/codescope/llm"
	"github.com/agentstation/codescope/middleware"
)

// errNoGenerator is returned by the generator used for offline commands.
var errNoGenerator = errors.New("no text generator configured")

// offlineGenerator lets graph and validate compile workflows without an API key.
var offlineGenerator = codescope.GeneratorFunc(func(context.Context, string) (string, error) {
	return "", errNoGenerator
})

// expandPath expands ~ to home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// loadConfig loads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	path, err := expandPath(configPath)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if workflowPath != "" {
		cfg.Workflow = workflowPath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// loadDefinition parses the descriptor at path, or the built-in one when
// path is empty.
func loadDefinition(path string) (*definition.Definition, error) {
	if path == "" {
		return definition.Default()
	}
	expanded, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}
	return definition.ParseFile(expanded)
}

// newGenerator creates the rate-limited model client. Fallback models are
// chained behind the primary one.
func newGenerator(cfg *config.Config) (codescope.Generator, error) {
	client, err := llm.NewClient(cfg.LLM())
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	var gen codescope.Generator = client
	if len(cfg.FallbackModels) > 0 {
		chain := fallback.NewChain("models").
			Add(cfg.Model, client).
			WithLinkTimeout(cfg.RequestTimeout)
		for _, model := range cfg.FallbackModels {
			llmCfg := cfg.LLM()
			llmCfg.Model = model
			fc, err := llm.NewClient(llmCfg)
			if err != nil {
				return nil, fmt.Errorf("create fallback client %s: %w", model, err)
			}
			chain.Add(model, fc)
		}
		gen = chain
	}
	return llm.RateLimited(gen, cfg.RateLimit, cfg.RateBurst), nil
}

// buildWorkflow compiles def with the runtime settings of cfg. Task metrics
// are registered with reg when it is non-nil.
func buildWorkflow(cfg *config.Config, def *definition.Definition, gen codescope.Generator, logger *slog.Logger, reg prometheus.Registerer) (*codescope.Workflow, error) {
	wlogger := codescope.NewSlogLogger(logger)

	mws := []middleware.Middleware{
		middleware.Tracing(nil),
		middleware.Logging(wlogger),
	}
	if reg != nil {
		mws = append(mws, middleware.Metrics(middleware.NewPrometheusCollector(reg)))
	}
	if cfg.BreakerThreshold > 0 {
		mws = append(mws, middleware.CircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown))
	}

	wopts := []codescope.WorkflowOption{codescope.WithLogger(wlogger)}
	if cfg.Degrade {
		wopts = append(wopts, codescope.WithDegradation(true))
	}

	wf, err := definition.Builder{
		Generator: gen,
		CallOptions: []codescope.CallOption{
			codescope.WithTimeout(callTimeout(cfg)),
			codescope.WithRetry(cfg.MaxRetries, cfg.RetryDelay),
		},
		Middleware:      mws,
		WorkflowOptions: wopts,
	}.Build(def)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}
	return wf, nil
}

// callTimeout bounds one logical generator call. With fallback models every
// link gets the request timeout, so the call may take one per link.
func callTimeout(cfg *config.Config) time.Duration {
	return cfg.RequestTimeout * time.Duration(1+len(cfg.FallbackModels))
}

// readInput reads the snippet from the named file, or from stdin when the
// argument is missing or "-".
func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || args[0] == stdinArg {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	path, err := expandPath(args[0])
	if err != nil {
		return "", fmt.Errorf("expand path: %w", err)
	}
	data, err := os.ReadFile(path) // #nosec G304 - user-provided source file
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", args[0])
		}
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// writeReport renders the report in the requested format. A non-empty query
// is a JSONPath expression evaluated against the JSON form of the report.
func writeReport(w io.Writer, report *codescope.Report, format, query string) error {
	if query != "" {
		return writeQuery(w, report, query)
	}

	switch format {
	case jsonFormat:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case yamlFormat:
		data, err := goyaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = fmt.Fprint(w, string(data))
		return err

	case textFormat, "":
		for _, review := range report.Reviews() {
			fmt.Fprintf(w, "%s\n\n", review)
		}
		if len(report.Unavailable) > 0 {
			fmt.Fprintf(w, "⚠️ Unavailable analyses: %s\n\n", strings.Join(report.Unavailable, ", "))
		}
		_, err := fmt.Fprintf(w, "🏆 Final Report\n%s\n", report.Output)
		return err

	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func writeQuery(w io.Writer, report *codescope.Report, query string) error {
	expr, err := jp.ParseString(query)
	if err != nil {
		return fmt.Errorf("invalid JSONPath expression: %w", err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse report: %w", err)
	}

	for _, match := range expr.Get(doc) {
		if s, ok := match.(string); ok {
			fmt.Fprintln(w, s)
			continue
		}
		out, err := json.MarshalIndent(match, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal query result: %w", err)
		}
		fmt.Fprintln(w, string(out))
	}
	return nil
}
