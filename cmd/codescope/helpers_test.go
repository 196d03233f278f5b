package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/codescope"
	"github.com/agentstation/codescope/batch"
	"github.com/agentstation/codescope/definition"
	"github.com/agentstation/codescope/internal/config"
	"github.com/agentstation/codescope/internal/testutil"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("Failed to get home directory: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "tilde only", input: "~", expected: home},
		{name: "tilde with path", input: "~/code/main.cpp", expected: filepath.Join(home, "code", "main.cpp")},
		{name: "absolute path", input: "/absolute/path", expected: "/absolute/path"},
		{name: "relative path", input: "relative/path", expected: "relative/path"},
		{name: "tilde inside name", input: "a~/b", expected: "a~/b"},
		{name: "empty path", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.input)
			if err != nil {
				t.Fatalf("expandPath() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("expandPath() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.cpp")
	if err := os.WriteFile(path, []byte(testutil.BubbleSortSnippet), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    string
		wantErr string
	}{
		{name: "no args reads stdin", stdin: testutil.AddSnippet, want: testutil.AddSnippet},
		{name: "dash reads stdin", args: []string{"-"}, stdin: "int x;", want: "int x;"},
		{name: "file", args: []string{path}, want: testutil.BubbleSortSnippet},
		{name: "missing file", args: []string{filepath.Join(dir, "nope.cpp")}, wantErr: "file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readInput(tt.args, strings.NewReader(tt.stdin))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("readInput() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("readInput() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("readInput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func sampleReport() *codescope.Report {
	return &codescope.Report{
		RunID:    "run-1",
		Workflow: "code-review",
		Results: []codescope.LabeledResult{
			{Label: "time", Heading: "⏱️ **Time Complexity:**", Text: "O(1)"},
			{Label: "space", Heading: "💾 **Space Complexity:**", Text: "O(1)"},
		},
		Output: "Score: 10/10",
	}
}

func TestWriteReport(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		query    string
		mutate   func(*codescope.Report)
		contains []string
		exact    string
		wantErr  bool
	}{
		{
			name:   "text",
			format: textFormat,
			contains: []string{
				"⏱️ **Time Complexity:**\nO(1)\n\n💾 **Space Complexity:**\nO(1)\n\n",
				"🏆 Final Report\nScore: 10/10\n",
			},
		},
		{
			name:     "text with unavailable axes",
			format:   textFormat,
			mutate:   func(r *codescope.Report) { r.Unavailable = []string{"readability"} },
			contains: []string{"Unavailable analyses: readability"},
		},
		{
			name:     "yaml",
			format:   yamlFormat,
			contains: []string{"run_id: run-1", "final_report: Score: 10/10", "label: space"},
		},
		{
			name:   "query string",
			format: textFormat,
			query:  "$.final_report",
			exact:  "Score: 10/10\n",
		},
		{
			name:  "query many",
			query: "$.analyses[*].label",
			exact: "time\nspace\n",
		},
		{
			name:     "query object",
			query:    "$.analyses[0]",
			contains: []string{`"label": "time"`, `"text": "O(1)"`},
		},
		{
			name:    "invalid query",
			query:   "$.analyses[0",
			wantErr: true,
		},
		{
			name:    "unknown format",
			format:  "toml",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := sampleReport()
			if tt.mutate != nil {
				tt.mutate(report)
			}

			var buf bytes.Buffer
			err := writeReport(&buf, report, tt.format, tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("writeReport() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			got := buf.String()
			if tt.exact != "" && got != tt.exact {
				t.Errorf("writeReport() = %q, want %q", got, tt.exact)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("writeReport() output missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeReport(&buf, sampleReport(), jsonFormat, ""); err != nil {
		t.Fatalf("writeReport() error = %v", err)
	}

	var got struct {
		RunID       string                    `json:"run_id"`
		Analyses    []codescope.LabeledResult `json:"analyses"`
		FinalReport string                    `json:"final_report"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.RunID != "run-1" || got.FinalReport != "Score: 10/10" || len(got.Analyses) != 2 {
		t.Errorf("unexpected report: %+v", got)
	}
}

func TestLoadDefinition(t *testing.T) {
	def, err := loadDefinition("")
	if err != nil {
		t.Fatalf("loadDefinition() error = %v", err)
	}
	if def.Name != "code-review" {
		t.Errorf("built-in workflow name = %q", def.Name)
	}

	path := filepath.Join(t.TempDir(), "review.yaml")
	if err := os.WriteFile(path, []byte("name: x\ntasks: []\nsynthesizer:\n  prompt: p\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadDefinition(path); !errors.Is(err, definition.ErrInvalid) {
		t.Errorf("loadDefinition() error = %v, want ErrInvalid", err)
	}
}

func TestBuildWorkflow(t *testing.T) {
	def, err := definition.Default()
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.MaxRetries = 0
	cfg.BreakerThreshold = 3

	stub := testutil.NewStubGenerator().
		On("ONLY for **Time Complexity**", "O(n^2)").
		On("ONLY for **Space Complexity**", "O(1)").
		On("ONLY for **Readability", "Rename variables").
		On("Competitive Programming Coach", "Score: 6/10")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	wf, err := buildWorkflow(cfg, def, stub, logger, reg)
	if err != nil {
		t.Fatalf("buildWorkflow() error = %v", err)
	}

	report, err := wf.Run(context.Background(), testutil.BubbleSortSnippet)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Output != "Score: 6/10" {
		t.Errorf("Output = %q", report.Output)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() == "codescope_task_executions_total" {
			found = true
		}
	}
	if !found {
		t.Error("task metrics not registered")
	}
}

func TestBuildWorkflowDegraded(t *testing.T) {
	def, err := definition.Default()
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.MaxRetries = 0
	cfg.Degrade = true

	stub := testutil.NewStubGenerator().
		OnError("ONLY for **Readability", errors.New("boom")).
		On("Competitive Programming Coach", "Score: 7/10")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wf, err := buildWorkflow(cfg, def, stub, logger, nil)
	if err != nil {
		t.Fatalf("buildWorkflow() error = %v", err)
	}

	report, err := wf.Run(context.Background(), testutil.AddSnippet)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Unavailable) != 1 || report.Unavailable[0] != "readability" {
		t.Errorf("Unavailable = %v", report.Unavailable)
	}
}

func TestCompileOffline(t *testing.T) {
	def, err := definition.Default()
	if err != nil {
		t.Fatal(err)
	}
	wf, err := compileOffline(def)
	if err != nil {
		t.Fatalf("compileOffline() error = %v", err)
	}

	graph := wf.Mermaid()
	for _, want := range []string{"dispatcher --> time_agent", "readability_agent --> synthesizer"} {
		if !strings.Contains(graph, want) {
			t.Errorf("Mermaid() missing %q:\n%s", want, graph)
		}
	}

	_, err = wf.Run(context.Background(), testutil.AddSnippet)
	if !errors.Is(err, errNoGenerator) {
		t.Errorf("Run() error = %v, want errNoGenerator", err)
	}
}

func TestReadItems(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.cpp")
	b := filepath.Join(dir, "b.cpp")
	for path, code := range map[string]string{a: "int a;", b: "int b;"} {
		if err := os.WriteFile(path, []byte(code), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	got, err := readItems([]string{a, b}, strings.NewReader(""))
	if err != nil {
		t.Fatalf("readItems() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != a || got[1].Code != "int b;" {
		t.Errorf("readItems() = %+v", got)
	}

	got, err = readItems(nil, strings.NewReader("int c;"))
	if err != nil {
		t.Fatalf("readItems() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != stdinArg || got[0].Code != "int c;" {
		t.Errorf("readItems() = %+v", got)
	}

	if _, err := readItems([]string{a, "-"}, strings.NewReader("")); err == nil {
		t.Error("readItems() accepted stdin with other files")
	}
}

func TestWriteOutcomes(t *testing.T) {
	outcomes := []batch.Outcome{
		{Name: "a.cpp", Report: sampleReport()},
		{Name: "b.cpp", Err: errors.New("boom"), Error: "boom"},
	}

	var buf bytes.Buffer
	if err := writeOutcomes(&buf, outcomes, textFormat, ""); err != nil {
		t.Fatalf("writeOutcomes() error = %v", err)
	}
	for _, want := range []string{"=== a.cpp ===", "🏆 Final Report\nScore: 10/10", "=== b.cpp ===", "✗ b.cpp: boom"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := writeOutcomes(&buf, outcomes, jsonFormat, ""); err != nil {
		t.Fatalf("writeOutcomes() error = %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[1]["error"] != "boom" {
		t.Errorf("unexpected JSON: %s", buf.String())
	}

	buf.Reset()
	if err := writeOutcomes(&buf, outcomes, textFormat, "$.final_report"); err != nil {
		t.Fatalf("writeOutcomes() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Score: 10/10\n") {
		t.Errorf("query output = %q", buf.String())
	}
}

func TestWriteVersion(t *testing.T) {
	info, err := currentBuildInfo()
	if err != nil {
		t.Fatalf("currentBuildInfo() error = %v", err)
	}

	var buf bytes.Buffer
	if err := writeVersion(&buf, info, textFormat); err != nil {
		t.Fatalf("writeVersion() error = %v", err)
	}
	for _, want := range []string{
		"codescope dev",
		"model:      llama-3.3-70b-versatile",
		"workflow:   code-review (time, space, readability)",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := writeVersion(&buf, info, jsonFormat); err != nil {
		t.Fatalf("writeVersion() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["defaultModel"] != "llama-3.3-70b-versatile" || decoded["defaultWorkflow"] != "code-review" {
		t.Errorf("unexpected JSON: %s", buf.String())
	}
}

func TestCallTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.RequestTimeout = 10 * time.Second
	if got := callTimeout(cfg); got != 10*time.Second {
		t.Errorf("callTimeout() = %v, want 10s", got)
	}

	cfg.FallbackModels = []string{"a", "b"}
	if got := callTimeout(cfg); got != 30*time.Second {
		t.Errorf("callTimeout() with fallbacks = %v, want 30s", got)
	}

	cfg.RequestTimeout = 0
	if got := callTimeout(cfg); got != 0 {
		t.Errorf("callTimeout() without deadline = %v, want 0", got)
	}
}
