package definition_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/codescope"
	"github.com/agentstation/codescope/definition"
	"github.com/agentstation/codescope/internal/testutil"
	"github.com/agentstation/codescope/middleware"
)

const minimal = `
name: mini
tasks:
  - label: time
    prompt: "axis=time\n{{.Code}}"
synthesizer:
  prompt: "axis=synthesis\n{{.Reviews}}"
`

func TestDefault(t *testing.T) {
	def, err := definition.Default()
	require.NoError(t, err)

	assert.Equal(t, "code-review", def.Name)
	assert.Equal(t, []string{"time", "space", "readability"}, def.Labels())
	assert.Equal(t, "⏱️ **Time Complexity:**", def.Tasks[0].Heading)
	assert.Equal(t, "💾 **Space Complexity:**", def.Tasks[1].Heading)
	assert.Equal(t, "👀 **Readability:**", def.Tasks[2].Heading)
	assert.Contains(t, def.Tasks[0].Prompt, "{{.Code}}")
	assert.Contains(t, def.Synthesizer.Prompt, "Final Score out of 10")
	assert.Equal(t, "\n\n", def.Synthesizer.Separator)
	assert.Nil(t, def.Defaults, "call settings come from the runtime configuration")
}

func TestDefaultBuildsAndRuns(t *testing.T) {
	def, err := definition.Default()
	require.NoError(t, err)

	stub := testutil.NewStubGenerator().
		On("ONLY for **Time Complexity**", "O(1)").
		On("ONLY for **Space Complexity**", "O(1)").
		On("ONLY for **Readability", "Fine").
		On("Competitive Programming Coach", "Score: 10/10")

	wf, err := definition.Builder{Generator: stub}.Build(def)
	require.NoError(t, err)

	report, err := wf.Run(context.Background(), testutil.AddSnippet)
	require.NoError(t, err)

	assert.Equal(t, "Score: 10/10", report.Output)
	assert.Equal(t, []string{
		"⏱️ **Time Complexity:**\nO(1)",
		"💾 **Space Complexity:**\nO(1)",
		"👀 **Readability:**\nFine",
	}, report.Reviews())

	synth := stub.CallsMatching("Competitive Programming Coach")
	require.Len(t, synth, 1)
	assert.Contains(t, synth[0].Prompt, "Original Code:\n"+testutil.AddSnippet)
	assert.Contains(t, synth[0].Prompt, "⏱️ **Time Complexity:**\nO(1)\n\n💾 **Space Complexity:**\nO(1)")
	assert.NotContains(t, synth[0].Prompt, "could not be produced")
}

func TestDefaultSynthesisMentionsUnavailable(t *testing.T) {
	def, err := definition.Default()
	require.NoError(t, err)
	def.Degrade = true

	stub := testutil.NewStubGenerator().
		OnError("ONLY for **Space Complexity**", &codescope.ServiceError{Kind: codescope.KindService, StatusCode: 400, Cause: errors.New("bad")})

	wf, err := definition.Builder{Generator: stub}.Build(def)
	require.NoError(t, err)

	report, err := wf.Run(context.Background(), testutil.AddSnippet)
	require.NoError(t, err)
	assert.Equal(t, []string{"space"}, report.Unavailable)
	assert.Contains(t, report.Output, "could not be produced (space)")
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "missing tasks",
			yaml:    "name: x\nsynthesizer:\n  prompt: p\n",
			wantMsg: "tasks",
		},
		{
			name:    "empty tasks",
			yaml:    "name: x\ntasks: []\nsynthesizer:\n  prompt: p\n",
			wantMsg: "tasks",
		},
		{
			name:    "unknown field",
			yaml:    minimal + "extra: true\n",
			wantMsg: "extra",
		},
		{
			name:    "bad duration",
			yaml:    strings.Replace(minimal, "    prompt: \"axis=time", "    timeout: soon\n    prompt: \"axis=time", 1),
			wantMsg: "timeout",
		},
		{
			name:    "bad label",
			yaml:    strings.Replace(minimal, "label: time", "label: \"time axis\"", 1),
			wantMsg: "label",
		},
		{
			name: "duplicate labels",
			yaml: `
name: dup
tasks:
  - label: time
    prompt: a
  - label: time
    prompt: b
synthesizer:
  prompt: s
`,
			wantMsg: "duplicate task label",
		},
		{
			name:    "unknown backoff",
			yaml:    minimal + "defaults:\n  retry:\n    max_retries: 1\n    backoff: sideways\n",
			wantMsg: "backoff",
		},
		{
			name:    "negative retries",
			yaml:    minimal + "defaults:\n  retry:\n    max_retries: -1\n",
			wantMsg: "max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := definition.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, definition.ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	def, err := definition.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mini", def.Name)

	_, err = definition.ParseFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBuildCallSettings(t *testing.T) {
	def, err := definition.Parse([]byte(`
name: retrying
defaults:
  timeout: 1s
tasks:
  - label: time
    prompt: "axis=time\n{{.Code}}"
    retry:
      max_retries: 2
      delay: 1ms
  - label: space
    prompt: "axis=space\n{{.Code}}"
    timeout: 20ms
synthesizer:
  prompt: "axis=synthesis\n{{.Reviews}}"
  separator: " | "
`))
	require.NoError(t, err)

	t.Run("task retry", func(t *testing.T) {
		stub := testutil.NewStubGenerator().
			Add(testutil.Rule{Match: "axis=time", Err: &codescope.ServiceError{Kind: codescope.KindRateLimit, StatusCode: 429, Cause: errors.New("slow")}, Times: 2}).
			On("axis=time", "O(1)").
			On("axis=space", "O(1)")

		wf, err := definition.Builder{Generator: stub}.Build(def)
		require.NoError(t, err)

		report, err := wf.Run(context.Background(), testutil.AddSnippet)
		require.NoError(t, err)
		assert.Len(t, stub.CallsMatching("axis=time"), 3)
		assert.Equal(t, "axis=synthesis\nO(1) | O(1)", report.Output)
	})

	t.Run("task timeout", func(t *testing.T) {
		stub := testutil.NewStubGenerator().
			Add(testutil.Rule{Match: "axis=space", Response: "late", Delay: 500 * time.Millisecond})

		wf, err := definition.Builder{Generator: stub}.Build(def)
		require.NoError(t, err)

		_, err = wf.Run(context.Background(), testutil.AddSnippet)
		var we *codescope.WorkflowError
		require.ErrorAs(t, err, &we)
		assert.Equal(t, "space", we.Label)
		var se *codescope.ServiceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, codescope.KindTimeout, se.Kind)
	})
}

func TestBuildLinearBackoff(t *testing.T) {
	def, err := definition.Parse([]byte(minimal + "defaults:\n  retry:\n    max_retries: 2\n    delay: 1ms\n    backoff: linear\n"))
	require.NoError(t, err)
	require.NotNil(t, def.Defaults)
	assert.Equal(t, definition.BackoffLinear, def.Defaults.Retry.Backoff)

	stub := testutil.NewStubGenerator().
		Add(testutil.Rule{Match: "axis=time", Err: &codescope.ServiceError{Kind: codescope.KindTransport, Cause: errors.New("reset")}, Times: 2}).
		On("axis=time", "O(1)")

	wf, err := definition.Builder{Generator: stub}.Build(def)
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), testutil.AddSnippet)
	require.NoError(t, err)
	assert.Len(t, stub.CallsMatching("axis=time"), 3)
}

func TestBuildMiddlewareAndOptions(t *testing.T) {
	def, err := definition.Parse([]byte(minimal))
	require.NoError(t, err)

	var wrapped []string
	mw := func(task codescope.Task) codescope.Task {
		wrapped = append(wrapped, task.Label())
		return task
	}

	var transitions int
	wf, err := definition.Builder{
		Generator:  testutil.NewStubGenerator(),
		Middleware: []middleware.Middleware{mw},
		WorkflowOptions: []codescope.WorkflowOption{
			codescope.WithStateObserver(func(context.Context, string, codescope.State, codescope.State) {
				transitions++
			}),
		},
	}.Build(def)
	require.NoError(t, err)

	assert.Equal(t, []string{"time"}, wrapped)
	assert.Equal(t, "mini", wf.Name())

	_, err = wf.Run(context.Background(), testutil.AddSnippet)
	require.NoError(t, err)
	assert.Equal(t, 4, transitions)
}

func TestBuildErrors(t *testing.T) {
	def, err := definition.Parse([]byte(minimal))
	require.NoError(t, err)

	_, err = definition.Builder{}.Build(def)
	assert.ErrorIs(t, err, codescope.ErrNilGenerator)

	_, err = definition.Builder{Generator: testutil.NewStubGenerator()}.Build(nil)
	assert.Error(t, err)

	bad := *def
	bad.Tasks = []definition.TaskDefinition{{Label: "time", Prompt: "{{.Nope}}"}}
	_, err = definition.Builder{Generator: testutil.NewStubGenerator()}.Build(&bad)
	assert.ErrorContains(t, err, `build task "time"`)
}
