// Package definition loads workflow descriptors from YAML and compiles them
// into codescope workflows.
package definition

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goyaml "github.com/goccy/go-yaml"
	"github.com/xeipuuv/gojsonschema"

	"github.com/agentstation/codescope"
)

var (
	//go:embed default.yaml
	defaultYAML []byte

	//go:embed schema.json
	schemaJSON []byte
)

// ErrInvalid wraps every validation failure of a descriptor.
var ErrInvalid = errors.New("invalid workflow definition")

// Definition is a workflow descriptor.
type Definition struct {
	Name        string              `yaml:"name" json:"name"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string              `yaml:"version,omitempty" json:"version,omitempty"`
	Degrade     bool                `yaml:"degrade,omitempty" json:"degrade,omitempty"`
	Defaults    *CallDefinition     `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Tasks       []TaskDefinition    `yaml:"tasks" json:"tasks"`
	Synthesizer SynthesisDefinition `yaml:"synthesizer" json:"synthesizer"`
}

// CallDefinition holds generator call settings shared by every task and the
// synthesizer.
type CallDefinition struct {
	Timeout string           `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retry   *RetryDefinition `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// TaskDefinition describes one analysis axis.
type TaskDefinition struct {
	Label   string           `yaml:"label" json:"label"`
	Heading string           `yaml:"heading,omitempty" json:"heading,omitempty"`
	Prompt  string           `yaml:"prompt" json:"prompt"`
	Timeout string           `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retry   *RetryDefinition `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// SynthesisDefinition describes the synthesizer.
type SynthesisDefinition struct {
	Prompt    string           `yaml:"prompt" json:"prompt"`
	Separator string           `yaml:"separator,omitempty" json:"separator,omitempty"`
	Timeout   string           `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retry     *RetryDefinition `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// Backoff strategies of a RetryDefinition.
const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
)

// RetryDefinition configures retries of retryable service failures.
type RetryDefinition struct {
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
	Delay      string `yaml:"delay,omitempty" json:"delay,omitempty"`
	// Backoff is exponential (default) or linear.
	Backoff string `yaml:"backoff,omitempty" json:"backoff,omitempty"`
}

// Parse decodes and validates a YAML descriptor.
func Parse(data []byte) (*Definition, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var def Definition
	if err := goyaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseFile reads and parses a descriptor file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-provided workflow file
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Default returns the built-in code review workflow.
func Default() (*Definition, error) {
	return Parse(defaultYAML)
}

// DefaultYAML returns the source of the built-in workflow.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// Validate checks constraints the schema cannot express.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("%w: at least one task is required", ErrInvalid)
	}

	if d.Defaults != nil {
		if err := d.Defaults.validate("defaults"); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(d.Tasks))
	for i, t := range d.Tasks {
		if strings.TrimSpace(t.Label) == "" {
			return fmt.Errorf("%w: task %d: label is required", ErrInvalid, i)
		}
		if seen[t.Label] {
			return fmt.Errorf("%w: duplicate task label %q", ErrInvalid, t.Label)
		}
		seen[t.Label] = true

		if strings.TrimSpace(t.Prompt) == "" {
			return fmt.Errorf("%w: task %q: prompt is required", ErrInvalid, t.Label)
		}
		call := CallDefinition{Timeout: t.Timeout, Retry: t.Retry}
		if err := call.validate("task " + t.Label); err != nil {
			return err
		}
	}

	if strings.TrimSpace(d.Synthesizer.Prompt) == "" {
		return fmt.Errorf("%w: synthesizer prompt is required", ErrInvalid)
	}
	call := CallDefinition{Timeout: d.Synthesizer.Timeout, Retry: d.Synthesizer.Retry}
	return call.validate("synthesizer")
}

// Labels returns the task labels in declaration order.
func (d *Definition) Labels() []string {
	labels := make([]string, len(d.Tasks))
	for i, t := range d.Tasks {
		labels[i] = t.Label
	}
	return labels
}

func (c CallDefinition) validate(owner string) error {
	if _, err := parseDuration(c.Timeout); err != nil {
		return fmt.Errorf("%w: %s: timeout: %v", ErrInvalid, owner, err)
	}
	if c.Retry != nil {
		if c.Retry.MaxRetries < 0 {
			return fmt.Errorf("%w: %s: max_retries must not be negative", ErrInvalid, owner)
		}
		if _, err := parseDuration(c.Retry.Delay); err != nil {
			return fmt.Errorf("%w: %s: retry delay: %v", ErrInvalid, owner, err)
		}
		switch c.Retry.Backoff {
		case "", BackoffExponential, BackoffLinear:
		default:
			return fmt.Errorf("%w: %s: unknown backoff %q", ErrInvalid, owner, c.Retry.Backoff)
		}
	}
	return nil
}

// callOptions converts the settings to codescope options.
func (c *CallDefinition) callOptions() []codescope.CallOption {
	if c == nil {
		return nil
	}
	var opts []codescope.CallOption
	if d, _ := parseDuration(c.Timeout); d > 0 {
		opts = append(opts, codescope.WithTimeout(d))
	}
	if c.Retry != nil {
		delay, _ := parseDuration(c.Retry.Delay)
		if delay == 0 {
			delay = codescope.DefaultRetryDelay
		}
		if c.Retry.Backoff == BackoffLinear {
			opts = append(opts, codescope.WithLinearRetry(c.Retry.MaxRetries, delay))
		} else {
			opts = append(opts, codescope.WithRetry(c.Retry.MaxRetries, delay))
		}
	}
	return opts
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// validateSchema checks the raw document against the embedded JSON Schema.
func validateSchema(data []byte) error {
	doc, err := goyaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
