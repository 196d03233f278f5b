// Package batch reviews many snippets with a bounded number of concurrent
// workflow runs.
package batch

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/codescope"
)

// DefaultConcurrency bounds concurrent runs when no option is given.
const DefaultConcurrency = 4

// Runner runs one review. *codescope.Workflow implements it.
type Runner interface {
	Run(ctx context.Context, input string) (*codescope.Report, error)
}

// Item is one snippet to review.
type Item struct {
	// Name identifies the snippet, usually its file path.
	Name string
	Code string
}

// Outcome is the result of reviewing one item. Exactly one of Report and
// Err is set.
type Outcome struct {
	Name   string            `json:"name" yaml:"name"`
	Report *codescope.Report `json:"report,omitempty" yaml:"report,omitempty"`
	Err    error             `json:"-" yaml:"-"`
	// Error mirrors Err for serialization.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Option configures a Processor.
type Option func(*options)

type options struct {
	maxConcurrency int
	failFast       bool
}

// WithConcurrency sets the maximum number of concurrent runs.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.maxConcurrency = n
	}
}

// WithFailFast stops scheduling new items after the first failure. Items
// that were never started report context.Canceled.
func WithFailFast() Option {
	return func(o *options) {
		o.failFast = true
	}
}

// Processor reviews items with a worker pool.
type Processor struct {
	runner Runner
	opts   options
}

// NewProcessor creates a processor around runner.
func NewProcessor(runner Runner, opts ...Option) *Processor {
	o := options{maxConcurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConcurrency < 1 {
		o.maxConcurrency = 1
	}
	return &Processor{runner: runner, opts: o}
}

// Process reviews every item and returns one outcome per item, in input
// order. The returned error is the first item failure in input order, or
// nil when every item succeeded.
func (p *Processor) Process(ctx context.Context, items []Item) ([]Outcome, error) {
	outcomes := make([]Outcome, len(items))
	for i, item := range items {
		outcomes[i].Name = item.Name
	}
	if len(items) == 0 {
		return outcomes, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan int, len(items))
	for i := range items {
		work <- i
	}
	close(work)

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for w := 0; w < p.opts.maxConcurrency && w < len(items); w++ {
		g.Go(func() error {
			for idx := range work {
				if err := runCtx.Err(); err != nil {
					p.record(&mu, &outcomes[idx], nil, err)
					continue
				}
				report, err := p.runner.Run(runCtx, items[idx].Code)
				p.record(&mu, &outcomes[idx], report, err)
				if err != nil && p.opts.failFast {
					cancel()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			return outcomes, o.Err
		}
	}
	return outcomes, nil
}

func (p *Processor) record(mu *sync.Mutex, o *Outcome, report *codescope.Report, err error) {
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		o.Err = err
		o.Error = err.Error()
		return
	}
	o.Report = report
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Canceled reports whether the outcome was never run because the batch
// was stopped.
func (o Outcome) Canceled() bool {
	return o.Report == nil && errors.Is(o.Err, context.Canceled)
}
