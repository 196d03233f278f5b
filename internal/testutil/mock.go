// Package testutil provides testing utilities for codescope.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Rule scripts the stub's answer for prompts containing Match.
type Rule struct {
	// Match is a substring of the prompt. An empty Match matches every prompt.
	Match string
	// Response is returned when Err is nil.
	Response string
	Err      error
	// Delay is waited before answering, honoring context cancellation.
	Delay time.Duration
	// Gate, when non-nil, blocks the answer until it is closed.
	Gate <-chan struct{}
	// Times limits how many calls the rule answers (0 = unlimited).
	Times int

	hits int
}

// Call records one Generate invocation.
type Call struct {
	Prompt string
	Start  time.Time
	End    time.Time
}

// StubGenerator is a scripted text generator. Prompts without a matching
// rule are echoed back.
type StubGenerator struct {
	mu    sync.Mutex
	rules []*Rule
	calls []Call
}

// NewStubGenerator creates a stub that echoes every prompt.
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{}
}

// Add registers a rule. Rules are matched in registration order.
func (s *StubGenerator) Add(rule Rule) *StubGenerator {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rule
	s.rules = append(s.rules, &r)
	return s
}

// On answers prompts containing match with response.
func (s *StubGenerator) On(match, response string) *StubGenerator {
	return s.Add(Rule{Match: match, Response: response})
}

// OnError fails prompts containing match with err.
func (s *StubGenerator) OnError(match string, err error) *StubGenerator {
	return s.Add(Rule{Match: match, Err: err})
}

// Generate implements the generator contract.
func (s *StubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	rule := s.match(prompt)

	response, err := prompt, error(nil)
	if rule != nil {
		response, err = rule.Response, rule.Err
		if werr := wait(ctx, rule); werr != nil {
			response, err = "", werr
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Prompt: prompt, Start: start, End: time.Now()})
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	return response, nil
}

func (s *StubGenerator) match(prompt string) *Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rule := range s.rules {
		if rule.Times > 0 && rule.hits >= rule.Times {
			continue
		}
		if rule.Match == "" || strings.Contains(prompt, rule.Match) {
			rule.hits++
			return rule
		}
	}
	return nil
}

func wait(ctx context.Context, rule *Rule) error {
	if rule.Gate != nil {
		select {
		case <-rule.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if rule.Delay > 0 {
		timer := time.NewTimer(rule.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Calls returns all recorded calls in completion order.
func (s *StubGenerator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]Call, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// CallsMatching returns the recorded calls whose prompt contains substr.
func (s *StubGenerator) CallsMatching(substr string) []Call {
	var matched []Call
	for _, call := range s.Calls() {
		if strings.Contains(call.Prompt, substr) {
			matched = append(matched, call)
		}
	}
	return matched
}

// Reset clears rules and recorded calls.
func (s *StubGenerator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = nil
	s.calls = nil
}
