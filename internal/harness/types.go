package harness

import (
	"fmt"

	"github.com/roach88/storekit/internal/ir"
)

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Step  int    `json:"step"`
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Steps holds each step's value or error, in order.
	Steps []StepResult `json:"steps"`

	// Trace is the registry's trace after the last step.
	Trace []ir.TraceEntry `json:"trace"`

	// Errors contains failed expectations and assertions.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Trace:  []ir.TraceEntry{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddErrorf is AddError with formatting.
func (r *Result) AddErrorf(format string, args ...any) {
	r.AddError(fmt.Sprintf(format, args...))
}
