// Package domain holds the core data model and error taxonomy shared by all
// analytics modules. It has no infrastructure dependencies.
package domain

import "fmt"

// InsufficientHistoryError is returned when a time series is shorter than
// the largest lag or rolling window the feature configuration requires.
type InsufficientHistoryError struct {
	Required  int // Minimum number of rows needed
	Available int // Rows actually present
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: need at least %d rows, have %d", e.Required, e.Available)
}

// FeatureMismatchError is returned when a feature matrix presented at
// inference time does not match the column set/order the model was
// trained with.
type FeatureMismatchError struct {
	Expected []string
	Got      []string
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("feature mismatch: trained on %d columns, got %d", len(e.Expected), len(e.Got))
}

// UntrainedModelError is returned when prediction is requested from a model
// that has not been trained.
type UntrainedModelError struct {
	Model string
}

func (e *UntrainedModelError) Error() string {
	return fmt.Sprintf("model %q is not trained", e.Model)
}

// MalformedRecordError is returned when a loaded order row violates the
// schema contract (unknown categorical code, out-of-range numeric field).
// Dataset load fails hard on the first malformed row.
type MalformedRecordError struct {
	OrderID int64
	Field   string
	Reason  string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed order %d: field %q: %s", e.OrderID, e.Field, e.Reason)
}

// InvalidInputError is returned for numerically invalid optimizer inputs
// (non-positive costs, out-of-range service levels, negative demand).
type InvalidInputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %s=%v: %s", e.Field, e.Value, e.Reason)
}

// NotFoundError is returned when a lookup names an entity with no orders
// in the dataset.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// InvalidWeightsError is returned when supplier scoring weights do not sum
// to 1.0.
type InvalidWeightsError struct {
	Sum float64
}

func (e *InvalidWeightsError) Error() string {
	return fmt.Sprintf("scoring weights must sum to 1.0, got %.4f", e.Sum)
}

// ToolArgumentError is returned when tool-call arguments fail schema
// validation. The agent loop reports it back to the planner as an
// observation rather than aborting the turn.
type ToolArgumentError struct {
	Tool     string
	Argument string
	Reason   string
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("tool %q: argument %q: %s", e.Tool, e.Argument, e.Reason)
}

// PlannerUnavailableError indicates the remote planner could not be reached
// or returned an unusable response. It is handled internally by switching to
// the rule-based fallback and is never surfaced to the end user.
type PlannerUnavailableError struct {
	Cause error
}

func (e *PlannerUnavailableError) Error() string {
	if e.Cause == nil {
		return "planner unavailable"
	}
	return fmt.Sprintf("planner unavailable: %v", e.Cause)
}

func (e *PlannerUnavailableError) Unwrap() error {
	return e.Cause
}
