package errors

import (
	"context"
	"errors"
	"sort"
)

// Class is the outcome of classifying a task error.
type Class int

const (
	ClassNone Class = iota
	ClassRecoverable
	ClassFatal
)

// String returns the string representation of the Class
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRecoverable:
		return "recoverable"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Policy decides which errors a task run may survive. The same policy applies
// to every task: an error is recoverable when its ErrorType is in the policy,
// fatal otherwise. Context cancellation is never an error.
type Policy struct {
	recoverable map[ErrorType]bool
}

// NewPolicy creates a policy that treats the given error types as recoverable.
func NewPolicy(types ...ErrorType) Policy {
	p := Policy{recoverable: make(map[ErrorType]bool, len(types))}
	for _, t := range types {
		p.recoverable[t] = true
	}
	return p
}

// DefaultPolicy treats compile errors as recoverable and everything else as
// fatal.
func DefaultPolicy() Policy {
	return NewPolicy(ErrorTypeCompile)
}

// PolicyFromStrings builds a policy from configuration values.
func PolicyFromStrings(values []string) (Policy, error) {
	types := make([]ErrorType, 0, len(values))
	for _, v := range values {
		t, err := ParseErrorType(v)
		if err != nil {
			return Policy{}, err
		}
		types = append(types, t)
	}
	return NewPolicy(types...), nil
}

// Classify returns the class of err under the policy.
func (p Policy) Classify(err error) Class {
	if err == nil || errors.Is(err, context.Canceled) {
		return ClassNone
	}
	if p.recoverable[TypeOf(err)] {
		return ClassRecoverable
	}
	return ClassFatal
}

// Recoverable lists the recoverable error types in a stable order.
func (p Policy) Recoverable() []ErrorType {
	out := make([]ErrorType, 0, len(p.recoverable))
	for t := range p.recoverable {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
