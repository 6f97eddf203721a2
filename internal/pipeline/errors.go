package pipeline

import "errors"

// StepError wraps a step failure with whether the runtime should retry it.
// Steps that hit a transient cloud error (rate limit, eventual-consistency
// lag, lock contention) should return Retryable(err); anything else
// propagates as a permanent failure, per the error propagation policy.
type StepError struct {
	Err       error
	Retryable bool
}

func (e *StepError) Error() string { return e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }

// Retryable wraps err as a retryable step failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Err: err, Retryable: true}
}

// Permanent wraps err as a non-retryable step failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Err: err, Retryable: false}
}

// isRetryable reports whether err should be retried by the runtime. Errors
// not wrapped as a StepError are treated as permanent: steps only know how
// to recover from the transient failures they explicitly flag.
func isRetryable(err error) bool {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Retryable
	}
	return false
}
