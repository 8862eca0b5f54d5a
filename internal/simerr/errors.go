// Package simerr defines the error kinds a simulation run can fail with.
// All of them are fatal: callers match them with errors.Is and abort.
package simerr

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrConfiguration reports invalid or missing parameters at initialization.
	ErrConfiguration = goerr.New("invalid configuration")

	// ErrStrategy reports an unregistered or malformed strategy reference.
	ErrStrategy = goerr.New("invalid strategy")

	// ErrNumeric reports a draw or update that produced a non-finite or out-of-domain value.
	ErrNumeric = goerr.New("numeric failure")

	// ErrFinished is returned when stepping a simulation that has already been finalized.
	ErrFinished = goerr.New("simulation finished")
)

// Config wraps ErrConfiguration with a message and context values.
func Config(msg string, opts ...goerr.Option) error {
	return goerr.Wrap(ErrConfiguration, msg, opts...)
}

// Strategy wraps ErrStrategy.
func Strategy(msg string, opts ...goerr.Option) error {
	return goerr.Wrap(ErrStrategy, msg, opts...)
}

// Numeric wraps ErrNumeric.
func Numeric(msg string, opts ...goerr.Option) error {
	return goerr.Wrap(ErrNumeric, msg, opts...)
}
