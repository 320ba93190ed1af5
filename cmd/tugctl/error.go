package main

import "errors"

type usageError struct {
	error
}

func newUsageError(msg string) *usageError {
	return &usageError{error: errors.New(msg)}
}

// cycleError carries a deploy cycle's exit code out through cobra.
type cycleError struct {
	error
	exitCode int
}
