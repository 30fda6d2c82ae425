// Package util provides utility functions for pkg2sqfs.
package util

import "errors"

// Sentinel errors for package util.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// File and directory errors
	ErrExpectedFile = errors.New("expected file, got directory")

	// Bucket errors
	ErrNoBuckets = errors.New("bucket count must be positive")
)
