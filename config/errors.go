package config

import "github.com/pkg/errors"

// Sentinel errors for package config.
var (
	ErrInvalidSize = errors.New("invalid size")
	ErrInvalidMode = errors.New("invalid mode")
)
