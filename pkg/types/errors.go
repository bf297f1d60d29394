// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks configuration or input rejected before a run starts.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderFailure marks a single failed call to an external capability.
	// Callers isolate it to the affected candidate.
	ErrProviderFailure = errors.New("provider failure")

	// ErrMalformedResponse marks a provider reply that could not be parsed.
	// It wraps ErrProviderFailure.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrProviderFailure)

	// ErrProvidersUnavailable marks a stage in which every provider call failed.
	ErrProvidersUnavailable = errors.New("all provider calls failed")
)
