package model

import "github.com/rotisserie/eris"

// Sentinel errors shared across the fusion pipeline. Callers wrap them with
// eris and match with errors.Is.
var (
	// ErrInvalidIdentity marks a malformed legal identifier (CNPJ with the
	// wrong number of digits). The observation is regrouped by another scheme.
	ErrInvalidIdentity = eris.New("invalid identity")

	// ErrSourceUnavailable marks a collection stage that failed or timed out.
	// It is logged and never aborts a run.
	ErrSourceUnavailable = eris.New("source unavailable")

	// ErrEmptyCriteria is returned when no search criteria were supplied.
	ErrEmptyCriteria = eris.New("empty criteria")

	// ErrInvalidCriteria is returned when criteria name nothing to search for.
	ErrInvalidCriteria = eris.New("invalid criteria")

	// ErrNoSources is returned when no collector is configured.
	ErrNoSources = eris.New("no sources configured")
)
