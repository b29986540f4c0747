// Package errors provides classified error primitives used across docgate.
//
// Run failures are classified into provision, dependency and generation
// categories; infrastructure errors use the remaining categories. Adapters
// map classified errors to CLI exit codes and HTTP responses.
//
// Example usage:
//
//	err := errors.GenerationError("documentation generator emitted warnings").
//		WithContext("step", "Build documentation").
//		WithContext("warnings", 3).
//		Build()
package errors
