// Package check runs the documentation build check once: it acquires a
// workspace, executes the configured steps and condenses the step results
// into a Report with a single exit code and failure category.
package check
