// Package steps executes the ordered steps of a check.
//
// Steps run strictly one after another against a shared State. The first
// failing step halts the sequence and every later step is reported as
// skipped. A step fails when it exits non-zero, exceeds its timeout, or,
// with escalate_warnings, prints any line matching a warning pattern.
//
// Exit codes follow the failing step: its own status for commands, 1 for an
// escalated warning or an internal step failure, 124 for a timeout and 130
// when the run is canceled.
package steps
