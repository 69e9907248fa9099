// Package worker is the Session 0 side of the cross-session executor: the
// process instance spawned by the service control manager under LocalSystem.
// It re-points its standard streams at the originator's named pipes, runs
// the embedded payload under a service handler, and reports lifecycle
// through the status ledger.
package worker

// Payload is the sub-routine transported into Session 0. It receives the
// tokens the user appended after the recognized flags, writes UTF-8 text to
// standard output and diagnostics to standard error, and returns the
// process exit code.
type Payload func(args []string) int
