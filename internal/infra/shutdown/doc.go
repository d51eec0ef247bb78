// Package shutdown provides graceful shutdown handling.
//
// A Handler collects shutdown hooks during startup and runs them in
// reverse order once a termination signal arrives, bounded by a
// timeout.
package shutdown
