// Package jobs wires searching, queueing and submission into the
// background tasks and the on-demand scene search.
package jobs
