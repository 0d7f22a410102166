// Package scheduler runs the background jobs on fixed intervals.
package scheduler
