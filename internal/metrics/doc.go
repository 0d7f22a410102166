// Package metrics exposes Prometheus collectors for matching, queue and job activity.
package metrics
