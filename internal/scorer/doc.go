// Package scorer wraps an optional pairwise relevance model with an explicit
// load, use and unload lifecycle and batched, chunked inference.
package scorer
