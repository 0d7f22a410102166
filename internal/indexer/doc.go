// Package indexer queries Torznab indexers and turns their results into
// enriched candidate releases.
package indexer
