// Package metadata fetches scene metadata from a stash-box GraphQL endpoint
// and caches it in the local database.
package metadata
