// Package search turns raw indexer results into releases worth downloading.
//
// An entity search deduplicates by content hash, drops releases that do not
// name the entity, groups the rest by normalized title, matches each group
// against the entity's scenes and picks one release per scene with the
// quality profile. A scene search skips grouping and validates every
// candidate against the single target scene.
package search
