// Package matcher decides whether a release title corresponds to a known
// scene. Staged is false-positive averse and drives automated queueing;
// TokenSet is the deterministic alternative used when learned scoring is off.
package matcher
