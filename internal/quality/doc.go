// Package quality applies ordered quality profiles to candidate releases.
package quality
