// Package handoff moves finished downloads into the library.
package handoff
