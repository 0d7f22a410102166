// Package testsupport holds fixtures shared by package tests: a migrated
// temp database, a test config and in-memory fakes for the torrent client
// and the metadata provider.
package testsupport
