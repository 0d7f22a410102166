// Package queue persists accepted releases and guards their lifecycle.
//
// Statuses move queued -> downloading -> {paused, completed, failed}, with
// paused <-> downloading allowed in both directions. add_failed marks a
// release the torrent client refused at submission time.
package queue
