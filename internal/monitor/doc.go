// Package monitor keeps queue items in step with the torrent client. It
// pauses stalled transfers, hands finished payloads to the library and
// resubmits items the client never accepted.
package monitor
