// Package downloader talks to the torrent client.
//
// QBittorrentClient and DelugeClient implement TorrentClient. Neither keeps
// state beyond its HTTP session; the queue is the source of truth.
package downloader
