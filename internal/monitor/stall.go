package monitor

import "github.com/scenarr/scenarr/internal/downloader"

// StallPolicy holds the stall thresholds.
type StallPolicy struct {
	MinSeeders       int
	MinThroughputKiB int64
}

// IsStalled reports whether a torrent makes no meaningful progress. Any one
// of these is enough: no seeders; actively downloading with zero throughput
// before completion; fewer seeders than the floor while also slower than the
// throughput floor.
func (p StallPolicy) IsStalled(t downloader.ActiveTorrent) bool {
	if t.Seeders == 0 {
		return true
	}
	if t.State.Downloading() && t.Throughput == 0 && t.Progress < 1 {
		return true
	}
	return t.Seeders < p.MinSeeders && t.Throughput < p.MinThroughputKiB*1024
}
