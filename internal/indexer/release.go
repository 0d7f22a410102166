package indexer

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/moistari/rls"

	"github.com/scenarr/scenarr/internal/textnorm"
)

// Release is a candidate release returned by an indexer. It is not modified
// after the indexer produces it; callers copy before annotating.
type Release struct {
	Title       string
	Size        int64
	Seeders     int
	Leechers    int
	Quality     string // normalized resolution label, e.g. 1080p
	Source      string // normalized source label, e.g. webdl
	Group       string
	Indexer     string
	ContentHash string // lowercase hex info-hash, empty when unknown
	DownloadURL string
	MagnetURL   string
	InfoURL     string
	PublishDate time.Time
	ReleaseDate *time.Time
	SceneID     string // inferred scene, set by the search orchestrator
}

// SubmitURL is what the torrent client should be given.
func (r Release) SubmitURL() string {
	if r.MagnetURL != "" {
		return r.MagnetURL
	}
	return r.DownloadURL
}

var resolutionRegex = regexp.MustCompile(`(?i)\b(2160|1080|720|576|540|480|360)[pi]\b`)

// Enrich fills Quality, Source, Group and ReleaseDate from the title.
func (r *Release) Enrich() {
	parsed := rls.ParseString(r.Title)

	r.Quality = NormalizeQuality(parsed.Resolution)
	if r.Quality == "" {
		if m := resolutionRegex.FindStringSubmatch(r.Title); m != nil {
			r.Quality = m[1] + "p"
		}
	}
	r.Source = NormalizeSource(parsed.Source)
	if r.Group == "" {
		r.Group = parsed.Group
	}

	if d, ok := textnorm.ExtractDate(r.Title); ok {
		r.ReleaseDate = &d
	} else if parsed.Year > 0 && parsed.Month > 0 && parsed.Day > 0 {
		d := time.Date(parsed.Year, time.Month(parsed.Month), parsed.Day, 0, 0, 0, 0, time.UTC)
		r.ReleaseDate = &d
	}
}

// NormalizeQuality maps resolution labels onto 2160p/1080p/720p/...; unknown input yields "".
func NormalizeQuality(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "":
		return ""
	case "4k", "uhd", "2160p", "2160i":
		return "2160p"
	case "fhd", "1080p", "1080i":
		return "1080p"
	case "hd", "720p":
		return "720p"
	case "sd", "480p", "480i", "576p", "576i":
		return "480p"
	}
	if m := resolutionRegex.FindStringSubmatch(l); m != nil {
		return m[1] + "p"
	}
	return l
}

// NormalizeSource maps source labels such as "WEB-DL" or "WEBRip" onto a small fixed set.
func NormalizeSource(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.NewReplacer("-", "", ".", "", " ", "", "_", "").Replace(l)
	switch l {
	case "":
		return ""
	case "web", "webdl", "webhd":
		return "webdl"
	case "webrip":
		return "webrip"
	case "bluray", "bdrip", "brrip", "bd", "uhdbluray":
		return "bluray"
	case "hdtv", "tv":
		return "hdtv"
	case "dvd", "dvdrip", "dvdr":
		return "dvd"
	}
	return l
}

// HashFromMagnet extracts the lowercase hex info-hash from a magnet URI.
func HashFromMagnet(uri string) (string, error) {
	m, err := metainfo.ParseMagnetUri(uri)
	if err != nil {
		return "", fmt.Errorf("parse magnet: %w", err)
	}
	if m.InfoHash == (metainfo.Hash{}) {
		return "", fmt.Errorf("magnet has no info-hash")
	}
	return strings.ToLower(m.InfoHash.HexString()), nil
}

// HashFromTorrent computes the info-hash of a .torrent payload.
func HashFromTorrent(r io.Reader) (string, error) {
	mi, err := metainfo.Load(r)
	if err != nil {
		return "", fmt.Errorf("parse torrent: %w", err)
	}
	return strings.ToLower(mi.HashInfoBytes().HexString()), nil
}

// NormalizeHash lowercases a hex info-hash and rejects anything else.
func NormalizeHash(hash string) string {
	h := strings.ToLower(strings.TrimSpace(hash))
	if len(h) != 40 {
		return ""
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return ""
		}
	}
	return h
}
