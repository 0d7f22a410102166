package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const torznabFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
<channel>
  <item>
    <title>Brightside.24.03.15.Jane.Doe.Morning.Light.XXX.1080p.WEB-DL.MP4-GRP</title>
    <guid>https://tracker.example/details/1</guid>
    <link>https://prowlarr.example/dl/1</link>
    <pubDate>Fri, 15 Mar 2024 10:00:00 +0000</pubDate>
    <size>1073741824</size>
    <enclosure url="https://prowlarr.example/dl/1" length="1073741824" type="application/x-bittorrent"/>
    <torznab:attr name="seeders" value="12"/>
    <torznab:attr name="peers" value="15"/>
    <torznab:attr name="infohash" value="C12FE1C06BBA254A9DC9F519B335AA7C1367A88A"/>
  </item>
  <item>
    <title>Brightside.24.03.15.Jane.Doe.Morning.Light.XXX.720p.MP4-OTHER</title>
    <guid>magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&amp;dn=morning</guid>
    <link>https://prowlarr.example/dl/2</link>
    <enclosure url="https://prowlarr.example/dl/2" length="536870912" type="application/x-bittorrent"/>
    <torznab:attr name="seeders" value="3"/>
    <torznab:attr name="leechers" value="1"/>
  </item>
</channel>
</rss>`

func TestTorznabSearch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, torznabFeed)
	}))
	defer server.Close()

	idx := NewTorznabIndexer("prowlarr", server.URL+"/api", "secret", []int{6000, 6010})
	results, err := idx.Search(context.Background(), "Jane Doe")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(gotQuery, "apikey=secret") || !strings.Contains(gotQuery, "cat=6000%2C6010") || !strings.Contains(gotQuery, "q=Jane+Doe") {
		t.Fatalf("unexpected query string %q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	first := results[0]
	if first.ContentHash != "c12fe1c06bba254a9dc9f519b335aa7c1367a88a" {
		t.Fatalf("unexpected infohash %q", first.ContentHash)
	}
	if first.Seeders != 12 || first.Leechers != 3 || first.Size != 1073741824 {
		t.Fatalf("unexpected counts: %+v", first)
	}
	if first.Quality != "1080p" || first.Source != "webdl" || first.Indexer != "prowlarr" {
		t.Fatalf("unexpected enrichment: quality=%q source=%q indexer=%q", first.Quality, first.Source, first.Indexer)
	}
	if first.ReleaseDate == nil || first.ReleaseDate.Format(time.DateOnly) != "2024-03-15" {
		t.Fatalf("unexpected release date: %v", first.ReleaseDate)
	}

	second := results[1]
	if second.ContentHash != "0123456789abcdef0123456789abcdef01234567" {
		t.Fatalf("expected hash from magnet guid, got %q", second.ContentHash)
	}
	if !strings.HasPrefix(second.SubmitURL(), "magnet:") {
		t.Fatalf("expected magnet submit url, got %q", second.SubmitURL())
	}
	if second.Size != 536870912 || second.Quality != "720p" {
		t.Fatalf("unexpected second result: %+v", second)
	}
}

func TestTorznabUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	idx := NewTorznabIndexer("down", server.URL, "", nil)
	if _, err := idx.Search(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestTorznabAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><error code="100" description="Invalid API Key"/>`)
	}))
	defer server.Close()

	idx := NewTorznabIndexer("bad-key", server.URL, "wrong", nil)
	_, err := idx.Search(context.Background(), "x")
	if err == nil || errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "Invalid API Key") {
		t.Fatalf("expected non-transient API error, got %v", err)
	}
}

type stubIndexer struct {
	name    string
	results map[string][]Release
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (s *stubIndexer) Name() string               { return s.name }
func (s *stubIndexer) Test(context.Context) error { return nil }
func (s *stubIndexer) Search(_ context.Context, term string) ([]Release, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	return s.results[term], nil
}

func TestManagerSearchAllOrderAndErrors(t *testing.T) {
	slow := &stubIndexer{name: "slow", delay: 20 * time.Millisecond, results: map[string][]Release{
		"Jane Doe": {{Title: "slow-1"}},
		"JD":       {{Title: "slow-alias"}},
	}}
	broken := &stubIndexer{name: "broken", err: fmt.Errorf("%w: connection refused", ErrUnavailable)}
	fast := &stubIndexer{name: "fast", results: map[string][]Release{
		"Jane Doe": {{Title: "fast-1"}, {Title: "fast-2"}},
	}}

	m := NewManager(4, zerolog.Nop())
	m.AddIndexer(slow, 0, 1)
	m.AddIndexer(broken, 0, 1)
	m.AddIndexer(fast, 0, 1)

	results, errs := m.SearchAll(context.Background(), Query{Term: "Jane Doe", Aliases: []string{"JD", "Jane Doe", ""}, IncludeAliases: true})
	titles := make([]string, len(results))
	for i, r := range results {
		titles[i] = r.Title
	}
	want := "slow-1,slow-alias,fast-1,fast-2"
	if got := strings.Join(titles, ","); got != want {
		t.Fatalf("results in wrong order: got %s want %s", got, want)
	}
	if len(errs) != 2 {
		t.Fatalf("expected one failure per term of the broken indexer, got %d", len(errs))
	}
	for _, e := range errs {
		if e.Indexer != "broken" || !errors.Is(e, ErrUnavailable) {
			t.Fatalf("unexpected indexer error: %v", e)
		}
	}
}

func TestManagerWithoutAliases(t *testing.T) {
	idx := &stubIndexer{name: "one", results: map[string][]Release{}}
	m := NewManager(1, zerolog.Nop())
	m.AddIndexer(idx, 0, 1)
	m.SearchAll(context.Background(), Query{Term: "Jane Doe", Aliases: []string{"JD"}})
	if idx.calls.Load() != 1 {
		t.Fatalf("aliases must not be searched when disabled, got %d calls", idx.calls.Load())
	}
}

func TestHashHelpers(t *testing.T) {
	hash, err := HashFromMagnet("magnet:?xt=urn:btih:C12FE1C06BBA254A9DC9F519B335AA7C1367A88A&dn=name")
	if err != nil || hash != "c12fe1c06bba254a9dc9f519b335aa7c1367a88a" {
		t.Fatalf("HashFromMagnet = %q, %v", hash, err)
	}
	if _, err := HashFromMagnet("https://not-a-magnet"); err == nil {
		t.Fatal("expected error for non-magnet")
	}
	if NormalizeHash("xyz") != "" {
		t.Fatal("expected invalid hash to normalize to empty")
	}
}

func TestNormalizeLabels(t *testing.T) {
	cases := map[string]string{"WEB-DL": "webdl", "WEB": "webdl", "WEBRip": "webrip", "BDRip": "bluray", "": ""}
	for in, want := range cases {
		if got := NormalizeSource(in); got != want {
			t.Fatalf("NormalizeSource(%q) = %q want %q", in, got, want)
		}
	}
	if NormalizeQuality("4K") != "2160p" || NormalizeQuality("1080p") != "1080p" {
		t.Fatal("unexpected quality normalization")
	}
}
