package indexer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TorznabIndexer implements the Torznab protocol for Prowlarr/Jackett
type TorznabIndexer struct {
	name       string
	baseURL    string
	apiKey     string
	categories []int
	httpClient *http.Client
}

// NewTorznabIndexer creates a new Torznab indexer
func NewTorznabIndexer(name, baseURL, apiKey string, categories []int) *TorznabIndexer {
	return &TorznabIndexer{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		categories: categories,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *TorznabIndexer) Name() string {
	return t.name
}

// torznabResponse represents the XML response from Torznab API
type torznabResponse struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title     string `xml:"title"`
	Link      string `xml:"link"`
	Size      int64  `xml:"size"`
	PubDate   string `xml:"pubDate"`
	GUID      string `xml:"guid"`
	Comments  string `xml:"comments"`
	Enclosure struct {
		URL    string `xml:"url,attr"`
		Length int64  `xml:"length,attr"`
		Type   string `xml:"type,attr"`
	} `xml:"enclosure"`
	Attrs []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"attr"`
}

type torznabError struct {
	XMLName     xml.Name `xml:"error"`
	Code        string   `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

func (t *TorznabIndexer) Search(ctx context.Context, term string) ([]Release, error) {
	params := url.Values{}
	params.Set("t", "search")
	params.Set("q", term)
	if len(t.categories) > 0 {
		cats := make([]string, len(t.categories))
		for i, c := range t.categories {
			cats[i] = strconv.Itoa(c)
		}
		params.Set("cat", strings.Join(cats, ","))
	}

	body, err := t.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var apiErr torznabError
	if xml.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
		return nil, fmt.Errorf("torznab error %s: %s", apiErr.Code, apiErr.Description)
	}

	var response torznabResponse
	if err := xml.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]Release, 0, len(response.Channel.Items))
	for _, item := range response.Channel.Items {
		results = append(results, t.toRelease(item))
	}
	return results, nil
}

func (t *TorznabIndexer) toRelease(item torznabItem) Release {
	release := Release{
		Title:       strings.TrimSpace(item.Title),
		Size:        item.Size,
		DownloadURL: item.Enclosure.URL,
		InfoURL:     item.Comments,
		Indexer:     t.name,
	}
	if release.Size == 0 {
		release.Size = item.Enclosure.Length
	}
	if release.DownloadURL == "" {
		release.DownloadURL = item.Link
	}
	if pub, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
		release.PublishDate = pub
	}

	peers := -1
	for _, attr := range item.Attrs {
		switch attr.Name {
		case "seeders":
			release.Seeders, _ = strconv.Atoi(attr.Value)
		case "leechers":
			release.Leechers, _ = strconv.Atoi(attr.Value)
		case "peers":
			peers, _ = strconv.Atoi(attr.Value)
		case "size":
			if release.Size == 0 {
				release.Size, _ = strconv.ParseInt(attr.Value, 10, 64)
			}
		case "infohash":
			release.ContentHash = NormalizeHash(attr.Value)
		case "magneturl":
			release.MagnetURL = attr.Value
		}
	}
	if release.Leechers == 0 && peers > release.Seeders {
		release.Leechers = peers - release.Seeders
	}

	if release.MagnetURL == "" {
		for _, candidate := range []string{item.Link, item.GUID, item.Enclosure.URL} {
			if strings.HasPrefix(candidate, "magnet:") {
				release.MagnetURL = candidate
				break
			}
		}
	}
	if release.ContentHash == "" && release.MagnetURL != "" {
		if hash, err := HashFromMagnet(release.MagnetURL); err == nil {
			release.ContentHash = hash
		}
	}

	release.Enrich()
	return release
}

func (t *TorznabIndexer) Test(ctx context.Context) error {
	params := url.Values{}
	params.Set("t", "caps")
	_, err := t.get(ctx, params)
	return err
}

// get performs a Torznab request. Transport failures and 5xx responses wrap ErrUnavailable.
func (t *TorznabIndexer) get(ctx context.Context, params url.Values) ([]byte, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if t.apiKey != "" {
		params.Set("apikey", t.apiKey)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: server returned status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return body, nil
}
