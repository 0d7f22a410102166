package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scenarr/scenarr/internal/indexer"
)

// QBittorrentClient handles communication with qBittorrent Web API
type QBittorrentClient struct {
	baseURL    string
	username   string
	password   string
	category   string
	httpClient *http.Client

	mu  sync.Mutex
	sid string // Session ID
}

// NewQBittorrentClient creates a new qBittorrent client
func NewQBittorrentClient(baseURL, username, password, category string) *QBittorrentClient {
	jar, _ := cookiejar.New(nil)

	return &QBittorrentClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		category: category,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// Type returns the client type
func (q *QBittorrentClient) Type() string {
	return "qbittorrent"
}

// Login authenticates with qBittorrent
func (q *QBittorrentClient) Login(ctx context.Context) error {
	data := url.Values{
		"username": {q.username},
		"password": {q.password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/api/v2/auth/login", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", q.baseURL)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("login failed: %s", strings.TrimSpace(string(body)))
	}

	// Extract SID from cookies
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "SID" {
			q.mu.Lock()
			q.sid = cookie.Value
			q.mu.Unlock()
			break
		}
	}

	return nil
}

// Test checks if the connection is working
func (q *QBittorrentClient) Test(ctx context.Context) error {
	if err := q.Login(ctx); err != nil {
		return err
	}

	_, err := q.GetVersion(ctx)
	return err
}

// GetVersion returns the qBittorrent version
func (q *QBittorrentClient) GetVersion(ctx context.Context) (string, error) {
	body, err := q.get(ctx, "/api/v2/app/version", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// TorrentInfo represents information about a torrent in qBittorrent
type TorrentInfo struct {
	Hash          string  `json:"hash"`
	Name          string  `json:"name"`
	Size          int64   `json:"size"`
	Progress      float64 `json:"progress"`
	State         string  `json:"state"`
	DownloadSpeed int64   `json:"dlspeed"`
	UploadSpeed   int64   `json:"upspeed"`
	ETA           int64   `json:"eta"`
	Category      string  `json:"category"`
	SavePath      string  `json:"save_path"`
	ContentPath   string  `json:"content_path"`
	AddedOn       int64   `json:"added_on"`
	CompletedOn   int64   `json:"completion_on"`
	NumSeeds      int     `json:"num_seeds"`
	NumLeeches    int     `json:"num_leechs"`
}

// GetTorrents returns all torrents, optionally filtered by category
func (q *QBittorrentClient) GetTorrents(ctx context.Context, category string) ([]TorrentInfo, error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}

	body, err := q.get(ctx, "/api/v2/torrents/info", params)
	if err != nil {
		return nil, err
	}

	var torrents []TorrentInfo
	if err := json.Unmarshal(body, &torrents); err != nil {
		return nil, fmt.Errorf("decode torrents: %w", err)
	}
	return torrents, nil
}

// ListActive implements the TorrentClient interface
func (q *QBittorrentClient) ListActive(ctx context.Context) ([]ActiveTorrent, error) {
	torrents, err := q.GetTorrents(ctx, q.category)
	if err != nil {
		return nil, err
	}

	out := make([]ActiveTorrent, 0, len(torrents))
	for _, t := range torrents {
		out = append(out, ActiveTorrent{
			Hash:        strings.ToLower(t.Hash),
			Name:        t.Name,
			Size:        t.Size,
			Progress:    t.Progress,
			Throughput:  t.DownloadSpeed,
			Seeders:     t.NumSeeds,
			State:       mapQBittorrentState(t.State),
			SavePath:    t.SavePath,
			ContentPath: t.ContentPath,
		})
	}
	return out, nil
}

// stalledDL counts as downloading: the client is trying but gets no data.
func mapQBittorrentState(state string) TorrentState {
	switch state {
	case "downloading", "stalledDL", "metaDL", "forcedDL", "forcedMetaDL":
		return StateDownloading
	case "pausedDL", "stoppedDL", "pausedUP", "stoppedUP":
		return StatePaused
	case "queuedDL", "checkingDL", "checkingResumeData", "allocating", "moving":
		return StateQueued
	case "uploading", "stalledUP", "queuedUP", "forcedUP", "checkingUP":
		return StateSeeding
	case "error", "missingFiles":
		return StateError
	default:
		return StateUnknown
	}
}

// Submit implements the TorrentClient interface. qBittorrent does not return
// the hash on add, so it is derived from the payload where possible.
func (q *QBittorrentClient) Submit(ctx context.Context, s Submission) (string, error) {
	if len(s.Torrent) > 0 {
		hash, _ := indexer.HashFromTorrent(bytes.NewReader(s.Torrent))
		name := s.Name
		if name == "" {
			name = "release"
		}
		if err := q.AddTorrentFile(ctx, name+".torrent", s.Torrent, s); err != nil {
			return "", err
		}
		return hash, nil
	}

	if s.URL == "" {
		return "", fmt.Errorf("submission has neither a URL nor a torrent payload")
	}
	if err := q.AddTorrentByURL(ctx, s.URL, s); err != nil {
		return "", err
	}
	if strings.HasPrefix(s.URL, "magnet:") {
		if hash, err := indexer.HashFromMagnet(s.URL); err == nil {
			return hash, nil
		}
	}
	return "", nil
}

func (q *QBittorrentClient) addOptions(s Submission) url.Values {
	data := url.Values{}
	category := s.Category
	if category == "" {
		category = q.category
	}
	if category != "" {
		data.Set("category", category)
	}
	if s.SavePath != "" {
		data.Set("savepath", s.SavePath)
	}
	if s.Paused {
		data.Set("paused", "true")
		data.Set("stopped", "true")
	}
	return data
}

// AddTorrentByURL adds a torrent from a URL or magnet link
func (q *QBittorrentClient) AddTorrentByURL(ctx context.Context, torrentURL string, s Submission) error {
	data := q.addOptions(s)
	data.Set("urls", torrentURL)

	body, err := q.post(ctx, "/api/v2/torrents/add", data)
	if err != nil {
		return fmt.Errorf("add torrent: %w", err)
	}
	if strings.TrimSpace(string(body)) == "Fails." {
		return fmt.Errorf("add torrent: client rejected %s", s.Name)
	}
	return nil
}

// AddTorrentFile adds a torrent from a .torrent file
func (q *QBittorrentClient) AddTorrentFile(ctx context.Context, filename string, torrentData []byte, s Submission) error {
	build := func() (*bytes.Buffer, string, error) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)

		part, err := writer.CreateFormFile("torrents", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(torrentData); err != nil {
			return nil, "", err
		}
		for key, values := range q.addOptions(s) {
			if err := writer.WriteField(key, values[0]); err != nil {
				return nil, "", err
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", err
		}
		return &body, writer.FormDataContentType(), nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		body, contentType, err := build()
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/api/v2/torrents/add", body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := q.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("add torrent request failed: %w", err)
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden && attempt == 0 {
			if err := q.Login(ctx); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(respBody)) == "Fails." {
			return fmt.Errorf("add torrent failed: %s", strings.TrimSpace(string(respBody)))
		}
		return nil
	}
	return fmt.Errorf("add torrent failed: not authorized")
}

// SetPriority implements the TorrentClient interface
func (q *QBittorrentClient) SetPriority(ctx context.Context, hash string, p Priority) error {
	action := "topPrio"
	if p == PriorityBottom {
		action = "bottomPrio"
	}
	return q.torrentAction(ctx, action, hash)
}

// Pause implements the TorrentClient interface
func (q *QBittorrentClient) Pause(ctx context.Context, hash string) error {
	return q.versionedAction(ctx, "pause", "stop", hash)
}

// Resume implements the TorrentClient interface
func (q *QBittorrentClient) Resume(ctx context.Context, hash string) error {
	return q.versionedAction(ctx, "resume", "start", hash)
}

// Delete implements the TorrentClient interface
func (q *QBittorrentClient) Delete(ctx context.Context, hash string, keepFiles bool) error {
	data := url.Values{
		"hashes":      {hash},
		"deleteFiles": {strconv.FormatBool(!keepFiles)},
	}
	_, err := q.post(ctx, "/api/v2/torrents/delete", data)
	return err
}

// SetGlobalThroughputLimits implements the TorrentClient interface
func (q *QBittorrentClient) SetGlobalThroughputLimits(ctx context.Context, downKiB, upKiB int64) error {
	if _, err := q.post(ctx, "/api/v2/transfer/setDownloadLimit", url.Values{"limit": {strconv.FormatInt(max(downKiB, 0)*1024, 10)}}); err != nil {
		return fmt.Errorf("set download limit: %w", err)
	}
	if _, err := q.post(ctx, "/api/v2/transfer/setUploadLimit", url.Values{"limit": {strconv.FormatInt(max(upKiB, 0)*1024, 10)}}); err != nil {
		return fmt.Errorf("set upload limit: %w", err)
	}
	return nil
}

// versionedAction tries the v4 endpoint name and falls back to the v5 one,
// which renamed pause/resume to stop/start.
func (q *QBittorrentClient) versionedAction(ctx context.Context, legacy, current, hash string) error {
	err := q.torrentAction(ctx, legacy, hash)
	if err == nil {
		return nil
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
		return q.torrentAction(ctx, current, hash)
	}
	return err
}

func (q *QBittorrentClient) torrentAction(ctx context.Context, action, hash string) error {
	_, err := q.post(ctx, "/api/v2/torrents/"+action, url.Values{"hashes": {hash}})
	return err
}

func (q *QBittorrentClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := q.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return q.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
}

func (q *QBittorrentClient) post(ctx context.Context, path string, data url.Values) ([]byte, error) {
	return q.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+path, strings.NewReader(data.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// do sends a request and logs in again once if the session has expired.
func (q *QBittorrentClient) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := q.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusForbidden && attempt == 0 {
			// Session expired, re-login
			if err := q.Login(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		}
		return body, nil
	}
	return nil, &statusError{code: http.StatusForbidden, body: "not authorized"}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}
