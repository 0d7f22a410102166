package downloader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// DelugeClient handles communication with Deluge Web API
type DelugeClient struct {
	baseURL    string
	password   string
	label      string
	httpClient *http.Client
	requestID  atomic.Int64
}

// NewDelugeClient creates a new Deluge client
func NewDelugeClient(baseURL, password, label string) *DelugeClient {
	jar, _ := cookiejar.New(nil)

	return &DelugeClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		password: password,
		label:    label,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// delugeRequest represents a JSON-RPC request to Deluge
type delugeRequest struct {
	ID     int64         `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// delugeResponse represents a JSON-RPC response from Deluge
type delugeResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *delugeError    `json:"error"`
}

type delugeError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// call makes a JSON-RPC call to Deluge
func (d *DelugeClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	reqBody := delugeRequest{
		ID:     d.requestID.Add(1),
		Method: method,
		Params: params,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/json", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var delugeResp delugeResponse
	if err := json.Unmarshal(body, &delugeResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}

	if delugeResp.Error != nil {
		return nil, fmt.Errorf("deluge error: %s (code: %d)", delugeResp.Error.Message, delugeResp.Error.Code)
	}

	return delugeResp.Result, nil
}

// Login authenticates with Deluge and makes sure the web UI is attached to a daemon
func (d *DelugeClient) Login(ctx context.Context) error {
	result, err := d.call(ctx, "auth.login", d.password)
	if err != nil {
		return err
	}

	var success bool
	if err := json.Unmarshal(result, &success); err != nil {
		return fmt.Errorf("failed to parse login result: %w", err)
	}

	if !success {
		return fmt.Errorf("login failed: invalid password")
	}

	connectedResult, err := d.call(ctx, "web.connected")
	if err == nil {
		var connected bool
		if json.Unmarshal(connectedResult, &connected) == nil && connected {
			return nil
		}
	}

	// Connect to the first configured daemon
	hostsResult, err := d.call(ctx, "web.get_hosts")
	if err != nil {
		return fmt.Errorf("failed to get hosts: %w", err)
	}

	var hosts [][]interface{}
	if err := json.Unmarshal(hostsResult, &hosts); err != nil || len(hosts) == 0 {
		return nil
	}
	if hostID, ok := hosts[0][0].(string); ok {
		if _, err := d.call(ctx, "web.connect", hostID); err != nil {
			return fmt.Errorf("connect to daemon: %w", err)
		}
	}
	return nil
}

// Test checks if the connection is working
func (d *DelugeClient) Test(ctx context.Context) error {
	if err := d.Login(ctx); err != nil {
		return err
	}

	_, err := d.call(ctx, "daemon.info")
	if err != nil {
		// Fall back to checking web connection status
		_, err = d.call(ctx, "web.connected")
	}
	return err
}

// Type returns the client type
func (d *DelugeClient) Type() string {
	return "deluge"
}

var delugeStatusKeys = []string{
	"hash", "name", "total_size", "progress", "state", "download_payload_rate",
	"num_seeds", "save_path", "label",
}

// ListActive implements the TorrentClient interface
func (d *DelugeClient) ListActive(ctx context.Context) ([]ActiveTorrent, error) {
	if err := d.Login(ctx); err != nil {
		return nil, err
	}

	filterDict := make(map[string]interface{})
	if d.label != "" {
		filterDict["label"] = d.label
	}

	result, err := d.call(ctx, "core.get_torrents_status", filterDict, delugeStatusKeys)
	if err != nil {
		return nil, err
	}

	var torrents map[string]map[string]interface{}
	if err := json.Unmarshal(result, &torrents); err != nil {
		return nil, err
	}

	out := make([]ActiveTorrent, 0, len(torrents))
	for hash, status := range torrents {
		name := getString(status, "name")
		savePath := getString(status, "save_path")
		out = append(out, ActiveTorrent{
			Hash:        strings.ToLower(hash),
			Name:        name,
			Size:        getInt64(status, "total_size"),
			Progress:    getFloat64(status, "progress") / 100.0,
			Throughput:  getInt64(status, "download_payload_rate"),
			Seeders:     int(getInt64(status, "num_seeds")),
			State:       mapDelugeState(getString(status, "state")),
			SavePath:    savePath,
			ContentPath: joinPath(savePath, name),
		})
	}
	return out, nil
}

func mapDelugeState(state string) TorrentState {
	switch strings.ToLower(state) {
	case "downloading":
		return StateDownloading
	case "seeding":
		return StateSeeding
	case "paused":
		return StatePaused
	case "queued", "checking", "allocating", "moving":
		return StateQueued
	case "error":
		return StateError
	default:
		return StateUnknown
	}
}

// Submit implements the TorrentClient interface. Deluge returns the torrent
// id, which is its info-hash.
func (d *DelugeClient) Submit(ctx context.Context, s Submission) (string, error) {
	if err := d.Login(ctx); err != nil {
		return "", err
	}

	options := make(map[string]interface{})
	if s.SavePath != "" {
		options["download_location"] = s.SavePath
	}
	if s.Paused {
		options["add_paused"] = true
	}

	var (
		result json.RawMessage
		err    error
	)
	switch {
	case len(s.Torrent) > 0:
		name := s.Name
		if name == "" {
			name = "release"
		}
		result, err = d.call(ctx, "core.add_torrent_file", name+".torrent", base64.StdEncoding.EncodeToString(s.Torrent), options)
	case strings.HasPrefix(s.URL, "magnet:"):
		result, err = d.call(ctx, "core.add_torrent_magnet", s.URL, options)
	case s.URL != "":
		result, err = d.call(ctx, "core.add_torrent_url", s.URL, options)
	default:
		return "", fmt.Errorf("submission has neither a URL nor a torrent payload")
	}
	if err != nil {
		return "", fmt.Errorf("failed to add torrent: %w", err)
	}

	var torrentID string
	if err := json.Unmarshal(result, &torrentID); err != nil || torrentID == "" {
		// null result means the daemon refused the torrent, usually a duplicate
		return "", fmt.Errorf("failed to add torrent: daemon returned %s", string(result))
	}
	torrentID = strings.ToLower(torrentID)

	label := s.Category
	if label == "" {
		label = d.label
	}
	if label != "" {
		// The label plugin is optional.
		_, _ = d.call(ctx, "label.set_torrent", torrentID, label)
	}
	return torrentID, nil
}

// SetPriority implements the TorrentClient interface
func (d *DelugeClient) SetPriority(ctx context.Context, hash string, p Priority) error {
	if err := d.Login(ctx); err != nil {
		return err
	}
	method := "core.queue_top"
	if p == PriorityBottom {
		method = "core.queue_bottom"
	}
	_, err := d.call(ctx, method, []string{hash})
	return err
}

// Pause implements the TorrentClient interface
func (d *DelugeClient) Pause(ctx context.Context, hash string) error {
	if err := d.Login(ctx); err != nil {
		return err
	}

	_, err := d.call(ctx, "core.pause_torrent", []string{hash})
	return err
}

// Resume implements the TorrentClient interface
func (d *DelugeClient) Resume(ctx context.Context, hash string) error {
	if err := d.Login(ctx); err != nil {
		return err
	}

	_, err := d.call(ctx, "core.resume_torrent", []string{hash})
	return err
}

// Delete implements the TorrentClient interface
func (d *DelugeClient) Delete(ctx context.Context, hash string, keepFiles bool) error {
	if err := d.Login(ctx); err != nil {
		return err
	}

	_, err := d.call(ctx, "core.remove_torrent", hash, !keepFiles)
	return err
}

// SetGlobalThroughputLimits implements the TorrentClient interface. Deluge
// uses KiB/s with -1 meaning unlimited.
func (d *DelugeClient) SetGlobalThroughputLimits(ctx context.Context, downKiB, upKiB int64) error {
	if err := d.Login(ctx); err != nil {
		return err
	}

	limit := func(v int64) float64 {
		if v <= 0 {
			return -1
		}
		return float64(v)
	}
	_, err := d.call(ctx, "core.set_config", map[string]interface{}{
		"max_download_speed": limit(downKiB),
		"max_upload_speed":   limit(upKiB),
	})
	return err
}

func joinPath(dir, name string) string {
	if dir == "" || name == "" {
		return ""
	}
	return filepath.Join(dir, name)
}

// Helper functions
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func getFloat64(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
