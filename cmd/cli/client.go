package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

// errIncompleteStream means the server closed a stream before its End event
var errIncompleteStream = errors.New("stream ended before the acquisition finished")

// apiClient talks to the music player server
type apiClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func newAPIClient(baseURL string, log *zap.Logger) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (c *apiClient) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.log.Debug("Request", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// checkStatus turns a non-2xx response into an error carrying the
// server's message
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// acquire opens the event stream for a playlist and hands every event
// to onEvent. Cancelling ctx closes the stream, which cancels the
// acquisition on the server.
func (c *apiClient) acquire(ctx context.Context, playlistID, format string, onEvent func(domain.ProgressEvent)) error {
	query := url.Values{}
	query.Set("playlistId", playlistID)
	if format != "" {
		query.Set("format", format)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/playlists/acquire?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// streams outlive the request timeout
	streaming := &http.Client{Transport: c.http.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	c.log.Debug("Stream opened", zap.String("session_id", resp.Header.Get("X-Session-ID")))

	return readEventStream(resp.Body, onEvent)
}

// readEventStream decodes data frames until the body ends
func readEventStream(body io.Reader, onEvent func(domain.ProgressEvent)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	ended := false
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimPrefix(data, " ")
		var ev domain.ProgressEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("malformed event: %w", err)
		}
		if ev.Kind == domain.EventEnd {
			ended = true
		}
		onEvent(ev)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !ended {
		return errIncompleteStream
	}
	return nil
}
