package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

func TestReadEventStream(t *testing.T) {
	body := strings.Join([]string{
		`data: {"event":"playlistName","data":"Road Trip"}`,
		``,
		`: keep-alive`,
		``,
		`data:{"event":"songIndex","data":{"current":1,"total":2}}`,
		``,
		`data: {"event":"error","data":"Download cancelled."}`,
		``,
		`data: {"event":"end","data":{"songs":[],"albums":[],"playlists":[]}}`,
		``,
	}, "\n")

	var events []domain.ProgressEvent
	err := readEventStream(strings.NewReader(body), func(ev domain.ProgressEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, domain.PlaylistNamed("Road Trip"), events[0])
	assert.Equal(t, domain.ItemProgress(1, 2), events[1])
	assert.Equal(t, domain.ErrorEvent(domain.MsgDownloadCancelled), events[2])
	assert.Equal(t, domain.EventEnd, events[3].Kind)
}

func TestReadEventStream_Incomplete(t *testing.T) {
	body := "data: {\"event\":\"error\",\"data\":\"Acquisition cancelled.\"}\n\n"
	err := readEventStream(strings.NewReader(body), func(domain.ProgressEvent) {})
	assert.ErrorIs(t, err, errIncompleteStream)
}

func TestClient_Acquire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("playlistId") != "PL123" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid playlist id"}`)
			return
		}
		assert.Equal(t, "mp3", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"event\":\"songIndex\",\"data\":{\"current\":1,\"total\":1}}\n\n")
		fmt.Fprint(w, "data: {\"event\":\"end\",\"data\":{\"songs\":[],\"albums\":[],\"playlists\":[]}}\n\n")
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, zap.NewNop())

	var kinds []domain.EventKind
	err := c.acquire(context.Background(), "PL123", "mp3", func(ev domain.ProgressEvent) {
		kinds = append(kinds, ev.Kind)
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventKind{domain.EventItemProgress, domain.EventEnd}, kinds)

	err = c.acquire(context.Background(), "bad", "", func(domain.ProgressEvent) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid playlist id")
}

func TestRenderTable_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	out := renderTable(&buf, []string{"ID", "NAME"}, [][]string{{"1", "Road Trip"}, {"2"}}, nil)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID\tNAME", lines[0])
	assert.Equal(t, "1\tRoad Trip", lines[1])
	assert.Empty(t, renderTable(&buf, nil, nil, nil))
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p.Print(domain.PlaylistNamed("Road Trip"))
	p.Print(domain.ItemProgress(1, 2))
	p.Print(domain.ErrorEvent("Couldn't add song to database."))
	p.Print(domain.EndEvent(domain.LibrarySnapshot{Songs: make([]domain.Song, 3)}))

	assert.Equal(t, "Playlist: Road Trip\n"+
		"Downloading 1 of 2\n"+
		"Error: Couldn't add song to database.\n"+
		"Done. Library: 3 song(s), 0 album(s), 0 playlist(s)\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "3:05", formatDuration(185))
	assert.Equal(t, "abc12345", shortID("abc12345-6789"))
}
