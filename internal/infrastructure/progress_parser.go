package infrastructure

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

var (
	// [download] Downloading playlist: Road Trip
	playlistNameRegex = regexp.MustCompile(`^\[download\] Downloading playlist: (.+)$`)
	// [download] Downloading item 3 of 12
	itemProgressRegex = regexp.MustCompile(`^\[download\] Downloading item (\d+) of (\d+)\s*$`)
)

// ParseProgressLine maps one downloader output line to a progress event.
// Lines that match neither marker are ignored.
func ParseProgressLine(line string) (domain.ProgressEvent, bool) {
	line = strings.TrimRight(line, "\r\n")

	if match := playlistNameRegex.FindStringSubmatch(line); match != nil {
		name := strings.TrimSpace(match[1])
		if name == "" {
			return domain.ProgressEvent{}, false
		}
		return domain.PlaylistNamed(name), true
	}

	if match := itemProgressRegex.FindStringSubmatch(line); match != nil {
		current, err := strconv.Atoi(match[1])
		if err != nil {
			return domain.ProgressEvent{}, false
		}
		total, err := strconv.Atoi(match[2])
		if err != nil || current < 1 || total < current {
			return domain.ProgressEvent{}, false
		}
		return domain.ItemProgress(current, total), true
	}

	return domain.ProgressEvent{}, false
}

// ScanOutputLines splits on \n, \r\n and bare \r so carriage-return
// progress redraws become separate lines.
func ScanOutputLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// may be the first half of \r\n
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = ScanOutputLines

// ProgressTracker drops ItemProgress events that would break the
// ordering guarantees of a session: non-increasing indexes, a changing
// total, and repeated playlist names.
type ProgressTracker struct {
	name    string
	current int
	total   int
}

// Accept reports whether ev should be forwarded and records it
func (t *ProgressTracker) Accept(ev domain.ProgressEvent) bool {
	switch ev.Kind {
	case domain.EventPlaylistNamed:
		if t.name != "" {
			return false
		}
		t.name = ev.Name
		return true
	case domain.EventItemProgress:
		if ev.Current <= t.current {
			return false
		}
		if t.total != 0 && ev.Total != t.total {
			return false
		}
		t.current, t.total = ev.Current, ev.Total
		return true
	}
	return true
}

// PlaylistName is the first playlist name seen, if any
func (t *ProgressTracker) PlaylistName() string { return t.name }

// Current is the last accepted item index
func (t *ProgressTracker) Current() int { return t.current }

// Total is the announced playlist size, 0 when none was seen
func (t *ProgressTracker) Total() int { return t.total }
