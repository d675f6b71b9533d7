package main

import (
	"fmt"
	"io"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

// progressPrinter renders acquisition events. On a terminal item
// progress rewrites one line in place.
type progressPrinter struct {
	w        io.Writer
	inPlace  bool
	openLine bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, inPlace: isTerminal(w)}
}

func (p *progressPrinter) Print(ev domain.ProgressEvent) {
	switch ev.Kind {
	case domain.EventPlaylistNamed:
		p.line(fmt.Sprintf("Playlist: %s", ev.Name))
	case domain.EventItemProgress:
		msg := fmt.Sprintf("Downloading %d of %d", ev.Current, ev.Total)
		if p.inPlace {
			fmt.Fprintf(p.w, "\r\033[K%s", msg)
			p.openLine = true
			return
		}
		p.line(msg)
	case domain.EventError:
		p.line(fmt.Sprintf("Error: %s", ev.Message))
	case domain.EventEnd:
		songs, albums, playlists := 0, 0, 0
		if ev.Snapshot != nil {
			songs, albums, playlists = len(ev.Snapshot.Songs), len(ev.Snapshot.Albums), len(ev.Snapshot.Playlists)
		}
		p.line(fmt.Sprintf("Done. Library: %d song(s), %d album(s), %d playlist(s)", songs, albums, playlists))
	}
}

func (p *progressPrinter) line(s string) {
	if p.openLine {
		fmt.Fprintln(p.w)
		p.openLine = false
	}
	fmt.Fprintln(p.w, s)
}
