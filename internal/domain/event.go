package domain

import "encoding/json"

// EventKind tags a ProgressEvent. The values are the wire event names.
type EventKind string

const (
	EventPlaylistNamed EventKind = "playlistName"
	EventItemProgress  EventKind = "songIndex"
	EventError         EventKind = "error"
	EventEnd           EventKind = "end"
)

// Messages emitted by the session itself
const (
	MsgDownloadCancelled    = "Download cancelled."
	MsgAcquisitionCancelled = "Acquisition cancelled."
)

// ProgressEvent is one message in a session's event sequence.
// Only the fields belonging to Kind are meaningful.
type ProgressEvent struct {
	Kind     EventKind
	Name     string
	Current  int
	Total    int
	Message  string
	Snapshot *LibrarySnapshot
	// Fatal is set on the Error that ends a failed session
	Fatal bool
}

// ItemIndex is the payload of an ItemProgress event
type ItemIndex struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// LibrarySnapshot is the refreshed library carried by the End event
type LibrarySnapshot struct {
	Songs     []Song     `json:"songs"`
	Albums    []Album    `json:"albums"`
	Playlists []Playlist `json:"playlists"`
}

// PlaylistNamed builds a PlaylistNamed event
func PlaylistNamed(name string) ProgressEvent {
	return ProgressEvent{Kind: EventPlaylistNamed, Name: name}
}

// ItemProgress builds an ItemProgress event
func ItemProgress(current, total int) ProgressEvent {
	return ProgressEvent{Kind: EventItemProgress, Current: current, Total: total}
}

// ErrorEvent builds a non-fatal Error event
func ErrorEvent(message string) ProgressEvent {
	return ProgressEvent{Kind: EventError, Message: message}
}

// FatalEvent builds the Error event that terminates a failed session
func FatalEvent(message string) ProgressEvent {
	return ProgressEvent{Kind: EventError, Message: message, Fatal: true}
}

// EndEvent builds the terminal End event
func EndEvent(snapshot LibrarySnapshot) ProgressEvent {
	return ProgressEvent{Kind: EventEnd, Snapshot: &snapshot}
}

// IsTerminal reports whether the event closes the stream
func (e ProgressEvent) IsTerminal() bool {
	return e.Kind == EventEnd || (e.Kind == EventError && e.Fatal)
}

type wireEvent struct {
	Event EventKind `json:"event"`
	Data  any       `json:"data"`
}

// MarshalJSON renders the {event, data} wire shape
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{Event: e.Kind}
	switch e.Kind {
	case EventPlaylistNamed:
		w.Data = e.Name
	case EventItemProgress:
		w.Data = ItemIndex{Current: e.Current, Total: e.Total}
	case EventError:
		w.Data = e.Message
	case EventEnd:
		snap := LibrarySnapshot{}
		if e.Snapshot != nil {
			snap = *e.Snapshot
		}
		w.Data = snap
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the {event, data} wire shape
func (e *ProgressEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Event EventKind       `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = ProgressEvent{Kind: raw.Event}
	switch raw.Event {
	case EventPlaylistNamed:
		return json.Unmarshal(raw.Data, &e.Name)
	case EventItemProgress:
		var idx ItemIndex
		if err := json.Unmarshal(raw.Data, &idx); err != nil {
			return err
		}
		e.Current, e.Total = idx.Current, idx.Total
	case EventError:
		return json.Unmarshal(raw.Data, &e.Message)
	case EventEnd:
		var snap LibrarySnapshot
		if err := json.Unmarshal(raw.Data, &snap); err != nil {
			return err
		}
		e.Snapshot = &snap
	}
	return nil
}
