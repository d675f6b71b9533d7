package domain

// MediaInfo is the metadata read from a media file
type MediaInfo struct {
	Title    string
	Artist   string
	Album    string
	Duration int // whole seconds
	Year     int

	// Embedded cover art, if any
	Cover     []byte
	CoverMIME string
}

// MediaInspector reads metadata from a media file on disk
type MediaInspector interface {
	Inspect(path string) (*MediaInfo, error)
}
