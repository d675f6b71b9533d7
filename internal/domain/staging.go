package domain

import (
	"path/filepath"
	"strings"
)

// StagingKind classifies a file found in a session's staging area
type StagingKind int

const (
	StagingArtifact StagingKind = iota
	StagingMedia
	StagingCover
)

func (k StagingKind) String() string {
	switch k {
	case StagingMedia:
		return "media"
	case StagingCover:
		return "cover"
	default:
		return "artifact"
	}
}

var coverExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// StagingFile is one file left in staging after the downloader exits
type StagingFile struct {
	Name string
	Path string
	Kind StagingKind
}

// Stem is the file name without its extension. For media and covers
// it is the song id.
func (f StagingFile) Stem() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

// Ext is the lower-cased extension including the dot
func (f StagingFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// ClassifyStagingFile decides what to do with a staged file given the
// format the session targeted
func ClassifyStagingFile(name, dir string, format MediaFormat) StagingFile {
	f := StagingFile{Name: name, Path: filepath.Join(dir, name), Kind: StagingArtifact}
	ext := f.Ext()
	switch {
	case ext == format.Extension():
		f.Kind = StagingMedia
	case coverExtensions[ext]:
		f.Kind = StagingCover
	}
	return f
}
