package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"go.senan.xyz/taglib"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

// ErrNoMetadata is returned for files no tag reader can parse
var ErrNoMetadata = errors.New("no parseable metadata")

// TagInspector reads media metadata. Embedded tags and cover art come
// from dhowden/tag; duration comes from taglib, which also serves as
// the tag source for containers dhowden/tag cannot parse.
type TagInspector struct{}

// NewTagInspector creates a media inspector
func NewTagInspector() *TagInspector {
	return &TagInspector{}
}

// Inspect reads the metadata of the file at path. Missing tags fall
// back to the file stem as title and UnknownArtist as artist. A file
// neither reader can parse is an error.
func (i *TagInspector) Inspect(path string) (*domain.MediaInfo, error) {
	name := filepath.Base(path)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("inspect %s: %w", name, err)
	}

	info := &domain.MediaInfo{}
	tagErr := readEmbeddedTags(path, info)
	var taglibErr error
	if tagErr != nil {
		taglibErr = readTaglibTags(path, info)
	}

	props, propsErr := taglib.ReadProperties(path)
	if tagErr != nil && taglibErr != nil && propsErr != nil {
		return nil, fmt.Errorf("inspect %s: %w: %v", name, ErrNoMetadata, tagErr)
	}
	if propsErr == nil && props.Length > 0 {
		info.Duration = int(props.Length.Seconds())
	}

	if info.Title == "" {
		info.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if info.Artist == "" {
		info.Artist = domain.UnknownArtist
	}
	return info, nil
}

func readEmbeddedTags(path string, info *domain.MediaInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	metadata, err := tag.ReadFrom(f)
	if err != nil {
		return err
	}

	info.Title = strings.TrimSpace(metadata.Title())
	info.Artist = strings.TrimSpace(metadata.Artist())
	if info.Artist == "" {
		info.Artist = strings.TrimSpace(metadata.AlbumArtist())
	}
	info.Album = strings.TrimSpace(metadata.Album())
	info.Year = metadata.Year()
	if pic := metadata.Picture(); pic != nil && len(pic.Data) > 0 {
		info.Cover = pic.Data
		info.CoverMIME = pic.MIMEType
	}
	return nil
}

func readTaglibTags(path string, info *domain.MediaInfo) error {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return err
	}
	info.Title = firstTagValue(tags, taglib.Title, "TITLE")
	info.Artist = firstTagValue(tags, taglib.Artist, taglib.AlbumArtist, "ARTIST")
	info.Album = firstTagValue(tags, taglib.Album, "ALBUM")
	info.Year = parseYear(firstTagValue(tags, taglib.Date, "DATE", "YEAR"))
	return nil
}

func firstTagValue(tags map[string][]string, keys ...string) string {
	for _, key := range keys {
		for _, value := range tags[key] {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// parseYear accepts "2019" and "2019-05-01"
func parseYear(value string) int {
	if len(value) < 4 {
		return 0
	}
	year, err := strconv.Atoi(value[:4])
	if err != nil || year < 1000 || year > 3000 {
		return 0
	}
	return year
}
