package infrastructure

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

var ErrUnsafeName = errors.New("unsafe file name")

// MediaArea owns the library directories: per-session staging, the
// permanent media directory and the cover directory
type MediaArea struct {
	stagingRoot string
	mediaDir    string
	coverDir    string
}

// NewMediaArea creates a media area rooted at the library directories
func NewMediaArea(lib domain.LibraryConfig) *MediaArea {
	return &MediaArea{
		stagingRoot: lib.StagingDir(),
		mediaDir:    lib.MediaDir(),
		coverDir:    lib.CoverDir(),
	}
}

// EnsureLayout creates the media, cover and staging directories
func (m *MediaArea) EnsureLayout() error {
	for _, dir := range []string{m.mediaDir, m.coverDir, m.stagingRoot} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// PurgeStaging removes staging left behind by a previous run
func (m *MediaArea) PurgeStaging() error {
	if err := os.RemoveAll(m.stagingRoot); err != nil {
		return fmt.Errorf("failed to purge staging: %w", err)
	}
	return os.MkdirAll(m.stagingRoot, 0755)
}

// SessionDir is the staging partition of one session
func (m *MediaArea) SessionDir(sessionID string) string {
	return filepath.Join(m.stagingRoot, sessionID)
}

// PrepareSession creates an empty staging partition for a session
func (m *MediaArea) PrepareSession(sessionID string) (string, error) {
	if err := checkName(sessionID); err != nil {
		return "", err
	}
	dir := m.SessionDir(sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to reset staging: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging: %w", err)
	}
	return dir, nil
}

// StagingFiles lists and classifies the regular files of a session's staging
func (m *MediaArea) StagingFiles(sessionID string, format domain.MediaFormat) ([]domain.StagingFile, error) {
	dir := m.SessionDir(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read staging: %w", err)
	}

	var files []domain.StagingFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		files = append(files, domain.ClassifyStagingFile(entry.Name(), dir, format))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// DiscardSession deletes a session's staging partition and everything in it
func (m *MediaArea) DiscardSession(sessionID string) error {
	if err := checkName(sessionID); err != nil {
		return err
	}
	if err := os.RemoveAll(m.SessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to discard staging: %w", err)
	}
	return nil
}

// MoveToMedia moves a staged media file into the media directory
func (m *MediaArea) MoveToMedia(f domain.StagingFile) (string, error) {
	if err := checkName(f.Name); err != nil {
		return "", err
	}
	dest := filepath.Join(m.mediaDir, f.Name)
	if err := moveFile(f.Path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", f.Name, err)
	}
	return dest, nil
}

// PlaceCover stores a staged cover as {stem}.png, transcoding when needed
func (m *MediaArea) PlaceCover(f domain.StagingFile) error {
	if err := checkName(f.Name); err != nil {
		return err
	}
	dest := m.CoverPath(f.Stem())

	if f.Ext() == ".png" {
		if err := moveFile(f.Path, dest); err != nil {
			return fmt.Errorf("failed to move cover %s: %w", f.Name, err)
		}
		return nil
	}

	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open cover %s: %w", f.Name, err)
	}
	err = writePNG(src, dest)
	src.Close()
	if err != nil {
		return fmt.Errorf("failed to convert cover %s: %w", f.Name, err)
	}
	return os.Remove(f.Path)
}

// WriteCover stores image bytes (png, jpeg or webp) as a song's cover
func (m *MediaArea) WriteCover(songID string, data []byte) error {
	if err := checkName(songID); err != nil {
		return err
	}
	return writePNG(bytes.NewReader(data), m.CoverPath(songID))
}

// CoverPath is where a song's cover lives
func (m *MediaArea) CoverPath(songID string) string {
	return filepath.Join(m.coverDir, songID+".png")
}

// HasCover checks whether a song already has cover art
func (m *MediaArea) HasCover(songID string) bool {
	_, err := os.Stat(m.CoverPath(songID))
	return err == nil
}

// Remove deletes a staged file
func (m *MediaArea) Remove(f domain.StagingFile) error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MediaFiles lists the media directory's files in a supported format
func (m *MediaArea) MediaFiles() ([]string, error) {
	entries, err := os.ReadDir(m.mediaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
		if _, err := domain.ParseMediaFormat(ext); err != nil {
			continue
		}
		paths = append(paths, filepath.Join(m.mediaDir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return nil
}

func writePNG(r io.Reader, dest string) error {
	img, _, err := image.Decode(r)
	if err != nil {
		return err
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// moveFile renames src to dst, copying when they are on different devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
