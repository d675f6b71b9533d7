package app

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/pkg/logger"
)

// RescanResult summarizes a library rescan
type RescanResult struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Covers  int `json:"covers"`
	Errors  int `json:"errors"`
}

// LibraryScanner records media files that are on disk but not in the
// store, for files placed in the media directory by hand
type LibraryScanner struct {
	files     LibraryFiles
	store     domain.LibraryStore
	inspector domain.MediaInspector
	log       *logger.LoggerAdapter
}

// NewLibraryScanner creates a library scanner
func NewLibraryScanner(files LibraryFiles, store domain.LibraryStore, inspector domain.MediaInspector, log *logger.LoggerAdapter) *LibraryScanner {
	if log == nil {
		log = logger.NewNopAdapter()
	}
	return &LibraryScanner{files: files, store: store, inspector: inspector, log: log}
}

// Rescan walks the media directory once
func (ls *LibraryScanner) Rescan(ctx context.Context) (RescanResult, error) {
	var result RescanResult

	paths, err := ls.files.MediaFiles()
	if err != nil {
		return result, err
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++

		name := filepath.Base(path)
		ext := filepath.Ext(name)
		songID := strings.TrimSuffix(name, ext)
		format, err := domain.ParseMediaFormat(strings.TrimPrefix(ext, "."))
		if err != nil {
			continue
		}

		exists, err := ls.store.SongExists(ctx, songID)
		if err != nil {
			return result, err
		}
		if exists && ls.files.HasCover(songID) {
			continue
		}

		info, err := ls.inspector.Inspect(path)
		if err != nil {
			result.Errors++
			ls.log.LogError("Failed to inspect media file", zap.String("file", name), zap.Error(err))
			continue
		}

		if !exists {
			if err := recordSong(ctx, ls.store, songID, format, info); err != nil {
				result.Errors++
				ls.log.LogError("Failed to record media file", zap.String("file", name), zap.Error(err))
				continue
			}
			result.Added++
		}

		if len(info.Cover) > 0 && !ls.files.HasCover(songID) {
			if err := ls.files.WriteCover(songID, info.Cover); err != nil {
				ls.log.General().Warn("Failed to extract embedded cover", zap.String("file", name), zap.Error(err))
			} else {
				result.Covers++
			}
		}
	}

	ls.log.LogEvent("Library rescan finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("added", result.Added),
		zap.Int("covers", result.Covers),
		zap.Int("errors", result.Errors))
	return result, nil
}
