package infrastructure

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

func newTestMediaArea(t *testing.T) (*MediaArea, domain.LibraryConfig) {
	t.Helper()
	lib := domain.LibraryConfig{BaseDir: t.TempDir()}
	area := NewMediaArea(lib)
	require.NoError(t, area.EnsureLayout())
	return area, lib
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func TestMediaArea_SessionPartitions(t *testing.T) {
	area, lib := newTestMediaArea(t)

	dirA, err := area.PrepareSession("a")
	require.NoError(t, err)
	dirB, err := area.PrepareSession("b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(lib.StagingDir(), "a"), dirA)

	require.NoError(t, os.WriteFile(filepath.Join(dirA, "x.flac"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "y.flac"), []byte("b"), 0644))

	require.NoError(t, area.DiscardSession("a"))

	_, err = os.Stat(dirA)
	assert.True(t, os.IsNotExist(err))
	files, err := area.StagingFiles("b", domain.FormatFLAC)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "y.flac", files[0].Name)
}

func TestMediaArea_StagingFilesClassified(t *testing.T) {
	area, _ := newTestMediaArea(t)
	dir, err := area.PrepareSession("s")
	require.NoError(t, err)

	for _, name := range []string{"abc.mp3", "abc.png", "abc.webm.part"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	files, err := area.StagingFiles("s", domain.FormatMP3)
	require.NoError(t, err)
	require.Len(t, files, 3)
	kinds := map[string]domain.StagingKind{}
	for _, f := range files {
		kinds[f.Name] = f.Kind
	}
	assert.Equal(t, domain.StagingMedia, kinds["abc.mp3"])
	assert.Equal(t, domain.StagingCover, kinds["abc.png"])
	assert.Equal(t, domain.StagingArtifact, kinds["abc.webm.part"])
}

func TestMediaArea_MoveToMedia(t *testing.T) {
	area, lib := newTestMediaArea(t)
	dir, err := area.PrepareSession("s")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.flac"), []byte("audio"), 0644))

	dest, err := area.MoveToMedia(domain.ClassifyStagingFile("abc.flac", dir, domain.FormatFLAC))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(lib.MediaDir(), "abc.flac"), dest)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "abc.flac"))
}

func TestMediaArea_PlaceCover_TranscodesJPEG(t *testing.T) {
	area, _ := newTestMediaArea(t)
	dir, err := area.PrepareSession("s")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.jpg"), buf.Bytes(), 0644))

	require.NoError(t, area.PlaceCover(domain.ClassifyStagingFile("abc.jpg", dir, domain.FormatFLAC)))

	assert.True(t, area.HasCover("abc"))
	f, err := os.Open(area.CoverPath("abc"))
	require.NoError(t, err)
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.NoFileExists(t, filepath.Join(dir, "abc.jpg"))
}

func TestMediaArea_PlaceCover_MovesPNG(t *testing.T) {
	area, _ := newTestMediaArea(t)
	dir, err := area.PrepareSession("s")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.png"), buf.Bytes(), 0644))

	require.NoError(t, area.PlaceCover(domain.ClassifyStagingFile("abc.png", dir, domain.FormatFLAC)))

	data, err := os.ReadFile(area.CoverPath("abc"))
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), data)
}

func TestMediaArea_PlaceCover_InvalidImage(t *testing.T) {
	area, _ := newTestMediaArea(t)
	dir, err := area.PrepareSession("s")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.webp"), []byte("not an image"), 0644))

	err = area.PlaceCover(domain.ClassifyStagingFile("abc.webp", dir, domain.FormatFLAC))
	assert.Error(t, err)
	assert.False(t, area.HasCover("abc"))
}

func TestMediaArea_RejectsUnsafeNames(t *testing.T) {
	area, _ := newTestMediaArea(t)

	_, err := area.PrepareSession("../escape")
	assert.ErrorIs(t, err, ErrUnsafeName)
	assert.ErrorIs(t, area.DiscardSession(".."), ErrUnsafeName)
	assert.ErrorIs(t, area.WriteCover("a/b", nil), ErrUnsafeName)
}

func TestMediaArea_MediaFiles(t *testing.T) {
	area, lib := newTestMediaArea(t)
	for _, name := range []string{"b.mp3", "a.flac", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(lib.MediaDir(), name), []byte("x"), 0644))
	}

	files, err := area.MediaFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(lib.MediaDir(), "a.flac"),
		filepath.Join(lib.MediaDir(), "b.mp3"),
	}, files)
}

func TestMediaArea_PurgeStaging(t *testing.T) {
	area, lib := newTestMediaArea(t)
	dir, err := area.PrepareSession("old")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.part"), []byte("x"), 0644))

	require.NoError(t, area.PurgeStaging())

	entries, err := os.ReadDir(lib.StagingDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
