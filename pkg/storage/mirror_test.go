package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirror(t *testing.T) {
	ctx := context.Background()
	srcDir, dstDir := t.TempDir(), t.TempDir()

	for name, content := range map[string]string{
		"LC08/sr_band1.tif": "band one",
		"LC08/MTL.txt":      "metadata",
		"README":            "readme",
	} {
		path := filepath.Join(srcDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dstDir, "LC08"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dstDir, "LC08", "MTL.txt"), []byte("METADATA"), 0644))

	src, err := NewLocal(srcDir)
	require.NoError(t, err)
	dst, err := NewLocal(dstDir)
	require.NoError(t, err)

	wrapped := 0
	var seen []string
	stats, err := Mirror(ctx, src, dst, "LC08", MirrorOptions{
		SkipExisting: true,
		Wrap: func(rc io.ReadCloser) io.ReadCloser {
			wrapped++
			return rc
		},
		OnFile: func(rel string, size int64, skipped bool) {
			seen = append(seen, rel)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 1, stats.Skipped, "same-size file is left in place")
	assert.Equal(t, int64(len("band one")), stats.Bytes)
	assert.Equal(t, 1, wrapped)
	assert.Len(t, seen, 2)

	data, err := os.ReadFile(filepath.Join(dstDir, "LC08", "sr_band1.tif"))
	require.NoError(t, err)
	assert.Equal(t, "band one", string(data))
	assert.NoFileExists(t, filepath.Join(dstDir, "README"), "files outside the prefix are not copied")

	t.Run("Overwrite", func(t *testing.T) {
		stats, err := Mirror(ctx, src, dst, "LC08", MirrorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Copied)
		data, err := os.ReadFile(filepath.Join(dstDir, "LC08", "MTL.txt"))
		require.NoError(t, err)
		assert.Equal(t, "metadata", string(data))
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Mirror(cctx, src, dst, "", MirrorOptions{})
		assert.Error(t, err)
	})
}
