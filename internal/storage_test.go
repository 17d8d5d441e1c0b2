package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStorage(newTestLog())
	path := filepath.Join(t.TempDir(), "nested", "photo-10x10.png")

	exists, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Write(ctx, path, []byte("first")))
	exists, err = s.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Write(ctx, path, []byte("2nd")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("2nd"), data)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	require.NoError(t, s.Delete(ctx, path))
	require.NoError(t, s.Delete(ctx, path), "deleting a missing file is fine")
	exists, err = s.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorage_WriteHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "photo.png")

	err := NewLocalStorage(newTestLog()).Write(ctx, path, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644))
	src := LocalSource{Dir: dir}

	data, err := src.Fetch(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	data, err = src.Fetch(context.Background(), "../../a.png")
	require.NoError(t, err, "lookups are confined to the directory")
	assert.Equal(t, []byte("png"), data)

	_, err = src.Fetch(context.Background(), "missing.png")
	assert.Error(t, err)

	_, err = LocalSource{}.Fetch(context.Background(), filepath.Join(dir, "a.png"))
	assert.Error(t, err, "an empty directory is the current one, not the root")
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{dir: "", name: "/etc/hostname", want: "etc/hostname"},
		{dir: "", name: "gallery", want: "gallery"},
		{dir: "", name: "", want: "."},
		{dir: "/srv/static", name: "../../etc", want: "/srv/static/etc"},
		{dir: "/srv/static", name: "a/b.png", want: "/srv/static/a/b.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(tt.dir, tt.name), "%q + %q", tt.dir, tt.name)
	}
}
