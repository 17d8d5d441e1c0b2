package internal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "holiday", want: "holiday"},
		{in: "my photo", want: "my photo"},
		{in: "a/b\\c:d*e?f\"g<h>i|j", want: "abcdefghij"},
		{in: "tab\there\x00", want: "tabhere"},
		{in: "..", want: ""},
		{in: ".", want: ""},
		{in: "CON", want: ""},
		{in: "lpt1.txt", want: ""},
		{in: "console", want: "console"},
		{in: "trailing. . ", want: "trailing"},
		{in: "???", want: ""},
		{in: "фото", want: "фото"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	got := sanitizeFilename(strings.Repeat("é", 200))
	assert.LessOrEqual(t, len(got), maxFilenameBytes)
	assert.Equal(t, 254, len(got))
	assert.True(t, strings.HasPrefix(strings.Repeat("é", 200), got))
}

func TestSplitFilename(t *testing.T) {
	tests := []struct {
		in, stem, ext string
	}{
		{in: "photo.jpg", stem: "photo", ext: "jpg"},
		{in: "archive.tar.gz", stem: "archive.tar", ext: "gz"},
		{in: "photo", stem: "photo", ext: ""},
		{in: ".hidden", stem: ".hidden", ext: ""},
		{in: "trailing.", stem: "trailing", ext: ""},
	}
	for _, tt := range tests {
		stem, ext := splitFilename(tt.in)
		assert.Equal(t, tt.stem, stem, tt.in)
		assert.Equal(t, tt.ext, ext, tt.in)
	}
}

func TestOutputName(t *testing.T) {
	src := []byte("pixels")

	name := newOutputName("photo.jpg", src)
	assert.Equal(t, "photo-10x20.jpg", name.withDimensions(10, 20, "", "jpeg"))
	assert.Equal(t, "photo-10x20.webp", name.withDimensions(10, 20, "webp", "webp"))

	name = newOutputName("photo", src)
	assert.Equal(t, "photo-10x20.png", name.withDimensions(10, 20, "", "png"))

	name = newOutputName("***.png", src)
	assert.Equal(t, newOutputName("<>.png", src).stem, name.stem)
	assert.NotEqual(t, newOutputName("<>.png", []byte("other")).stem, name.stem)
	assert.Len(t, name.stem, 36)
}

func TestJoinStatic(t *testing.T) {
	path, err := joinStatic("/srv/media", "photo-1x1.png")
	require.NoError(t, err)
	assert.Equal(t, "/srv/media/photo-1x1.png", path)

	path, err = joinStatic("", "photo-1x1.png")
	require.NoError(t, err)
	assert.Equal(t, "photo-1x1.png", path)

	for _, bad := range []string{"", "..", "../x.png", "a/b.png", `a\b.png`} {
		_, err := joinStatic("/srv/media", bad)
		assert.Error(t, err, bad)
	}
}
