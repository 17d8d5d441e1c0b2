package internal

import (
	"bytes"
	"fmt"
	"image"
	"mime"
	"path/filepath"
	"strings"

	// jpeg, png, gif, tiff and bmp come in with imaging.
	_ "golang.org/x/image/webp"

	"github.com/nocturnecity/upload-resizer/pkg"
)

var mimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"tiff": "image/tiff",
	"bmp":  "image/bmp",
	"webp": "image/webp",
}

// Probe reads the dimensions and format of an encoded image without
// decoding its pixels.
func Probe(data []byte) (pkg.Dimensions, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return pkg.Dimensions{}, "", fmt.Errorf("probe image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return pkg.Dimensions{}, "", fmt.Errorf("probe image: empty %dx%d image", cfg.Width, cfg.Height)
	}
	return pkg.Dimensions{Width: cfg.Width, Height: cfg.Height}, normalizeFormat(format), nil
}

func MimeTypeOf(format string) string {
	if m, ok := mimeTypes[normalizeFormat(format)]; ok {
		return m
	}
	return "application/octet-stream"
}

// ContentTypeOf guesses the MIME type of a stored file from its name.
func ContentTypeOf(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if m, ok := mimeTypes[normalizeFormat(ext)]; ok {
		return m
	}
	if m := mime.TypeByExtension(filepath.Ext(path)); m != "" {
		return m
	}
	return "application/octet-stream"
}
