package internal

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const maxFilenameBytes = 255

var (
	illegalChars   = regexp.MustCompile(`[/?<>\\:*|"]`)
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x80-\x9f]`)
	reservedNames  = regexp.MustCompile(`^\.+$`)
	windowsNames   = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
	windowsTrailer = regexp.MustCompile(`[. ]+$`)
)

// sanitizeFilename strips characters that are unsafe in a file name on
// any common filesystem. The result may be empty.
func sanitizeFilename(name string) string {
	name = illegalChars.ReplaceAllString(name, "")
	name = controlChars.ReplaceAllString(name, "")
	name = reservedNames.ReplaceAllString(name, "")
	name = windowsNames.ReplaceAllString(name, "")
	name = windowsTrailer.ReplaceAllString(name, "")
	return truncateUTF8(name, maxFilenameBytes)
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !isRuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// splitFilename separates the base filename into stem and extension at the
// last dot. A name without a dot, or with only a leading one, is all stem.
func splitFilename(filename string) (string, string) {
	pos := strings.LastIndex(filename, ".")
	if pos <= 0 {
		return filename, ""
	}
	return filename[:pos], filename[pos+1:]
}

// fallbackStem names outputs of uploads whose filename sanitizes to nothing.
// It is derived from the source bytes so repeated uploads of the same file
// land on the same path.
func fallbackStem(source []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, source).String()
}

type outputName struct {
	stem, ext string
}

func newOutputName(baseFilename string, source []byte) outputName {
	stem, ext := splitFilename(baseFilename)
	stem = sanitizeFilename(stem)
	if stem == "" {
		stem = fallbackStem(source)
	}
	return outputName{stem: stem, ext: sanitizeFilename(ext)}
}

// withDimensions renders "{stem}-{w}x{h}.{ext}". formatExt wins over the
// original extension; encodedFormat is the last resort.
func (n outputName) withDimensions(width, height int, formatExt, encodedFormat string) string {
	ext := n.ext
	if formatExt != "" {
		ext = formatExt
	}
	if ext == "" {
		ext = encodedFormat
	}
	name := fmt.Sprintf("%s-%dx%d", n.stem, width, height)
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// joinStatic joins dir and filename, refusing anything that would resolve
// outside dir.
func joinStatic(dir, filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." || filepath.Base(filename) != filename || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("filename is not a single path element")
	}
	path := filepath.Join(dir, filename)
	rel, err := filepath.Rel(filepath.Clean(dir), path)
	if err != nil || rel != filename {
		return "", fmt.Errorf("path escapes static directory")
	}
	return path, nil
}
