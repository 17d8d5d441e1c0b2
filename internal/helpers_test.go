package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/nocturnecity/upload-resizer/pkg"
)

func newTestLog() *StdLog {
	return NewStdLog(WithLevel(DBG), WithOutput(io.Discard))
}

// encodeTestImage renders a w×h gradient in the given format.
func encodeTestImage(t *testing.T, w, h int, format string) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	switch format {
	case "webp":
		require.NoError(t, webp.Encode(&buf, img, &webp.Options{Lossless: true}))
	default:
		f, err := imaging.FormatFromExtension(format)
		require.NoError(t, err)
		require.NoError(t, imaging.Encode(&buf, img, f))
	}
	return buf.Bytes()
}

type resizeCall struct {
	width, height int
	opts          pkg.ResizeOptions
}

type fakeHandle struct {
	width, height int
	format        string
}

func (h *fakeHandle) Format() string { return h.format }

// fakeCodec pretends to resize: outputs take the requested dimensions and
// an unconstrained axis copies the constrained one.
type fakeCodec struct {
	format    string
	failWidth int
	failOp    string

	mu    sync.Mutex
	calls []resizeCall
}

func (c *fakeCodec) Resize(_ []byte, width, height int, opts pkg.ResizeOptions) (Handle, error) {
	c.mu.Lock()
	c.calls = append(c.calls, resizeCall{width: width, height: height, opts: opts})
	c.mu.Unlock()
	if c.failOp == "resize" && width == c.failWidth {
		return nil, errors.New("rejected dimensions")
	}
	if width == 0 {
		width = height
	}
	if height == 0 {
		height = width
	}
	format := c.format
	if format == "" {
		format = "png"
	}
	return &fakeHandle{width: width, height: height, format: format}, nil
}

func (c *fakeCodec) Reencode(h Handle, opt pkg.FormatOptions) (Handle, error) {
	if c.failOp == "reencode" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opt.Format)
	}
	fh := h.(*fakeHandle)
	return &fakeHandle{width: fh.width, height: fh.height, format: opt.Format}, nil
}

func (c *fakeCodec) Materialize(h Handle) (*Encoded, error) {
	fh := h.(*fakeHandle)
	data := []byte(fmt.Sprintf("%s:%dx%d", fh.format, fh.width, fh.height))
	return &Encoded{Data: data, Width: fh.width, Height: fh.height, Size: len(data)}, nil
}

func (c *fakeCodec) resizeCalls() []resizeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]resizeCall(nil), c.calls...)
}

// memStorage is an in-memory Storage that counts mutations.
type memStorage struct {
	mu       sync.Mutex
	files    map[string][]byte
	writes   int
	deletes  int
	writeErr  error
	statErr   error
	deleteErr error
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}}
}

func (s *memStorage) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statErr != nil {
		return false, s.statErr
	}
	_, ok := s.files[path]
	return ok, nil
}

func (s *memStorage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes++
	delete(s.files, path)
	return nil
}

func (s *memStorage) Write(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes++
	s.files[path] = append([]byte(nil), data...)
	return nil
}
