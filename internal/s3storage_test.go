package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnecity/upload-resizer/pkg"
)

// fakeS3 serves the handful of path-style object calls the storage uses.
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(data)-1, len(data)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		f.contentTypes[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3(t *testing.T) (*fakeS3, *aws.Config) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, &aws.Config{
		Endpoint:         aws.String(srv.URL),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials("id", "secret", ""),
		MaxRetries:       aws.Int(0),
	}
}

func TestS3Storage(t *testing.T) {
	fake, cfg := newFakeS3(t)
	sess, err := NewS3Session("eu-west-1", cfg)
	require.NoError(t, err)
	s := NewS3Storage(sess, "media", "uploads/", newTestLog())
	ctx := context.Background()

	exists, err := s.Exists(ctx, "photo-10x10.webp")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Write(ctx, "photo-10x10.webp", []byte("webp bytes")))
	assert.Equal(t, []byte("webp bytes"), fake.objects["media/uploads/photo-10x10.webp"])
	assert.Equal(t, "image/webp", fake.contentTypes["media/uploads/photo-10x10.webp"])

	exists, err = s.Exists(ctx, "uploads/photo-10x10.webp")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, "photo-10x10.webp"))
	assert.Empty(t, fake.objects)
}

func TestS3Storage_WithResizer(t *testing.T) {
	fake, cfg := newFakeS3(t)
	sess, err := NewS3Session("eu-west-1", cfg)
	require.NoError(t, err)
	fake.objects["media/avatars/me-64x64.png"] = []byte("stale")

	r := NewResizer(&fakeCodec{}, NewS3Storage(sess, "media", "", newTestLog()), newTestLog())
	res, err := r.ResizeAndSave(context.Background(), Upload{
		Source:     []byte("src"),
		Dimensions: pkg.Dimensions{Width: 128, Height: 128},
		Sizes:      []pkg.ImageSize{{Name: "avatar", Width: 64, Height: 64}},
		Filename:   "me.png",
		MimeType:   "image/png",
		StaticDir:  "avatars",
	})
	require.NoError(t, err)

	assert.Equal(t, "me-64x64.png", res.Sizes["avatar"].Filename)
	assert.Equal(t, []byte("png:64x64"), fake.objects["media/avatars/me-64x64.png"])
}

func TestS3Source(t *testing.T) {
	fake, cfg := newFakeS3(t)
	sess, err := NewS3Session("eu-west-1", cfg)
	require.NoError(t, err)
	fake.objects["originals/in/photo.jpg"] = []byte("jpeg bytes")

	data, err := NewS3Source(sess, newTestLog()).Fetch(context.Background(), "originals", "in/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg bytes"), data)

	_, err = NewS3Source(sess, newTestLog()).Fetch(context.Background(), "originals", "missing.jpg")
	assert.Error(t, err)
}

func TestS3Storage_Key(t *testing.T) {
	s := &S3Storage{prefix: "uploads"}
	assert.Equal(t, "uploads/a.png", s.key("a.png"))
	assert.Equal(t, "uploads/a.png", s.key("/uploads/a.png"))
	assert.Equal(t, "uploads/x/a.png", s.key("x/a.png"))

	s = &S3Storage{}
	assert.Equal(t, "x/a.png", s.key("/x/a.png"))
}

func TestResizeHandler_S3UploadsEvenWithLocalStorageDisabled(t *testing.T) {
	fake, cfg := newFakeS3(t)
	sess, err := NewS3Session("eu-west-1", cfg)
	require.NoError(t, err)
	fake.objects["media/in/photo.png"] = encodeTestImage(t, 400, 300, "png")

	rh := NewResizeHandler(pkg.Request{
		OriginalPath:        "in/photo.png",
		PathToSave:          "out",
		BucketName:          "media",
		Region:              "eu-west-1",
		Sizes:               []pkg.ImageSize{{Name: "thumb", Width: 100, Height: 100}},
		DisableLocalStorage: true,
	}, newTestLog(), NewImagingCodec(), ResizerConfig{})
	rh.session = sess

	res, err := rh.ProcessRequest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "photo-100x100.png", res.Sizes["thumb"].Filename)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, res.Buffers["thumb"], fake.objects["media/out/photo-100x100.png"])
}
