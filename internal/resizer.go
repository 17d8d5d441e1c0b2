package internal

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nocturnecity/upload-resizer/pkg"
)

// Upload is everything ResizeAndSave needs to know about one uploaded image.
type Upload struct {
	Source              []byte
	Dimensions          pkg.Dimensions
	Sizes               []pkg.ImageSize
	ResizeOptions       *pkg.ResizeOptions
	FormatOptions       *pkg.FormatOptions
	Filename            string
	MimeType            string
	StaticDir           string
	DisableLocalStorage bool
}

// Result carries the metadata of every produced size together with the
// encoded bytes, which callers hand on to upload adapters.
type Result struct {
	Sizes   pkg.FileSizes
	Buffers pkg.UploadBuffers
	Skipped []string
}

type ResizerOption func(r *Resizer)

// WithParallelism caps how many sizes are processed at once. Zero or less
// means no cap.
func WithParallelism(n int) ResizerOption { return func(r *Resizer) { r.parallelism = n } }

func NewResizer(codec Codec, storage Storage, log *StdLog, opts ...ResizerOption) *Resizer {
	r := &Resizer{
		codec:   codec,
		storage: storage,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type Resizer struct {
	codec       Codec
	storage     Storage
	log         *StdLog
	parallelism int
}

type sizeOutcome struct {
	name string
	size pkg.FileSize
	data []byte
}

// ResizeAndSave renders every applicable size of the upload, stores it and
// returns the result keyed by size name. Sizes run concurrently; the first
// failure cancels the rest and no partial result is returned. When names
// collide the size declared last wins.
func (r *Resizer) ResizeAndSave(ctx context.Context, up Upload) (*Result, error) {
	applicable, skipped := planSizes(up.Sizes, up.Dimensions)
	for _, name := range skipped {
		r.log.Debug("Skipping size %s: larger than %dx%d source", name, up.Dimensions.Width, up.Dimensions.Height)
	}

	name := newOutputName(up.Filename, up.Source)
	locks := &pathLocks{m: map[string]*sync.Mutex{}}
	outcomes := make([]sizeOutcome, len(applicable))

	g, gctx := errgroup.WithContext(ctx)
	if r.parallelism > 0 {
		g.SetLimit(r.parallelism)
	}
	for i, size := range applicable {
		i, size := i, size
		g.Go(func() error {
			out, err := r.processSize(gctx, up, size, name, locks)
			if err != nil {
				return err
			}
			outcomes[i] = *out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Sizes:   make(pkg.FileSizes, len(outcomes)),
		Buffers: make(pkg.UploadBuffers, len(outcomes)),
		Skipped: skipped,
	}
	for _, out := range outcomes {
		result.Sizes[out.name] = out.size
		result.Buffers[out.name] = out.data
	}
	return result, nil
}

func planSizes(sizes []pkg.ImageSize, dims pkg.Dimensions) (applicable []pkg.ImageSize, skipped []string) {
	for _, size := range sizes {
		if size.Applicable(dims) {
			applicable = append(applicable, size)
		} else {
			skipped = append(skipped, size.Name)
		}
	}
	return applicable, skipped
}

func (r *Resizer) processSize(ctx context.Context, up Upload, size pkg.ImageSize, name outputName, locks *pathLocks) (*sizeOutcome, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := pkg.ResizeOptions{Fit: FitCover, Position: size.Crop}
	if up.ResizeOptions != nil {
		opts = *up.ResizeOptions
	}
	handle, err := r.codec.Resize(up.Source, size.Width, size.Height, opts)
	if err != nil {
		return nil, &CodecError{Size: size.Name, Op: "resize", Err: err}
	}

	formatExt := ""
	mimeType := up.MimeType
	if up.FormatOptions != nil {
		handle, err = r.codec.Reencode(handle, *up.FormatOptions)
		if err != nil {
			return nil, &CodecError{Size: size.Name, Op: "reencode", Err: err}
		}
		formatExt = strings.ToLower(up.FormatOptions.Format)
		mimeType = "image/" + formatExt
	}

	encoded, err := r.codec.Materialize(handle)
	if err != nil {
		return nil, &CodecError{Size: size.Name, Op: "encode", Err: err}
	}

	filename := name.withDimensions(encoded.Width, encoded.Height, formatExt, handle.Format())
	path, err := joinStatic(up.StaticDir, filename)
	if err != nil {
		return nil, &SanitizationError{Size: size.Name, Filename: filename, Reason: err.Error()}
	}

	if err := r.store(ctx, up, size.Name, path, encoded.Data, locks); err != nil {
		return nil, err
	}

	r.log.Debug("Resized %s to %s (%dx%d, %d bytes) in %s",
		size.Name, filename, encoded.Width, encoded.Height, encoded.Size, time.Since(start))

	return &sizeOutcome{
		name: size.Name,
		size: pkg.FileSize{
			Width:    encoded.Width,
			Height:   encoded.Height,
			Filename: filename,
			Filesize: encoded.Size,
			MimeType: mimeType,
		},
		data: encoded.Data,
	}, nil
}

// store replaces whatever sits at path. A stale file is removed even when
// local storage is disabled.
func (r *Resizer) store(ctx context.Context, up Upload, sizeName, path string, data []byte, locks *pathLocks) error {
	unlock := locks.lock(path)
	defer unlock()

	exists, err := r.storage.Exists(ctx, path)
	if err != nil {
		return &StorageError{Size: sizeName, Op: "stat", Path: path, Err: err}
	}
	if exists {
		if err := r.storage.Delete(ctx, path); err != nil {
			return &StorageError{Size: sizeName, Op: "delete", Path: path, Err: err}
		}
	}
	if up.DisableLocalStorage {
		return nil
	}
	if err := r.storage.Write(ctx, path, data); err != nil {
		return &StorageError{Size: sizeName, Op: "write", Path: path, Err: err}
	}
	return nil
}

// pathLocks serialises storage access per path within one call.
type pathLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *pathLocks) lock(path string) func() {
	l.mu.Lock()
	mu, ok := l.m[path]
	if !ok {
		mu = &sync.Mutex{}
		l.m[path] = mu
	}
	l.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}
