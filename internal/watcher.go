package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

var ErrWatchIntoItself = errors.New("static directory must differ from the watched directory")

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// Watcher resizes every image that lands in a directory.
type Watcher struct {
	dir      string
	presets  *Presets
	resizer  *Resizer
	log      *StdLog
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup

	// OnResult, when set, is called after each processed file.
	OnResult func(path string, res *Result, err error)
}

func NewWatcher(dir string, presets *Presets, resizer *Resizer, log *StdLog) (*Watcher, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	absStatic, err := filepath.Abs(presets.StaticDir)
	if err != nil {
		return nil, err
	}
	if absDir == absStatic {
		return nil, ErrWatchIntoItself
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(absDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch folder %s: %w", absDir, err)
	}
	return &Watcher{
		dir:      absDir,
		presets:  presets,
		resizer:  resizer,
		log:      log,
		fsw:      fsw,
		debounce: DefaultDebounce,
		pending:  map[string]*time.Timer{},
	}, nil
}

// Run processes events until ctx is done, then waits for in-flight resizes.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("Watching folder: %s", w.dir)
	defer func() {
		w.mu.Lock()
		for path, t := range w.pending {
			if t.Stop() {
				w.wg.Done()
			}
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.wg.Wait()
		w.fsw.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.wants(event) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) wants(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return imageExtensions[strings.ToLower(filepath.Ext(base))]
}

// schedule restarts the debounce timer for path so a file still being
// copied is processed once, after writes settle.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.process(ctx, path)
	})
	w.pending[path] = timer
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		w.log.Debug("Skipping %s: %v", path, err)
		return
	}
	res, err := w.presets.ResizeFile(ctx, w.resizer, path)
	if err != nil {
		w.log.Error("resize %s: %v", path, err)
	} else {
		w.log.Info("Resized %s into %d sizes", path, len(res.Sizes))
	}
	if w.OnResult != nil {
		w.OnResult(path, res, err)
	}
}
