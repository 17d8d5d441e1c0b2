package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nocturnecity/upload-resizer/pkg"
)

var ErrNoImageSizes = errors.New("presets declare no image sizes")

// Presets is the resize configuration the CLI reads from a YAML file.
type Presets struct {
	ImageSizes          []pkg.ImageSize    `yaml:"image_sizes"`
	ResizeOptions       *pkg.ResizeOptions `yaml:"resize_options"`
	FormatOptions       *pkg.FormatOptions `yaml:"format_options"`
	DisableLocalStorage bool               `yaml:"disable_local_storage"`
	StaticDir           string             `yaml:"static_dir"`
}

func LoadPresets(path string) (*Presets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open presets: %w", err)
	}
	defer f.Close()
	return ParsePresets(f)
}

func ParsePresets(r io.Reader) (*Presets, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Presets
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate applies the same rules the HTTP API enforces on requests.
func (p *Presets) Validate() error {
	if len(p.ImageSizes) == 0 {
		return ErrNoImageSizes
	}
	req := pkg.Request{
		OriginalPath:  "presets",
		Sizes:         p.ImageSizes,
		FormatOptions: p.FormatOptions,
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid presets: %w", err)
	}
	return nil
}

// ResizeFile runs every preset size against the image at path.
func (p *Presets) ResizeFile(ctx context.Context, resizer *Resizer, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.Resize(ctx, resizer, data, filepath.Base(path))
}

func (p *Presets) Resize(ctx context.Context, resizer *Resizer, data []byte, filename string) (*Result, error) {
	dims, format, err := Probe(data)
	if err != nil {
		return nil, &CodecError{Size: "original", Op: "probe", Err: err}
	}
	return resizer.ResizeAndSave(ctx, Upload{
		Source:              data,
		Dimensions:          dims,
		Sizes:               p.ImageSizes,
		ResizeOptions:       p.ResizeOptions,
		FormatOptions:       p.FormatOptions,
		Filename:            filename,
		MimeType:            MimeTypeOf(format),
		StaticDir:           p.StaticDir,
		DisableLocalStorage: p.DisableLocalStorage,
	})
}
