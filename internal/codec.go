package internal

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/nocturnecity/upload-resizer/pkg"
)

const (
	FitCover   = "cover"
	FitContain = "contain"
	FitFill    = "fill"
	FitInside  = "inside"
	FitOutside = "outside"
)

const DefaultCrop = "centre"
const DefaultJpegFormat = "jpeg"
const DefaultWebpQuality = 80

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrUnknownAnchor     = errors.New("unknown crop anchor")
	ErrUnknownFit        = errors.New("unknown fit")
	ErrUnknownKernel     = errors.New("unknown resampling kernel")
	ErrInvalidBackground = errors.New("invalid background colour")
	ErrInvalidDimensions = errors.New("invalid target dimensions")
)

// Handle is an intermediate rendition owned by a Codec. Format names the
// encoding it will be materialized in.
type Handle interface {
	Format() string
}

// Encoded is a materialized rendition.
type Encoded struct {
	Data   []byte
	Width  int
	Height int
	Size   int
}

// Codec is the image processing capability the resizer delegates to.
type Codec interface {
	Resize(src []byte, width, height int, opts pkg.ResizeOptions) (Handle, error)
	Reencode(h Handle, format pkg.FormatOptions) (Handle, error)
	Materialize(h Handle) (*Encoded, error)
}

var anchors = map[string]imaging.Anchor{
	"centre":       imaging.Center,
	"center":       imaging.Center,
	"top":          imaging.Top,
	"north":        imaging.Top,
	"right top":    imaging.TopRight,
	"top right":    imaging.TopRight,
	"northeast":    imaging.TopRight,
	"right":        imaging.Right,
	"east":         imaging.Right,
	"right bottom": imaging.BottomRight,
	"bottom right": imaging.BottomRight,
	"southeast":    imaging.BottomRight,
	"bottom":       imaging.Bottom,
	"south":        imaging.Bottom,
	"left bottom":  imaging.BottomLeft,
	"bottom left":  imaging.BottomLeft,
	"southwest":    imaging.BottomLeft,
	"left":         imaging.Left,
	"west":         imaging.Left,
	"left top":     imaging.TopLeft,
	"top left":     imaging.TopLeft,
	"northwest":    imaging.TopLeft,
}

var kernels = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"lanczos3":   imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"cubic":      imaging.CatmullRom,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

var formats = map[string]imaging.Format{
	"jpeg": imaging.JPEG,
	"jpg":  imaging.JPEG,
	"png":  imaging.PNG,
	"gif":  imaging.GIF,
	"tiff": imaging.TIFF,
	"tif":  imaging.TIFF,
	"bmp":  imaging.BMP,
}

func parseAnchor(name string) (imaging.Anchor, error) {
	if name == "" {
		name = DefaultCrop
	}
	a, ok := anchors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return imaging.Center, fmt.Errorf("%w: %q", ErrUnknownAnchor, name)
	}
	return a, nil
}

func parseKernel(name string) (imaging.ResampleFilter, error) {
	if name == "" {
		return imaging.Lanczos, nil
	}
	k, ok := kernels[strings.ToLower(name)]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	return k, nil
}

// parseBackground reads "#rgb", "#rrggbb" or "#rrggbbaa". Empty means
// transparent black.
func parseBackground(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if hex == "" {
		return color.NRGBA{}, nil
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidBackground, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidBackground, s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

// ImagingCodec implements Codec in pure Go on top of imaging, with webp
// support from x/image (decode) and chai2010/webp (encode).
type ImagingCodec struct{}

type imagingHandle struct {
	img     image.Image
	format  string
	quality int
	lossy   bool
}

func (h *imagingHandle) Format() string { return h.format }

func (c *ImagingCodec) Resize(src []byte, width, height int, opts pkg.ResizeOptions) (Handle, error) {
	if width < 0 || height < 0 || (width == 0 && height == 0) {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	original, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	format = normalizeFormat(format)
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	resized, err := resize(original, width, height, opts)
	if err != nil {
		return nil, err
	}
	return &imagingHandle{img: resized, format: format, lossy: true}, nil
}

func (c *ImagingCodec) Reencode(h Handle, opt pkg.FormatOptions) (Handle, error) {
	ih, ok := h.(*imagingHandle)
	if !ok {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	format := normalizeFormat(opt.Format)
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	return &imagingHandle{img: ih.img, format: format, quality: opt.Quality, lossy: !opt.Lossless}, nil
}

func (c *ImagingCodec) Materialize(h Handle) (*Encoded, error) {
	ih, ok := h.(*imagingHandle)
	if !ok {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	var buf bytes.Buffer
	if err := encode(&buf, ih); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ih.format, err)
	}
	b := ih.img.Bounds()
	return &Encoded{
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Size:   buf.Len(),
	}, nil
}

func normalizeFormat(format string) string {
	format = strings.ToLower(format)
	switch format {
	case "jpg":
		return DefaultJpegFormat
	case "tif":
		return "tiff"
	}
	return format
}

func checkFormat(format string) error {
	if _, ok := formats[format]; !ok && format != "webp" {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return nil
}

func encode(w io.Writer, h *imagingHandle) error {
	if h.format == "webp" {
		opts := &webp.Options{Lossless: !h.lossy, Quality: DefaultWebpQuality}
		if h.quality > 0 {
			opts.Quality = float32(h.quality)
		}
		return webp.Encode(w, h.img, opts)
	}
	f, ok := formats[h.format]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, h.format)
	}
	var opts []imaging.EncodeOption
	if h.quality > 0 {
		opts = append(opts, imaging.JPEGQuality(h.quality))
	}
	return imaging.Encode(w, h.img, f, opts...)
}

func resize(src image.Image, width, height int, opts pkg.ResizeOptions) (image.Image, error) {
	filter, err := parseKernel(opts.Kernel)
	if err != nil {
		return nil, err
	}
	anchor, err := parseAnchor(opts.Position)
	if err != nil {
		return nil, err
	}
	fit := strings.ToLower(opts.Fit)
	if fit == "" {
		fit = FitCover
	}

	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	if opts.WithoutEnlargement && (width > sw || height > sh) {
		if width > sw {
			width = sw
		}
		if height > sh {
			height = sh
		}
	}

	// One unconstrained axis keeps the aspect ratio whatever the fit.
	if width == 0 || height == 0 {
		return imaging.Resize(src, width, height, filter), nil
	}

	switch fit {
	case FitCover:
		return imaging.Fill(src, width, height, anchor, filter), nil
	case FitFill:
		return imaging.Resize(src, width, height, filter), nil
	case FitInside:
		w, h := scaled(sw, sh, math.Min(float64(width)/float64(sw), float64(height)/float64(sh)))
		return imaging.Resize(src, w, h, filter), nil
	case FitOutside:
		w, h := scaled(sw, sh, math.Max(float64(width)/float64(sw), float64(height)/float64(sh)))
		return imaging.Resize(src, w, h, filter), nil
	case FitContain:
		bg, err := parseBackground(opts.Background)
		if err != nil {
			return nil, err
		}
		w, h := scaled(sw, sh, math.Min(float64(width)/float64(sw), float64(height)/float64(sh)))
		inner := imaging.Resize(src, w, h, filter)
		canvas := imaging.New(width, height, bg)
		return imaging.Paste(canvas, inner, anchorOffset(anchor, width, height, w, h)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFit, opts.Fit)
}

func scaled(w, h int, ratio float64) (int, int) {
	sw := int(math.Round(float64(w) * ratio))
	sh := int(math.Round(float64(h) * ratio))
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	return sw, sh
}

func anchorOffset(a imaging.Anchor, cw, ch, w, h int) image.Point {
	var x, y int
	switch a {
	case imaging.TopLeft, imaging.Left, imaging.BottomLeft:
		x = 0
	case imaging.TopRight, imaging.Right, imaging.BottomRight:
		x = cw - w
	default:
		x = (cw - w) / 2
	}
	switch a {
	case imaging.TopLeft, imaging.Top, imaging.TopRight:
		y = 0
	case imaging.BottomLeft, imaging.Bottom, imaging.BottomRight:
		y = ch - h
	default:
		y = (ch - h) / 2
	}
	return image.Pt(x, y)
}
