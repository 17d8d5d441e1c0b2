package pkg

// FileSize describes one resized rendition of an upload.
type FileSize struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Filename string `json:"filename"`
	Filesize int    `json:"filesize"`
	MimeType string `json:"mimeType"`
}

// FileSizes is keyed by ImageSize.Name.
type FileSizes map[string]FileSize

// UploadBuffers holds the encoded bytes of every rendition, keyed by size name.
type UploadBuffers map[string][]byte

// ImageSize is a named target an upload gets resized to. Zero Width or
// Height means the dimension is unconstrained.
type ImageSize struct {
	Name   string `json:"name" yaml:"name"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height int    `json:"height,omitempty" yaml:"height,omitempty"`
	Crop   string `json:"crop,omitempty" yaml:"crop,omitempty"`
}

// Applicable reports whether at least one constrained axis fits within d.
func (s ImageSize) Applicable(d Dimensions) bool {
	return (s.Width > 0 && s.Width <= d.Width) || (s.Height > 0 && s.Height <= d.Height)
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type ResizeOptions struct {
	Fit                string `json:"fit,omitempty" yaml:"fit,omitempty"`
	Position           string `json:"position,omitempty" yaml:"position,omitempty"`
	Kernel             string `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Background         string `json:"background,omitempty" yaml:"background,omitempty"`
	WithoutEnlargement bool   `json:"without_enlargement,omitempty" yaml:"without_enlargement,omitempty"`
}

type FormatOptions struct {
	Format   string `json:"format" yaml:"format"`
	Quality  int    `json:"quality,omitempty" yaml:"quality,omitempty"`
	Lossless bool   `json:"lossless,omitempty" yaml:"lossless,omitempty"`
}
