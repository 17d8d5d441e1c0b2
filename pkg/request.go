package pkg

import (
	"fmt"
	"strings"
)

type Request struct {
	OriginalPath        string         `json:"original_path"`
	PathToSave          string         `json:"path_to_save"`
	Filename            string         `json:"filename"`
	MimeType            string         `json:"mime_type"`
	BucketName          string         `json:"bucket_name"`
	Region              string         `json:"region"`
	Sizes               []ImageSize    `json:"sizes"`
	ResizeOptions       *ResizeOptions `json:"resize_options"`
	FormatOptions       *FormatOptions `json:"format_options"`
	DisableLocalStorage bool           `json:"disable_local_storage"`
}

// FromS3 reports whether the original and the results live in a bucket
// rather than on the server's disk.
func (req *Request) FromS3() bool {
	return req.BucketName != ""
}

func (req *Request) Validate() error {
	if req.OriginalPath == "" {
		return fmt.Errorf("original_path is required field")
	}

	if req.FromS3() && req.Region == "" {
		return fmt.Errorf("AWS region is required field")
	}

	if !req.FromS3() && strings.Contains(req.OriginalPath, "..") {
		return fmt.Errorf("original_path must not leave the working directory")
	}

	if req.FromS3() && req.PathToSave == "" {
		return fmt.Errorf("path_to_save is required field")
	}

	if len(req.Sizes) == 0 {
		return fmt.Errorf("at least 1 size required")
	}

	for i, size := range req.Sizes {
		if size.Name == "" {
			return fmt.Errorf("sizes[%d].name is required field", i)
		}

		if size.Width < 0 || size.Height < 0 {
			return fmt.Errorf("sizes[%d] dimensions must not be negative", i)
		}

		if size.Width == 0 && size.Height == 0 {
			return fmt.Errorf("sizes[%d] needs a width or a height", i)
		}
	}

	if req.FormatOptions != nil {
		if req.FormatOptions.Format == "" {
			return fmt.Errorf("format_options.format is required field")
		}

		if req.FormatOptions.Quality < 0 || req.FormatOptions.Quality > 100 {
			return fmt.Errorf("format_options.quality must be between 0 and 100")
		}
	}

	return nil
}
