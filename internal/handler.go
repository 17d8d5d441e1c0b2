package internal

import (
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/nocturnecity/upload-resizer/pkg"
)

type ResizerConfig struct {
	WorkingDirectory string
	StaticDir        string
	Parallelism      int
}

func NewResizeHandler(request pkg.Request, stdLog *StdLog, codec Codec, cfg ResizerConfig) *ResizeHandler {
	return &ResizeHandler{
		Request: request,
		log:     stdLog,
		codec:   codec,
		cfg:     cfg,
	}
}

type ResizeHandler struct {
	Request pkg.Request
	log     *StdLog
	codec   Codec
	cfg     ResizerConfig
	session *session.Session
}

func (rh *ResizeHandler) ProcessRequest(ctx context.Context) (*Result, error) {
	rh.log.Debug("Processing request %s with %d sizes", rh.Request.OriginalPath, len(rh.Request.Sizes))
	original, err := rh.fetchOriginal(ctx)
	if err != nil {
		return nil, fmt.Errorf("process request error: %w", err)
	}
	dims, format, err := Probe(original)
	if err != nil {
		return nil, fmt.Errorf("process request error: %w", &CodecError{Size: "original", Op: "probe", Err: err})
	}

	storage, staticDir, err := rh.destination()
	if err != nil {
		return nil, fmt.Errorf("process request error: %w", err)
	}

	filename := rh.Request.Filename
	if filename == "" {
		filename = path.Base(rh.Request.OriginalPath)
	}
	mimeType := rh.Request.MimeType
	if mimeType == "" {
		mimeType = MimeTypeOf(format)
	}

	resizer := NewResizer(rh.codec, storage, rh.log, WithParallelism(rh.cfg.Parallelism))
	result, err := resizer.ResizeAndSave(ctx, Upload{
		Source:              original,
		Dimensions:          dims,
		Sizes:               rh.Request.Sizes,
		ResizeOptions:       rh.Request.ResizeOptions,
		FormatOptions:       rh.Request.FormatOptions,
		Filename:            filename,
		MimeType:            mimeType,
		StaticDir:           staticDir,
		DisableLocalStorage: rh.Request.DisableLocalStorage && !rh.Request.FromS3(),
	})
	if err != nil {
		return nil, fmt.Errorf("process request error: %w", err)
	}
	return result, nil
}

func (rh *ResizeHandler) fetchOriginal(ctx context.Context) ([]byte, error) {
	if !rh.Request.FromS3() {
		return LocalSource{Dir: rh.cfg.WorkingDirectory}.Fetch(ctx, rh.Request.OriginalPath)
	}
	sess, err := rh.awsSession()
	if err != nil {
		return nil, err
	}
	return NewS3Source(sess, rh.log).Fetch(ctx, rh.Request.BucketName, rh.Request.OriginalPath)
}

// destination picks the bucket for S3 requests and the server's static
// directory otherwise. disable_local_storage only applies to the latter.
func (rh *ResizeHandler) destination() (Storage, string, error) {
	if rh.Request.FromS3() {
		sess, err := rh.awsSession()
		if err != nil {
			return nil, "", err
		}
		return NewS3Storage(sess, rh.Request.BucketName, "", rh.log), rh.Request.PathToSave, nil
	}
	return NewLocalStorage(rh.log), within(rh.cfg.StaticDir, rh.Request.PathToSave), nil
}

func (rh *ResizeHandler) awsSession() (*session.Session, error) {
	if rh.session != nil {
		return rh.session, nil
	}
	sess, err := NewS3Session(rh.Request.Region)
	if err != nil {
		return nil, err
	}
	rh.session = sess
	return sess, nil
}
