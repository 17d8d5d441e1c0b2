package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// NewS3Session creates the session shared by S3Storage and S3Source.
func NewS3Session(region string, cfgs ...*aws.Config) (*session.Session, error) {
	cfg := aws.NewConfig().WithRegion(region)
	for _, c := range cfgs {
		cfg.MergeIn(c)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func NewS3Storage(sess *session.Session, bucket, prefix string, log *StdLog) *S3Storage {
	return &S3Storage{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		log:      log,
	}
}

// S3Storage maps storage paths to object keys below prefix.
type S3Storage struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
	log      *StdLog
}

func (s *S3Storage) key(p string) string {
	p = strings.TrimLeft(filepath.ToSlash(p), "/")
	if s.prefix == "" || p == s.prefix || strings.HasPrefix(p, s.prefix+"/") {
		return p
	}
	return path.Join(s.prefix, p)
}

func (s *S3Storage) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err == nil {
		return true, nil
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object: %w", err)
}

func (s *S3Storage) Delete(ctx context.Context, p string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	s.log.Debug("Deleted from S3 %s", s.key(p))
	return nil
}

func (s *S3Storage) Write(ctx context.Context, p string, data []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(p)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentTypeOf(p)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file, %w", err)
	}
	s.log.Debug("Put file to S3 %s", s.key(p))
	return nil
}
