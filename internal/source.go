package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

func NewS3Source(sess *session.Session, log *StdLog) *S3Source {
	return &S3Source{downloader: s3manager.NewDownloader(sess), log: log}
}

// S3Source fetches originals from a bucket.
type S3Source struct {
	downloader *s3manager.Downloader
	log        *StdLog
}

func (s *S3Source) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download file, %w", err)
	}
	s.log.Debug("Receive file from S3 %s", key)
	return buf.Bytes(), nil
}

// LocalSource reads originals from a working directory.
type LocalSource struct {
	Dir string
}

func (s LocalSource) Fetch(_ context.Context, name string) ([]byte, error) {
	p := within(s.Dir, name)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", name, err)
	}
	return data, nil
}

// within resolves name below dir and never above it. An empty dir is the
// current directory, not the filesystem root.
func within(dir, name string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, filepath.Clean("/"+name))
}
