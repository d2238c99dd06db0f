package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client is the part of *s3.Client used by S3Store.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps files as objects in an S3 or S3-compatible bucket, under an
// optional key prefix.
type S3Store struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3 returns an S3Store. The client carries credentials, region and
// endpoint.
func NewS3(client S3Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(path string) *string {
	if s.prefix == "" {
		return aws.String(path)
	}
	return aws.String(s.prefix + "/" + path)
}

func (s *S3Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := checkPath("open", path); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(path),
	})
	if err != nil {
		return nil, s3Err("open", path, err)
	}
	return out.Body, nil
}

// Create streams the written bytes into a PutObject call running in the
// background. Close waits for the upload and returns its error. The upload
// outlives ctx; only its values are kept.
func (s *S3Store) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := checkPath("create", path); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	pr, pw := io.Pipe()
	u := &upload{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    s.key(path),
			Body:   pr,
		})
		if err != nil {
			u.err = s3Err("create", path, err)
		}
		pr.CloseWithError(u.err)
	}()
	return u, nil
}

func (s *S3Store) Remove(ctx context.Context, path string) error {
	if err := checkPath("remove", path); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(path),
	})
	if err != nil {
		if err := s3Err("remove", path, err); !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := checkPath("stat", path); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(path),
	})
	if err == nil {
		return true, nil
	}
	if err := s3Err("stat", path, err); !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return false, nil
}

type upload struct {
	pw   *io.PipeWriter
	done chan struct{}
	once sync.Once
	err  error
}

func (u *upload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

func (u *upload) Close() error {
	u.once.Do(func() { u.pw.Close() })
	<-u.done
	return u.err
}

// s3Err maps S3 error codes onto fs sentinels. The API error stays in the
// chain for errors.As.
func s3Err(op, path string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return pathErr(op, path, err)
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey":
		return pathErr(op, path, &classified{fs.ErrNotExist, err})
	case "AccessDenied", "Forbidden", "AllAccessDisabled":
		return pathErr(op, path, &classified{fs.ErrPermission, err})
	}
	return pathErr(op, path, err)
}

// classified reads as the SDK error and matches both it and kind.
type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string   { return c.err.Error() }
func (c *classified) Unwrap() []error { return []error{c.kind, c.err} }

var _ FileStore = (*S3Store)(nil)
