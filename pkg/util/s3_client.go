package util

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// S3API is the subset of the S3 client used to store output documents.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer writes documents into one bucket.
type S3Writer struct {
	api     S3API
	bucket  string
	timeout time.Duration
	log     *zap.Logger
}

// NewS3Writer creates a writer for bucket.
func NewS3Writer(cfg aws.Config, bucket string, timeout time.Duration, log *zap.Logger) *S3Writer {
	return NewS3WriterWithAPI(s3.NewFromConfig(cfg), bucket, timeout, log)
}

// NewS3WriterWithAPI wraps an existing S3API implementation.
func NewS3WriterWithAPI(api S3API, bucket string, timeout time.Duration, log *zap.Logger) *S3Writer {
	return &S3Writer{
		api:     api,
		bucket:  bucket,
		timeout: timeout,
		log:     log.Named("s3"),
	}
}

// Put writes body under key. Failures are returned as StoreWriteError and
// are not retried.
func (w *S3Writer) Put(ctx context.Context, key string, body []byte, contentType string) error {
	defer Track(w.log, "put_object")()
	w.log.Info("writing object", zap.Int("bytes", len(body)), zap.String("bucket", w.bucket), zap.String("key", key))

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	_, err := w.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		status := HTTPStatus(err)
		w.log.Error("failed to put data in S3", zap.String("key", key), zap.Int("status", status), zap.Error(err))
		e := models.NewError(models.StoreWriteError, "put object "+w.bucket+"/"+key, err)
		e.Status = status
		return e
	}
	return nil
}
