package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client this adapter calls.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner is the subset of *s3.PresignClient this adapter calls.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements Store against a single S3 bucket.
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
}

// NewS3Store constructs a bucket-scoped Store. Wrap it with
// NewAllowlistedStore before handing it to callers that build keys from
// request input.
func NewS3Store(client S3API, presigner Presigner, bucket string) *S3Store {
	return &S3Store{client: client, presigner: presigner, bucket: bucket}
}

func (s *S3Store) PutBytes(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("objectstore put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) GetBytes(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	meta, err := s.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	if meta.ContentLength <= 0 {
		return nil, nil
	}
	if maxBytes > 0 && meta.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, max is %d", ErrObjectTooLarge, key, meta.ContentLength, maxBytes)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("objectstore get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore read body %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (ObjectMeta, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return ObjectMeta{}, fmt.Errorf("objectstore head %s: %w", key, err)
		}
		return ObjectMeta{}, fmt.Errorf("objectstore head %s: %w", key, err)
	}
	meta := ObjectMeta{Key: key}
	if out.ContentLength != nil {
		meta.ContentLength = *out.ContentLength
	}
	if out.ContentType != nil {
		meta.ContentType = *out.ContentType
	}
	if out.ETag != nil {
		meta.ETag = *out.ETag
	}
	return meta, nil
}

// ListObjects enumerates up to 1000 keys under prefix in a single page.
// Pagination beyond that is not exposed; callers needing more should narrow
// the prefix instead.
func (s *S3Store) ListObjects(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore list %s: %w", prefix, err)
	}
	metas := make([]ObjectMeta, 0, len(out.Contents))
	for _, obj := range out.Contents {
		meta := ObjectMeta{}
		if obj.Key != nil {
			meta.Key = *obj.Key
		}
		if obj.Size != nil {
			meta.ContentLength = *obj.Size
		}
		if obj.ETag != nil {
			meta.ETag = *obj.ETag
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (s *S3Store) Copy(ctx context.Context, sourceKey, destKey string) error {
	source := fmt.Sprintf("%s/%s", s.bucket, sourceKey)
	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(destKey),
	}); err != nil {
		return fmt.Errorf("objectstore copy %s -> %s: %w", sourceKey, destKey, err)
	}
	return nil
}

func (s *S3Store) Move(ctx context.Context, sourceKey, destKey string) error {
	if err := s.Copy(ctx, sourceKey, destKey); err != nil {
		return err
	}
	return s.Delete(ctx, sourceKey)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("objectstore delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, expiresIn time.Duration) (PresignedRequest, error) {
	expiresIn = ClampPutExpiry(expiresIn)
	input := &s3.PutObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := s.presigner.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = expiresIn })
	if err != nil {
		return PresignedRequest{}, fmt.Errorf("objectstore presign put %s: %w", key, err)
	}
	return PresignedRequest{Bucket: s.bucket, Key: key, URL: req.URL}, nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string, expiresIn time.Duration) (PresignedRequest, error) {
	expiresIn = ClampGetExpiry(expiresIn)
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)},
		func(o *s3.PresignOptions) { o.Expires = expiresIn })
	if err != nil {
		return PresignedRequest{}, fmt.Errorf("objectstore presign get %s: %w", key, err)
	}
	return PresignedRequest{Bucket: s.bucket, Key: key, URL: req.URL}, nil
}
