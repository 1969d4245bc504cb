// Package s3store implements core.ObjectStore on Amazon S3.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ API = (*s3.Client)(nil)

// Store reads and writes pipeline objects.
type Store struct {
	client API
}

var _ core.ObjectStore = (*Store)(nil)

// New creates a Store over client.
func New(client API) *Store {
	return &Store{client: client}
}

// GetObject reads a whole object.
func (s *Store) GetObject(ctx context.Context, ref core.ObjectRef) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, mapError(ref, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", ref.Bucket, ref.Key, err)
	}
	return body, nil
}

// GetObjectRange reads at most Length bytes starting at Offset.
func (s *Store) GetObjectRange(ctx context.Context, p core.GetRangeParams) (*core.ObjectRange, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(p.Ref.Bucket),
		Key:    aws.String(p.Ref.Key),
	}
	if p.Length > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-%d", p.Offset, p.Offset+p.Length-1))
	}
	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		// An empty object cannot satisfy any range.
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusRequestedRangeNotSatisfiable {
			return &core.ObjectRange{}, nil
		}
		return nil, mapError(p.Ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", p.Ref.Bucket, p.Ref.Key, err)
	}

	size := totalSize(aws.ToString(out.ContentRange))
	if size < 0 {
		size = p.Offset + int64(len(data))
	}
	return &core.ObjectRange{
		Data:      data,
		Truncated: p.Offset+int64(len(data)) < size,
		Size:      size,
	}, nil
}

// PutObject writes an object, replacing any existing one.
func (s *Store) PutObject(ctx context.Context, p core.PutObjectParams) error {
	contentType := p.ContentType
	if contentType == "" {
		contentType = "text/csv"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.Ref.Bucket),
		Key:           aws.String(p.Ref.Key),
		Body:          bytes.NewReader(p.Body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(p.Body))),
	})
	if err != nil {
		return mapError(p.Ref, err)
	}
	return nil
}

// totalSize parses the object size out of "bytes 0-99/1234"; -1 if unknown.
func totalSize(contentRange string) int64 {
	_, total, ok := strings.Cut(contentRange, "/")
	if !ok || total == "*" {
		return -1
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func mapError(ref core.ObjectRef, err error) error {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return fmt.Errorf("s3://%s/%s: %w", ref.Bucket, ref.Key, model.ErrObjectNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("s3://%s/%s: %w", ref.Bucket, ref.Key, model.ErrObjectNotFound)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("s3://%s/%s: %w", ref.Bucket, ref.Key, model.ErrObjectAccessDenied)
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("s3://%s/%s: %w", ref.Bucket, ref.Key, model.ErrObjectNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("s3://%s/%s: %w", ref.Bucket, ref.Key, model.ErrObjectAccessDenied)
		}
	}
	return fmt.Errorf("s3://%s/%s: %w", ref.Bucket, ref.Key, apperrors.MapAWSError(err))
}
