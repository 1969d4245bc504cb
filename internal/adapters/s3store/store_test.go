package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

type fakeS3 struct {
	getIn  *s3.GetObjectInput
	getOut *s3.GetObjectOutput
	getErr error
	putIn  *s3.PutObjectInput
	putErr error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getIn = in
	return f.getOut, f.getErr
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putIn = in
	return &s3.PutObjectOutput{}, f.putErr
}

func body(s string) io.ReadCloser { return io.NopCloser(bytes.NewBufferString(s)) }

func statusErr(code int) error {
	return &awshttp.ResponseError{ResponseError: &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
		Err:      errors.New("http error"),
	}}
}

var ref = core.ObjectRef{Bucket: "data", Key: "incoming/orders.csv"}

func TestGetObjectRange(t *testing.T) {
	fake := &fakeS3{getOut: &s3.GetObjectOutput{
		Body:         body("order_id,amount\n1,2\n3,"),
		ContentRange: aws.String("bytes 0-21/500"),
	}}
	store := New(fake)

	r, err := store.GetObjectRange(context.Background(), core.GetRangeParams{Ref: ref, Length: 22})
	require.NoError(t, err)
	assert.Equal(t, "bytes=0-21", aws.ToString(fake.getIn.Range))
	assert.True(t, r.Truncated)
	assert.Equal(t, int64(500), r.Size)
}

func TestGetObjectRangeWholeSmallObject(t *testing.T) {
	fake := &fakeS3{getOut: &s3.GetObjectOutput{
		Body:         body("a,b\n1,2\n"),
		ContentRange: aws.String("bytes 0-7/8"),
	}}
	r, err := New(fake).GetObjectRange(context.Background(), core.GetRangeParams{Ref: ref, Length: 65536})
	require.NoError(t, err)
	assert.False(t, r.Truncated)
	assert.Equal(t, "a,b\n1,2\n", string(r.Data))
}

func TestGetObjectRangeEmptyObject(t *testing.T) {
	fake := &fakeS3{getErr: statusErr(http.StatusRequestedRangeNotSatisfiable)}
	r, err := New(fake).GetObjectRange(context.Background(), core.GetRangeParams{Ref: ref, Length: 10})
	require.NoError(t, err)
	assert.Empty(t, r.Data)
	assert.False(t, r.Truncated)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{"typed no such key", &types.NoSuchKey{}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, model.ErrObjectNotFound)
		}},
		{"404 status", statusErr(http.StatusNotFound), func(t *testing.T, err error) {
			assert.ErrorIs(t, err, model.ErrObjectNotFound)
		}},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, model.ErrObjectAccessDenied)
		}},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, func(t *testing.T, err error) {
			assert.True(t, apperrors.IsThrottled(err))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&fakeS3{getErr: tt.err}).GetObject(context.Background(), ref)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestPutObject(t *testing.T) {
	fake := &fakeS3{}
	err := New(fake).PutObject(context.Background(), core.PutObjectParams{
		Ref:  core.ObjectRef{Bucket: "data", Key: "output/orders/orders_nodes.csv"},
		Body: []byte("~id,~label\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", aws.ToString(fake.putIn.ContentType))
	assert.Equal(t, int64(11), aws.ToInt64(fake.putIn.ContentLength))
}
