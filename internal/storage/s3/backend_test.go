// Integration tests against a real S3-compatible endpoint.
//
// They are skipped unless TEST_S3_ENDPOINT is set, e.g.:
//
//	docker run -p 9000:9000 minio/minio server /data
//	TEST_S3_ENDPOINT=http://localhost:9000 go test ./internal/storage/s3/
package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/storage"
)

func TestCopySourceEscapesSegments(t *testing.T) {
	assert.Equal(t, "bucket/user-1-files/my%20docs/a+b.txt", copySource("bucket", "user-1-files/my docs/a+b.txt"))
	assert.Equal(t, "bucket/dir/", copySource("bucket", "dir/"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func newTestBackend(t *testing.T) *S3Backend {
	t.Helper()
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}
	logging.InitNop()

	b, err := NewBackend(context.Background(), Config{
		Endpoint:  endpoint,
		Bucket:    "cloudstore-test",
		AccessKey: envOr("TEST_S3_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("TEST_S3_SECRET_KEY", "minioadmin"),
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return b
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestS3BackendRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	prefix := "test-" + uuid.NewString() + "/"

	require.NoError(t, b.PutObject(ctx, prefix, strings.NewReader(""), 0, storage.DirectoryContentType))
	require.NoError(t, b.PutObject(ctx, prefix+"a.txt", strings.NewReader("hello"), 5, "text/plain"))
	require.NoError(t, b.PutObject(ctx, prefix+"sub/b.txt", strings.NewReader("world!"), 6, ""))

	info, err := b.HeadObject(ctx, prefix+"a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)

	_, err = b.HeadObject(ctx, prefix+"missing")
	assert.True(t, storage.IsNotFound(err))

	children, err := b.ListObjects(ctx, prefix, false)
	require.NoError(t, err)
	var keys []string
	for _, c := range children {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{prefix, prefix + "a.txt", prefix + "sub/"}, keys)

	all, err := b.ListObjects(ctx, prefix, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, b.CopyObject(ctx, prefix+"a.txt", prefix+"copy of a.txt"))
	rc, err := b.GetObject(ctx, prefix+"copy of a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	for _, k := range []string{prefix + "a.txt", prefix + "copy of a.txt", prefix + "sub/b.txt", prefix} {
		require.NoError(t, b.DeleteObject(ctx, k))
	}
	require.NoError(t, b.DeleteObject(ctx, prefix+"never-existed"))
}
