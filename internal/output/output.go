// Package output opens the destination for downloaded archives.
//
// The destination is a gocloud.dev/blob bucket. A plain directory path (the
// usual case on a shared cluster filesystem) is served by fileblob; bucket
// URLs such as s3://, gs:// or mem:// are opened with blob.OpenBucket.
package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned by Stat when the artifact does not exist.
var ErrNotFound = errors.New("output: artifact not found")

// IsURL reports whether location is a bucket URL rather than a path.
func IsURL(location string) bool {
	return strings.Contains(location, "://")
}

// Open opens location as a bucket. Directories are created if needed.
func Open(ctx context.Context, location string) (*blob.Bucket, error) {
	if location == "" {
		return nil, errors.New("output: location is required")
	}

	if IsURL(location) {
		bucket, err := blob.OpenBucket(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", location, err)
		}
		return bucket, nil
	}

	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	bucket, err := fileblob.OpenBucket(location, &fileblob.Options{
		CreateDir: true,
		// Keep temp files next to their target so the final rename never
		// crosses filesystems.
		NoTempDir: true,
		// Only archives belong in the output directory.
		Metadata: fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("open output directory %s: %w", location, err)
	}
	return bucket, nil
}

// Stat returns the size of the artifact stored under key.
func Stat(ctx context.Context, bucket *blob.Bucket, key string) (int64, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return 0, fmt.Errorf("stat %s: %w", key, err)
	}
	return attrs.Size, nil
}
