// Package s3 implements the storage adapter over an S3-compatible object
// store.
//
// S3 has no directories; the adapter simulates them with key prefixes. A
// directory exists when listing its prefix with Delimiter "/" returns
// anything, and Mkdir plants a zero-byte placeholder object whose key ends
// in "/" so empty directories stay discoverable.
package s3

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sesukyothole/bro-file-manager/pkg/fspath"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

// defaultListPageSize caps a single ListObjectsV2 call when the caller did
// not supply a limit.
const defaultListPageSize = 1000

// Client is the subset of the AWS S3 client the adapter consumes.
// *s3.Client satisfies it; tests substitute a mock.
type Client interface {
	ListObjectsV2(ctx context.Context, input *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, input *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	GetObject(ctx context.Context, input *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, input *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, input *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, input *awss3.CopyObjectInput, optFns ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
}

// Adapter is the object-store-backed storage adapter for one configuration.
type Adapter struct {
	client   Client
	bucket   string
	prefix   string // optional key prefix from the profile, no trailing "/"
	configID string

	// now supplies the synthetic mtime for simulated directories, since
	// CommonPrefixes carry no timestamp. Swapped in tests.
	now func() time.Time
}

var _ store.Adapter = (*Adapter)(nil)

// NewAdapter builds an adapter over an already-constructed client.
func NewAdapter(client Client, bucket, prefix, configID string) *Adapter {
	return &Adapter{
		client:   client,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		configID: configID,
		now:      time.Now,
	}
}

// ConfigID returns the id of the profile this adapter was built from.
func (a *Adapter) ConfigID() string {
	return a.configID
}

// key maps a virtual path to its storage key: leading and trailing slashes
// stripped, profile prefix prepended. The root maps to the bare prefix
// (possibly empty).
func (a *Adapter) key(virtualPath string) (string, error) {
	normalized, err := fspath.Normalize(virtualPath)
	if err != nil {
		return "", err
	}
	clean := strings.Trim(normalized, "/")
	if a.prefix == "" {
		return clean, nil
	}
	if clean == "" {
		return a.prefix, nil
	}
	return a.prefix + "/" + clean, nil
}

// stripPrefix maps a storage key back to a virtual path.
func (a *Adapter) stripPrefix(key string) string {
	if a.prefix != "" {
		key = strings.TrimPrefix(key, a.prefix)
	}
	return "/" + strings.Trim(key, "/")
}

// PublicURL returns the service-mediated download URL for an object. Reads
// always pass through the service; no pre-signed URLs are handed out.
func (a *Adapter) PublicURL(virtualPath string) string {
	query := url.Values{}
	query.Set("configId", a.configID)
	query.Set("path", virtualPath)
	return fmt.Sprintf("/api/s3/files/download?%s", query.Encode())
}

// baseName returns the last segment of a key, ignoring a trailing slash.
func baseName(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
