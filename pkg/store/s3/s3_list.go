package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

// List returns the simulated directory at the virtual path.
//
// A single ListObjectsV2 call with Delimiter "/" yields CommonPrefixes for
// subdirectories and Contents for files. Directory entries get size zero and
// the current time as mtime; CommonPrefixes carry no timestamp, which is a
// known limitation of the simulation. The placeholder object for the listed
// directory itself is excluded.
func (a *Adapter) List(ctx context.Context, path string, opts store.ListOptions) (*store.ListResult, error) {
	key, err := a.key(path)
	if err != nil {
		return nil, err
	}

	listPrefix := key
	if listPrefix != "" {
		listPrefix += "/"
	}

	maxKeys := int32(defaultListPageSize)
	if opts.Limit > 0 {
		maxKeys = int32(opts.Limit)
	}

	output, err := a.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(maxKeys),
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under %s: %w", path, err)
	}

	nowMs := a.now().UnixMilli()
	entries := make([]store.Entry, 0, len(output.CommonPrefixes)+len(output.Contents))

	for _, cp := range output.CommonPrefixes {
		if cp.Prefix == nil {
			continue
		}
		entries = append(entries, store.Entry{
			Name:  baseName(*cp.Prefix),
			Type:  store.EntryTypeDir,
			Size:  0,
			MTime: nowMs,
		})
	}

	for _, obj := range output.Contents {
		if obj.Key == nil {
			continue
		}
		// The zero-byte placeholder for the listed directory itself.
		if *obj.Key == listPrefix {
			continue
		}
		entry := store.Entry{
			Name: baseName(*obj.Key),
			Type: store.EntryTypeFile,
		}
		if obj.Size != nil {
			entry.Size = *obj.Size
		}
		if obj.LastModified != nil {
			entry.MTime = obj.LastModified.UnixMilli()
		}
		entries = append(entries, entry)
	}

	store.SortEntries(entries)
	total := len(entries)

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			entries = []store.Entry{}
		} else {
			entries = entries[opts.Offset:]
		}
	}

	return &store.ListResult{Entries: entries, Total: total}, nil
}

// Stat resolves a virtual path to an entry, or nil when nothing exists.
//
// The object itself is tried first with HeadObject. When that misses, a
// one-key listing of "<key>/" decides whether a simulated directory exists.
func (a *Adapter) Stat(ctx context.Context, path string) (*store.Entry, error) {
	key, err := a.key(path)
	if err != nil {
		return nil, err
	}
	if key == "" || key == a.prefix {
		// The root always exists.
		return &store.Entry{Name: "/", Type: store.EntryTypeDir, MTime: a.now().UnixMilli()}, nil
	}

	head, err := a.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		entry := &store.Entry{
			Name: baseName(key),
			Type: store.EntryTypeFile,
		}
		if head.ContentLength != nil {
			entry.Size = *head.ContentLength
		}
		if head.LastModified != nil {
			entry.MTime = head.LastModified.UnixMilli()
		}
		return entry, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("head %s: %w", path, err)
	}

	output, err := a.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("probe prefix %s: %w", path, err)
	}
	if output.KeyCount != nil && *output.KeyCount > 0 {
		return &store.Entry{
			Name:  baseName(key),
			Type:  store.EntryTypeDir,
			Size:  0,
			MTime: a.now().UnixMilli(),
		}, nil
	}

	return nil, nil
}

// Exists reports whether the virtual path resolves to an object or a
// simulated directory.
func (a *Adapter) Exists(ctx context.Context, path string) (bool, error) {
	entry, err := a.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// isNotFound recognizes the SDK's missing-object errors: the modeled
// NoSuchKey and NotFound types, plus a bare 404 from HeadObject.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
