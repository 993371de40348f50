package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

// Read downloads the full object into memory.
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	key, err := a.key(path)
	if err != nil {
		return nil, err
	}

	output, err := a.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", path, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	return data, nil
}

// Write uploads data as a single object.
func (a *Adapter) Write(ctx context.Context, path string, data []byte) error {
	key, err := a.key(path)
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

// WriteStream uploads a reader's content as a single object. PutObject
// consumes the reader directly, so nothing is buffered beyond what the SDK
// needs for signing.
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader) error {
	key, err := a.key(path)
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

// OpenReader streams the object at path. The caller closes the reader; the
// returned size is the object's Content-Length (-1 when unknown).
func (a *Adapter) OpenReader(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	key, err := a.key(path)
	if err != nil {
		return nil, 0, err
	}

	output, err := a.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("%s: %w", path, store.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("get object %s: %w", path, err)
	}

	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return output.Body, size, nil
}

// Delete removes the object at path and everything under its simulated
// directory prefix.
//
// Contained objects are collected page by page and removed with batched
// DeleteObjects calls, then the named object itself is deleted. Deleting
// something that does not exist is a no-op, which makes interrupted
// recursive deletes safely retryable.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	key, err := a.key(path)
	if err != nil {
		return err
	}

	var continuation *string
	for {
		output, err := a.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(key + "/"),
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("list for delete %s: %w", path, err)
		}

		if len(output.Contents) > 0 {
			identifiers := make([]types.ObjectIdentifier, 0, len(output.Contents))
			for _, obj := range output.Contents {
				if obj.Key == nil {
					continue
				}
				identifiers = append(identifiers, types.ObjectIdentifier{Key: obj.Key})
			}
			if _, err := a.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
				Bucket: aws.String(a.bucket),
				Delete: &types.Delete{
					Objects: identifiers,
					Quiet:   aws.Bool(true),
				},
			}); err != nil {
				return fmt.Errorf("delete objects under %s: %w", path, err)
			}
		}

		if output.IsTruncated == nil || !*output.IsTruncated {
			break
		}
		continuation = output.NextContinuationToken
	}

	if _, err := a.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}

// Copy duplicates a single object.
//
// Simulated directories are refused rather than silently copying only the
// placeholder: copying just the placeholder would fabricate an empty copy
// while looking like a success.
func (a *Adapter) Copy(ctx context.Context, source, dest string) error {
	sourceKey, err := a.key(source)
	if err != nil {
		return err
	}
	destKey, err := a.key(dest)
	if err != nil {
		return err
	}

	entry, err := a.Stat(ctx, source)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%s: %w", source, store.ErrNotFound)
	}
	if entry.Type == store.EntryTypeDir {
		return fmt.Errorf("copy %s: %w", source, store.ErrIsDirectory)
	}

	if exists, err := a.Exists(ctx, dest); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%s: %w", dest, store.ErrConflict)
	}

	_, err = a.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		Key:        aws.String(destKey),
		CopySource: aws.String(url.PathEscape(a.bucket + "/" + sourceKey)),
	})
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", source, dest, err)
	}
	return nil
}

// Move is copy-then-delete of a single object. Directories are refused the
// same way Copy refuses them.
func (a *Adapter) Move(ctx context.Context, source, dest string) error {
	if err := a.Copy(ctx, source, dest); err != nil {
		return err
	}
	return a.Delete(ctx, source)
}

// Mkdir plants a zero-byte placeholder object whose key ends in "/" so the
// prefix becomes discoverable.
func (a *Adapter) Mkdir(ctx context.Context, path string) error {
	key, err := a.key(path)
	if err != nil {
		return err
	}
	if key == "" || key == a.prefix {
		return fmt.Errorf("%s: %w", path, store.ErrInvalidPath)
	}

	_, err = a.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key + "/"),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
