package chunkstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// A BackendSink is the write-through target a chunk is flushed to. It is
// assumed to be remote, or at least separate from the local chunk cache,
// and is the system's durable store.
type BackendSink interface {
	// WriteFile writes len(buf) bytes of buf at offset in the backend
	// object named by dstPath, creating parent containers as needed
	// (backend_write).
	WriteFile(ctx context.Context, dstPath string, buf []byte, offset int64) error
	// MkdirAll mirrors a directory inode to the backend.
	MkdirAll(ctx context.Context, dstPath string) error
	// Symlink mirrors a symlink inode to the backend.
	Symlink(ctx context.Context, oldname, dstPath string) error
}

// LocalBackend is a BackendSink rooted at a directory on the local
// filesystem (or an NFS/FUSE mount presented as one) — the common case for
// chfsd deployments that treat a second local tree as the "remote" store.
type LocalBackend struct {
	Root string
}

func (b LocalBackend) fullPath(dstPath string) string {
	return filepath.Join(b.Root, dstPath)
}

func (b LocalBackend) WriteFile(ctx context.Context, dstPath string, buf []byte, offset int64) error {
	full := b.fullPath(dstPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(buf, offset)
	return err
}

func (b LocalBackend) MkdirAll(ctx context.Context, dstPath string) error {
	return os.MkdirAll(b.fullPath(dstPath), 0755)
}

func (b LocalBackend) Symlink(ctx context.Context, oldname, dstPath string) error {
	full := b.fullPath(dstPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	return os.Symlink(oldname, full)
}

// S3Client is the subset of the AWS SDK's s3.Client used by S3Backend,
// split out so tests can substitute a fake.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Backend is a BackendSink that mirrors chunks to objects in an S3
// bucket, one object per logical file. Directories and symlinks have no
// S3-native representation: a directory is recorded as a zero-length object
// whose key ends in "/", and a symlink as an object whose body is the link
// target, also carried in its "chfs-symlink-target" metadata.
type S3Backend struct {
	Client S3Client
	Bucket string
}

// WriteFile performs a read-modify-write of the backend object: S3 has no
// partial-object write, so an offset write must merge with whatever is
// already there. Chunks are flushed at most once concurrently per key
// (chunkstore.Store serializes flushes with its per-path lock table), so
// this is not racing itself.
func (b S3Backend) WriteFile(ctx context.Context, dstPath string, buf []byte, offset int64) error {
	key := filepath.ToSlash(dstPath)
	existing, err := b.readExisting(ctx, key)
	if err != nil {
		return err
	}
	end := offset + int64(len(buf))
	if int64(len(existing)) < end {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:end], buf)

	_, err = b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(existing),
	})
	return err
}

func (b S3Backend) readExisting(ctx context.Context, key string) ([]byte, error) {
	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// A missing object is an empty one to write-modify into; any
		// other error (auth, network) is returned to the caller.
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b S3Backend) MkdirAll(ctx context.Context, dstPath string) error {
	key := filepath.ToSlash(dstPath)
	if key != "" && key[len(key)-1] != '/' {
		key += "/"
	}
	_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	return err
}

func (b S3Backend) Symlink(ctx context.Context, oldname, dstPath string) error {
	key := filepath.ToSlash(dstPath)
	_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(oldname)),
		Metadata:    map[string]string{"chfs-symlink-target": oldname},
	})
	return err
}

func isNoSuchKey(err error) bool {
	type apiError interface {
		ErrorCode() string
	}
	var ae apiError
	if e, ok := err.(interface{ Unwrap() error }); ok {
		if a, ok := e.Unwrap().(apiError); ok {
			ae = a
		}
	}
	if a, ok := err.(apiError); ok {
		ae = a
	}
	return ae != nil && (ae.ErrorCode() == "NoSuchKey" || ae.ErrorCode() == "NotFound")
}
