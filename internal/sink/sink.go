// Package sink implements the output disposition of downloaded exports.
//
// [Discard] drains the stream and keeps only the byte count, which is what
// throughput runs want. [Bucket] persists the stream to any gocloud.dev/blob
// bucket (file://, mem://, s3://, gs://).
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// DefaultBufferSize is the read size used when streaming an artifact.
const DefaultBufferSize = 8 * 1024

// ErrStorage is wrapped by every error raised by the storage backend.
var ErrStorage = errors.New("sink: storage error")

// Result describes a consumed artifact stream.
type Result struct {
	// Location is where the bytes were stored; empty when discarded.
	Location string
	Bytes    int64
}

// Sink consumes an artifact stream to completion.
type Sink interface {
	Write(ctx context.Context, name string, r io.Reader) (Result, error)
}

// StorageError carries the gocloud error code of a failed bucket operation.
type StorageError struct {
	Op   string
	Key  string
	Code gcerrors.ErrorCode
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("sink: %s %s (%s): %v", e.Op, e.Key, e.Code, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func storageError(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Code: gcerrors.Code(err), Err: err}
}

// Discard reads streams to EOF and drops the bytes.
type Discard struct {
	BufferSize int
}

// Write drains r.
func (d Discard) Write(ctx context.Context, name string, r io.Reader) (Result, error) {
	n, err := copyBuffer(io.Discard, r, d.BufferSize)
	if err != nil {
		return Result{Bytes: n}, fmt.Errorf("read %s: %w", name, err)
	}
	return Result{Bytes: n}, nil
}

// Bucket persists streams as objects under Prefix.
type Bucket struct {
	bucket     *blob.Bucket
	url        string
	prefix     string
	bufferSize int
	owned      bool
}

// NewBucket wraps an already opened bucket. The caller keeps ownership.
func NewBucket(b *blob.Bucket, prefix string, bufferSize int) *Bucket {
	return &Bucket{bucket: b, prefix: prefix, bufferSize: bufferSize}
}

// Open opens the bucket at url. Close releases it.
func Open(ctx context.Context, url string, bufferSize int) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return &Bucket{bucket: b, url: url, bufferSize: bufferSize, owned: true}, nil
}

// Write streams r into the object name.
func (b *Bucket) Write(ctx context.Context, name string, r io.Reader) (Result, error) {
	key := path.Join(b.prefix, name)

	// Cancelling the writer's context before Close discards a partial object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := b.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return Result{}, storageError("create", key, err)
	}

	n, copyErr := copyBuffer(w, r, b.bufferSize)
	if copyErr != nil {
		cancel()
		w.Close()
		return Result{Bytes: n}, fmt.Errorf("stream %s: %w", key, copyErr)
	}
	if err := w.Close(); err != nil {
		return Result{Bytes: n}, storageError("close", key, err)
	}

	return Result{Location: b.location(key), Bytes: n}, nil
}

// Size returns the stored size of the object name.
func (b *Bucket) Size(ctx context.Context, name string) (int64, error) {
	key := path.Join(b.prefix, name)
	attrs, err := b.bucket.Attributes(ctx, key)
	if err != nil {
		return 0, storageError("stat", key, err)
	}
	return attrs.Size, nil
}

// Close releases the bucket if it was opened by Open.
func (b *Bucket) Close() error {
	if !b.owned {
		return nil
	}
	return b.bucket.Close()
}

func (b *Bucket) location(key string) string {
	if b.url == "" {
		return key
	}
	base, _, _ := strings.Cut(b.url, "?")
	return strings.TrimSuffix(base, "/") + "/" + key
}

// copyBuffer copies in chunks of size bytes. The wrappers hide ReaderFrom and
// WriterTo so the chunk size is honored.
func copyBuffer(dst io.Writer, src io.Reader, size int) (int64, error) {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, make([]byte, size))
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
