package storage

import (
	"context"
	"io"
	"time"
)

// Object is a document handed to an Archive.
type Object struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	// Metadata is stored alongside the object (S3 user metadata).
	Metadata map[string]string
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Archive keeps exported documents, such as monthly account statements.
// Keys are slash separated and relative to the archive root.
type Archive interface {
	// Put stores obj, replacing any object with the same key, and returns its location.
	Put(ctx context.Context, obj Object) (string, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Link returns a URL the object can be fetched from for at least expires.
	Link(ctx context.Context, key string, expires time.Duration) (string, error)
}
