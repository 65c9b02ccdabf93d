package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket answers the handful of path-style S3 calls the archive makes.
type fakeBucket struct {
	mu      sync.Mutex
	name    string
	objects map[string][]byte
	meta    map[string]string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+b.name), "/")
	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[key] = body
		for h := range r.Header {
			if name, ok := strings.CutPrefix(strings.ToLower(h), "x-amz-meta-"); ok {
				b.meta[name] = r.Header.Get(h)
			}
		}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		body, ok := b.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		sb.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
		fmt.Fprintf(&sb, "<Name>%s</Name><IsTruncated>false</IsTruncated>", b.name)
		for k, body := range b.objects {
			if strings.HasPrefix(k, prefix) {
				fmt.Fprintf(&sb, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-02-01T00:00:00.000Z</LastModified></Contents>", k, len(body))
			}
		}
		sb.WriteString("</ListBucketResult>")
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, sb.String())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Archive(t *testing.T) (*S3Archive, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{name: "statements", objects: make(map[string][]byte), meta: make(map[string]string)}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:           "eu-west-3",
		BaseEndpoint:     aws.String(srv.URL),
		UsePathStyle:     true,
		RetryMaxAttempts: 1,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret", Source: "test"}, nil
		}),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return NewS3Archive(client, bucket.name), bucket
}

func TestS3LinkMissingObject(t *testing.T) {
	a, _ := newTestS3Archive(t)
	_, err := a.Link(context.Background(), "statements/o/a/2026-01.csv", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3PutListAndLink(t *testing.T) {
	ctx := context.Background()
	a, bucket := newTestS3Archive(t)

	body := "iban,FR7630004000010000000000127\n"
	loc, err := a.Put(ctx, Object{
		Key:         "/statements/o/a/2026-01.csv",
		Body:        strings.NewReader(body),
		Size:        int64(len(body)),
		ContentType: "text/csv",
		Metadata:    map[string]string{"month": "2026-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://statements/statements/o/a/2026-01.csv", loc)
	assert.Equal(t, body, string(bucket.objects["statements/o/a/2026-01.csv"]))
	assert.Equal(t, "2026-01", bucket.meta["month"])

	objects, err := a.List(ctx, "statements/o/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "statements/o/a/2026-01.csv", objects[0].Key)
	assert.Equal(t, int64(len(body)), objects[0].Size)
	assert.Equal(t, 2026, objects[0].LastModified.Year())

	url, err := a.Link(ctx, "statements/o/a/2026-01.csv", 0)
	require.NoError(t, err)
	assert.Contains(t, url, "/statements/statements/o/a/2026-01.csv")
	assert.Contains(t, url, "X-Amz-Expires=900")
}
