package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*S3Store, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)
	store, err := NewS3Store(context.Background(), Config{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		AccessKey:    "test",
		SecretKey:    "test",
		Bucket:       "ocr-images",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	return store, bucket
}

func TestDownloadReturnsObject(t *testing.T) {
	store, bucket := newTestStore(t)
	bucket.objects["/ocr-images/batch/a.jpg"] = []byte("jpeg-bytes")

	obj, err := store.Download(context.Background(), "batch/a.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), obj.Data)
	require.Equal(t, "image/jpeg", obj.ContentType)
}

func TestDownloadMissingObject(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Download(context.Background(), "batch/missing.jpg")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), Config{})
	require.Error(t, err)
}
