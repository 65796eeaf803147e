package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

// fakeS3 accepts bucket HEAD/PUT and object PUT requests in path style.
type fakeS3 struct {
	mu          sync.Mutex
	bucketKnown bool
	headStatus  int
	putStatus   int
	objects     map[string][]byte
	types       map[string]string
	madeBucket  int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	switch {
	case len(parts) == 1 || parts[1] == "":
		switch r.Method {
		case http.MethodHead:
			if f.headStatus != 0 {
				w.WriteHeader(f.headStatus)
				return
			}
			if !f.bucketKnown {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			f.bucketKnown = true
			f.madeBucket++
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if f.putStatus != 0 {
			w.WriteHeader(f.putStatus)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[parts[1]] = body
		f.types[parts[1]] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func newStore(t *testing.T, srv *httptest.Server) *S3Store {
	t.Helper()
	s, err := NewS3Store(config.StorageConfig{
		Endpoint:  srv.URL,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "pdfs",
	})
	require.NoError(t, err)
	return s
}

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.5 test"), 0o600))
	return p
}

func TestS3Store_Upload(t *testing.T) {
	fake := newFakeS3()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := newStore(t, srv)
	local := writePDF(t)
	require.NoError(t, s.Upload(context.Background(), local, "toen-mastercourse/chapters/lecture2-3.pdf"))
	require.NoError(t, s.Upload(context.Background(), local, "toen-mastercourse/chapters/lecture1.pdf"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	// Plain-HTTP uploads use aws-chunked framing, so only check the payload is present.
	assert.Contains(t, string(fake.objects["toen-mastercourse/chapters/lecture2-3.pdf"]), "%PDF-1.5 test")
	assert.Equal(t, ContentTypePDF, fake.types["toen-mastercourse/chapters/lecture2-3.pdf"])
	assert.Equal(t, 1, fake.madeBucket, "bucket created once")
}

func TestS3Store_UploadFailure(t *testing.T) {
	fake := newFakeS3()
	fake.bucketKnown = true
	fake.putStatus = http.StatusForbidden
	srv := httptest.NewServer(fake)
	defer srv.Close()

	err := newStore(t, srv).Upload(context.Background(), writePDF(t), "doc/a.pdf")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryStorage))
}

func TestS3Store_BucketCheckRetriedAfterFailure(t *testing.T) {
	fake := newFakeS3()
	fake.headStatus = http.StatusForbidden
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := newStore(t, srv)
	local := writePDF(t)
	require.Error(t, s.Upload(context.Background(), local, "doc/a.pdf"))

	fake.mu.Lock()
	fake.headStatus = 0
	fake.bucketKnown = true
	fake.mu.Unlock()
	require.NoError(t, s.Upload(context.Background(), local, "doc/a.pdf"))
}

func TestS3Store_MissingLocalFile(t *testing.T) {
	srv := httptest.NewServer(newFakeS3())
	defer srv.Close()
	err := newStore(t, srv).Upload(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), "doc/a.pdf")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileSystem))
}

func TestNewS3Store_Validation(t *testing.T) {
	_, err := NewS3Store(config.StorageConfig{Bucket: "b"})
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
	_, err = NewS3Store(config.StorageConfig{Endpoint: "localhost:9000"})
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))

	s, err := NewS3Store(config.StorageConfig{Endpoint: "https://s3.example.com/", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", s.Bucket())
	assert.Equal(t, config.DefaultRegion, s.region)
}
