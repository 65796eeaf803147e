package upload

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/latexbuilder/internal/compile"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

type fakeUploader struct {
	mu       sync.Mutex
	fail     map[string]error
	delay    map[string]time.Duration
	panicOn  string
	uploaded map[string]string
	settled  atomic.Int32
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{fail: map[string]error{}, delay: map[string]time.Duration{}, uploaded: map[string]string{}}
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, key string) error {
	defer f.settled.Add(1)
	if key == f.panicOn {
		panic("uploader bug")
	}
	if d := f.delay[key]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := f.fail[key]; err != nil {
		return err
	}
	f.mu.Lock()
	f.uploaded[key] = localPath
	f.mu.Unlock()
	return nil
}

func TestRemoteKey(t *testing.T) {
	tests := []struct {
		node, path, want string
	}{
		{"toen-mastercourse", "/chapters/lecture2-3.tex", "toen-mastercourse/chapters/lecture2-3.pdf"},
		{"doc", "/a.tex", "doc/a.pdf"},
		{"doc", "b.tex/", "doc/b.pdf"},
		{"doc", "/notes.v2/intro.tex", "doc/notes.v2/intro.pdf"},
		{"doc", "/archive.tar.gz", "doc/archive.tar.pdf"},
		{"doc", "/README", "doc/README.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RemoteKey(tt.node, tt.path), tt.path)
	}
}

func TestDispatch_MixedOutcomes(t *testing.T) {
	up := newFakeUploader()
	up.delay["doc/a.pdf"] = 30 * time.Millisecond
	up.fail["doc/b.pdf"] = stderrors.New("access denied")

	outcomes := NewDispatcher(up, time.Second, nil).Dispatch(context.Background(), compile.OutputPathMap{
		"doc": {"/a.tex": "/tmp/a.pdf", "/b.tex": "/tmp/b.pdf"},
	})

	assert.Equal(t, int32(2), up.settled.Load(), "dispatch returns only after every upload settled")
	require.Len(t, outcomes, 2)
	assert.Equal(t, "doc/a.pdf", outcomes[0].Key)
	assert.True(t, outcomes[0].Succeeded())
	assert.Equal(t, "/tmp/a.pdf", outcomes[0].LocalPath)
	assert.Equal(t, "doc/b.pdf", outcomes[1].Key)
	assert.False(t, outcomes[1].Succeeded())
	assert.EqualError(t, outcomes[1].Err, "access denied")

	ok, failed := Summary(outcomes)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

func TestDispatch_OrderedByNodeThenPath(t *testing.T) {
	up := newFakeUploader()
	outcomes := NewDispatcher(up, 0, nil).WithConcurrency(2).Dispatch(context.Background(), compile.OutputPathMap{
		"zeta":  {"/b.tex": "1", "/a.tex": "2"},
		"alpha": {"/z.tex": "3"},
		"empty": {},
	})
	var keys []string
	for _, o := range outcomes {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"alpha/z.pdf", "zeta/a.pdf", "zeta/b.pdf"}, keys)
}

func TestDispatch_PerUploadDeadline(t *testing.T) {
	up := newFakeUploader()
	up.delay["doc/slow.pdf"] = time.Second
	outcomes := NewDispatcher(up, 20*time.Millisecond, nil).Dispatch(context.Background(), compile.OutputPathMap{
		"doc": {"/slow.tex": "s", "/fast.tex": "f"},
	})
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Succeeded(), "fast upload unaffected by sibling timeout")
	assert.ErrorIs(t, outcomes[1].Err, context.DeadlineExceeded)
}

func TestDispatch_PanicBecomesFailedOutcome(t *testing.T) {
	up := newFakeUploader()
	up.panicOn = "doc/a.pdf"
	outcomes := NewDispatcher(up, 0, nil).Dispatch(context.Background(), compile.OutputPathMap{
		"doc": {"/a.tex": "a", "/b.tex": "b"},
	})
	require.Len(t, outcomes, 2)
	assert.True(t, errors.IsCategory(outcomes[0].Err, errors.CategoryInternal))
	assert.True(t, outcomes[1].Succeeded())
}

func TestDispatch_Empty(t *testing.T) {
	assert.Empty(t, NewDispatcher(newFakeUploader(), 0, nil).Dispatch(context.Background(), compile.OutputPathMap{"doc": {}}))
}
