package testforge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/forge"
)

func TestFetchContent(t *testing.T) {
	tf := NewTestForge().AddFile("o/r", "/dir/file.yaml", "hello")

	data, err := tf.FetchContent(context.Background(), "o", "r", "dir/file.yaml", "main")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, []Request{{Owner: "o", Repo: "r", Path: "dir/file.yaml", Ref: "main"}}, tf.Requests())

	_, err = tf.FetchContent(context.Background(), "o", "r", "missing", "")
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestFailureModes(t *testing.T) {
	tests := []struct {
		mode FailMode
		want errors.ErrorCategory
	}{
		{FailModeAuth, errors.CategoryAuth},
		{FailModeNetwork, errors.CategoryNetwork},
		{FailModeRateLimit, errors.CategoryNetwork},
		{FailModeNotFound, errors.CategoryNotFound},
	}
	for _, tt := range tests {
		tf := NewTestForge().AddFile("o/r", "f", "x")
		tf.SetFailMode(tt.mode)
		_, err := tf.FetchContent(context.Background(), "o", "r", "f", "")
		require.Error(t, err)
		assert.Equal(t, tt.want, errors.GetCategory(err))
	}
}

func TestRepoFailModeOnlyAffectsRepo(t *testing.T) {
	tf := NewTestForge().AddFile("o/a", "f", "a").AddFile("o/b", "f", "b")
	tf.SetRepoFailMode("o/b", FailModeAuth)

	_, err := tf.FetchContent(context.Background(), "o", "a", "f", "")
	require.NoError(t, err)
	_, err = tf.FetchContent(context.Background(), "o", "b", "f", "")
	assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
}

func TestDelayHonoursContext(t *testing.T) {
	tf := NewTestForge().AddFile("o/r", "f", "x")
	tf.SetDelay(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tf.FetchContent(ctx, "o", "r", "f", "")
	assert.True(t, errors.IsRetryable(err))
}

func TestServerSpeaksContentsAPI(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}
	tf := NewTestForge().AddFile("o/r", "nested/file.tex", string(long))
	tf.SetRepoFailMode("o/private", FailModeAuth)
	srv := tf.Server()
	defer srv.Close()

	client, err := forge.NewGitHubContentClient(srv.URL, "token", 5*time.Second)
	require.NoError(t, err)
	data, err := client.FetchContent(context.Background(), "o", "r", "nested/file.tex", "dev")
	require.NoError(t, err)
	assert.Equal(t, string(long), string(data))
	assert.Equal(t, "dev", tf.Requests()[0].Ref)

	_, err = client.FetchContent(context.Background(), "o", "r", "absent", "")
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	_, err = client.FetchContent(context.Background(), "o", "private", "f", "")
	assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
}
