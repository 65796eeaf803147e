package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/testutil"
)

func TestClone_LocalRepository(t *testing.T) {
	src, head := testutil.SeedGitRepo(t, map[string]string{"chapters/lecture1.tex": `\documentclass{article}`})
	dest := filepath.Join(t.TempDir(), "clone")

	res, err := NewClient().Clone(context.Background(), src, "master", dest)
	require.NoError(t, err)

	assert.Equal(t, dest, res.Path)
	assert.Equal(t, head.String(), res.Commit)
	data, err := os.ReadFile(filepath.Join(dest, "chapters", "lecture1.tex"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "documentclass")
}

func TestClone_ReplacesExistingDestination(t *testing.T) {
	src, _ := testutil.SeedGitRepo(t, map[string]string{"main.tex": "x"})
	dest := filepath.Join(t.TempDir(), "clone")
	require.NoError(t, os.MkdirAll(dest, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.txt"), []byte("old"), 0o600))

	_, err := NewClient().Clone(context.Background(), src, "", dest)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dest, "stale.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestClone_MissingBranchIsPermanent(t *testing.T) {
	src, _ := testutil.SeedGitRepo(t, map[string]string{"main.tex": "x"})
	dest := filepath.Join(t.TempDir(), "clone")

	c := NewClient(WithRetryPolicy(testPolicy(3)))
	_, err := c.Clone(context.Background(), src, "does-not-exist", dest)
	require.Error(t, err)
	assert.True(t, IsPermanentError(err), "missing branch should not be retried: %v", err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "failed clone must not leave a directory behind")
}

func TestClone_MissingRepository(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "clone")
	_, err := NewClient().Clone(context.Background(), filepath.Join(t.TempDir(), "nope"), "master", dest)
	require.Error(t, err)
	_, ok := errors.AsClassified(err)
	assert.True(t, ok)
}

func TestTokenAuth(t *testing.T) {
	assert.Nil(t, TokenAuth(""))
	auth, ok := TokenAuth("secret").(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "token", auth.Username)
	assert.Equal(t, "secret", auth.Password)
}
