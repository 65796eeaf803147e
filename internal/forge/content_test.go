package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

func TestGitHubContentClient_FetchContent(t *testing.T) {
	raw := `[{"key":"toen-mastercourse","repo":"toendeps/mastercourse"}]`
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))
	// Mimic the API's line wrapping.
	wrapped := encoded[:20] + "\n" + encoded[20:]

	var gotPath, gotRef, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRef = r.URL.Query().Get("ref")
		gotAccept = r.Header.Get("Accept")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"encoding": "base64",
			"content":  wrapped,
			"path":     "nodes.json",
		})
	}))
	defer srv.Close()

	c, err := NewGitHubContentClient(srv.URL, "", 5*time.Second)
	require.NoError(t, err)
	data, err := c.FetchContent(context.Background(), "toendeps", "config", "/nodes.json", "master")
	require.NoError(t, err)

	assert.Equal(t, raw, string(data))
	assert.Equal(t, "/repos/toendeps/config/contents/nodes.json", gotPath)
	assert.Equal(t, "master", gotRef)
	assert.Equal(t, "application/vnd.github+json", gotAccept)
}

func TestGitHubContentClient_DirectoryRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"type": "dir"})
	}))
	defer srv.Close()

	c, err := NewGitHubContentClient(srv.URL, "", time.Second)
	require.NoError(t, err)
	_, err = c.FetchContent(context.Background(), "o", "r", "docs", "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryForge))
}

func TestGitHubContentClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, err := NewGitHubContentClient(srv.URL, "tok", time.Second)
	require.NoError(t, err)
	_, err = c.FetchContent(context.Background(), "o", "r", "missing.json", "master")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestDecodeContent(t *testing.T) {
	got, err := decodeContent("", "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(got))

	_, err = decodeContent("rot13", "x")
	assert.Error(t, err)
}
