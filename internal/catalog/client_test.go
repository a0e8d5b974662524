package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCatalog_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id":"1","title":"Python Helper","tags":["Developer"]}]`},
		{"assistants envelope", `{"assistants":[{"id":"1","title":"Python Helper","tags":["Developer"]}]}`},
		{"data envelope", `{"data":[{"id":1,"name":"Python Helper","tags":[{"name":"Developer"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, skipped, err := decodeCatalog([]byte(tt.body))
			require.NoError(t, err)
			assert.Zero(t, skipped)
			require.Len(t, got, 1)
			assert.Equal(t, "1", got[0].ID)
			assert.Equal(t, "Python Helper", got[0].Title)
			assert.Equal(t, []string{"Developer"}, got[0].Tags)
			assert.NotEmpty(t, got[0].Raw)
		})
	}
}

func TestDecodeCatalog_KeepsRawAndStripsHTML(t *testing.T) {
	body := `[{"id":"d1","title":"Diagrammer","description":"<p>Draws <b>diagrams</b></p>","icon":"pen.png","roles":["Designer"]}]`
	got, _, err := decodeCatalog([]byte(body))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Draws diagrams", got[0].Description)
	assert.Equal(t, []string{"Designer"}, got[0].Roles)
	assert.Contains(t, string(got[0].Raw), `"icon":"pen.png"`)
}

func TestDecodeCatalog_SkipsInvalidRecords(t *testing.T) {
	body := `[{"id":"1","title":"Good"},{"title":"no id"},{"id":"3"},{"id":"4","title":"Also good","tags":"not-a-list"}, 42]`
	got, skipped, err := decodeCatalog([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, 4, skipped)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestDecodeCatalog_Malformed(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`{"items":[]}`,
		`[{"title":"no id"}]`,
		`[1, 2`,
		`"string"`,
	} {
		_, _, err := decodeCatalog([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedCatalog, "body %q", body)
	}
}

func TestDecodeCatalog_EmptyListIsValid(t *testing.T) {
	got, _, err := decodeCatalog([]byte(`{"assistants":[]}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHTTPClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/assistants" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k3y" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"1","title":"Python Helper","tags":["Developer"]},
			{"id":"2","title":"Joke Bot","tags":["Fun"]}
		]`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "v1/assistants", "k3y")
	snap, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.False(t, snap.FetchedAt().IsZero())
	assert.Zero(t, snap.Version(), "version is assigned by the cache")
}

func TestHTTPClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", "").Fetch(context.Background())
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance")
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, "", "").Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestHTTPClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", "").Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMalformedCatalog)
	assert.False(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestFileClient_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assistants:
  - id: 1
    title: Python Helper
    tags: [Developer]
  - id: "2"
    name: Joke Bot
    tags:
      - name: Fun
`), 0o644))

	snap, err := NewFileClient(path).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, "1", snap.At(0).ID)
	assert.Equal(t, "Joke Bot", snap.At(1).Title)
	assert.Equal(t, []string{"Fun"}, snap.At(1).Tags)
}

func TestFileClient_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a","title":"A"}]`), 0o644))

	snap, err := NewFileClient(path).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestFileClient_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileClient(filepath.Join(dir, "missing.yaml")).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("assistants: [unterminated"), 0o644))
	_, err = NewFileClient(bad).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMalformedCatalog)
}
