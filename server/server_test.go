package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/server/mocks"
)

func testServer(t *testing.T, artifacts Artifacts) *Server {
	t.Helper()
	cfg := &mocks.ConfigProviderMock{
		GetServerConfigFunc: func() (string, time.Duration) { return "127.0.0.1:0", 5 * time.Second },
	}
	return New(cfg, artifacts, "test-1.0", false)
}

func writeArtifacts(t *testing.T) Artifacts {
	t.Helper()
	dir := t.TempDir()
	artifacts := Artifacts{
		Feed:      filepath.Join(dir, "feed.xml"),
		StatsJSON: filepath.Join(dir, "stats.json"),
		StatsHTML: filepath.Join(dir, "stats.html"),
	}
	require.NoError(t, os.WriteFile(artifacts.Feed, []byte(`<rss version="2.0"><channel></channel></rss>`), 0o644))
	require.NoError(t, os.WriteFile(artifacts.StatsJSON, []byte(`{"total_events_tracked":3}`), 0o644))
	require.NoError(t, os.WriteFile(artifacts.StatsHTML, []byte(`<html><body>stats</body></html>`), 0o644))
	return artifacts
}

func TestServer_ServesArtifacts(t *testing.T) {
	s := testServer(t, writeArtifacts(t))
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	t.Run("feed", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/feed.xml")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/rss+xml; charset=utf-8", resp.Header.Get("Content-Type"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `<rss version="2.0">`)
	})

	t.Run("stats json", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/stats.json")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	})

	t.Run("stats page", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/stats.html")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	})

	t.Run("root redirects to stats page", func(t *testing.T) {
		client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
		resp, err := client.Get(ts.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Equal(t, "/stats.html", resp.Header.Get("Location"))
	})

	t.Run("ping", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/ping")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "pong", string(body))
	})

	t.Run("app info header", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/feed.xml")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "regwatch", resp.Header.Get("App-Name"))
		assert.Equal(t, "test-1.0", resp.Header.Get("App-Version"))
	})
}

func TestServer_Status(t *testing.T) {
	artifacts := writeArtifacts(t)
	require.NoError(t, os.Remove(artifacts.StatsHTML))

	s := testServer(t, artifacts)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Status    string `json:"status"`
		Version   string `json:"version"`
		Artifacts map[string]struct {
			Present bool `json:"present"`
		} `json:"artifacts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))

	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "test-1.0", status.Version)
	assert.True(t, status.Artifacts["feed"].Present)
	assert.True(t, status.Artifacts["stats_json"].Present)
	assert.False(t, status.Artifacts["stats_html"].Present)
}

func TestServer_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	s := testServer(t, Artifacts{
		Feed:      filepath.Join(dir, "feed.xml"),
		StatsJSON: filepath.Join(dir, "stats.json"),
		StatsHTML: filepath.Join(dir, "stats.html"),
	})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/feed.xml")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Contains(t, errResp["error"], "not generated")
}

func TestServer_RunAndShutdown(t *testing.T) {
	s := testServer(t, writeArtifacts(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "graceful shutdown is not an error")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
