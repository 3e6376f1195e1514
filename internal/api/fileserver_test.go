package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAudioServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VF19A_can_001.wav"), []byte("RIFFfakewav"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o600))

	cfg := testConfig(t)
	cfg.AudioDir = dir
	return New(cfg, nil), dir
}

func audioGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.secureFileServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAudioServesAllowedFile(t *testing.T) {
	s, _ := newAudioServer(t)

	rec := audioGet(t, s, "/VF19A_can_001.wav")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.Equal(t, "RIFFfakewav", rec.Body.String())
}

func TestAudioExtensionAllowlist(t *testing.T) {
	s, _ := newAudioServer(t)

	rec := audioGet(t, s, "/notes.txt")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAudioNotFound(t *testing.T) {
	s, _ := newAudioServer(t)

	rec := audioGet(t, s, "/missing.wav")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAudioMethodNotAllowed(t *testing.T) {
	s, _ := newAudioServer(t)

	rec := httptest.NewRecorder()
	s.secureFileServer().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/VF19A_can_001.wav", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAudioUnconfiguredDir(t *testing.T) {
	s := New(testConfig(t), nil)

	rec := audioGet(t, s, "/VF19A_can_001.wav")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAudioTraversalBlocked(t *testing.T) {
	s, _ := newAudioServer(t)

	paths := []string{
		"/../secret.wav",
		"/..%2f..%2fsecret.wav",
		"/%2e%2e/secret.wav",
		"/%252e%252e/secret.wav", // double-encoded
		"/foo%00.wav",
		"/%c0%ae%c0%ae/secret.wav", // overlong UTF-8
	}
	for _, p := range paths {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = p
		rec := httptest.NewRecorder()
		s.secureFileServer().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, p)
	}
}

func TestAudioDirectoryListingForbidden(t *testing.T) {
	s, _ := newAudioServer(t)

	rec := audioGet(t, s, "/")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAudioSymlinkEscapeBlocked(t *testing.T) {
	s, dir := newAudioServer(t)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.wav")
	require.NoError(t, os.WriteFile(secret, []byte("outside"), 0o600))
	if err := os.Symlink(secret, filepath.Join(dir, "escape.wav")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	rec := audioGet(t, s, "/escape.wav")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAudioETagRevalidation(t *testing.T) {
	s, _ := newAudioServer(t)

	first := audioGet(t, s, "/VF19A_can_001.wav")
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/VF19A_can_001.wav", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	s.secureFileServer().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestAudioRangeRequest(t *testing.T) {
	s, _ := newAudioServer(t)

	req := httptest.NewRequest(http.MethodGet, "/VF19A_can_001.wav", nil)
	req.Header.Set("Range", "bytes=4-10")
	rec := httptest.NewRecorder()
	s.secureFileServer().ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "fakewav", rec.Body.String())
}

func TestAudioViaRouter(t *testing.T) {
	s, _ := newAudioServer(t)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/VF19A_can_001.wav", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
}

func TestIsPathTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"clip.wav", false},
		{"sub/clip.wav", false},
		{"../clip.wav", true},
		{"..\\clip.wav", true},
		{"%2e%2e/clip.wav", true},
		{"clip%00.wav", true},
		{"clip\x00.wav", true},
		{"%c0%ae%c0%ae/clip.wav", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isPathTraversal(tt.path), tt.path)
	}
}
