package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/speechviz/voicemap/internal/log"
)

// audioExtensions is the allowlist of servable stimulus formats.
var audioExtensions = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
}

// secureFileServer serves stimulus audio from the audio directory with
// checks against path traversal, symlink escapes, and directory listing.
func (s *Server) secureFileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "api")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			logger.Warn().Str("event", "audio_req.denied").Str("path", r.URL.Path).Str("reason", "method_not_allowed").Msg("method not allowed")
			recordAudioRequestDenied("method_not_allowed")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if s.cfg.AudioDir == "" {
			recordAudioRequestDenied("not_configured")
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		path := r.URL.Path
		// Traversal detection including multiple URL-decode passes, Unicode
		// normalization, and NUL bytes.
		if isPathTraversal(path) {
			logger.Warn().Str("event", "audio_req.denied").Str("path", r.URL.Path).Str("reason", "path_escape").Msg("detected traversal sequence")
			recordAudioRequestDenied("path_escape")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if strings.HasSuffix(path, "/") || path == "" {
			logger.Warn().Str("event", "audio_req.denied").Str("path", r.URL.Path).Str("reason", "directory_listing").Msg("directory listing forbidden")
			recordAudioRequestDenied("directory_listing")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		contentType, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
		if !ok {
			logger.Warn().Str("event", "audio_req.denied").Str("path", path).Str("reason", "extension").Msg("extension not allowlisted")
			recordAudioRequestDenied("extension")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		absAudioDir, err := filepath.Abs(s.cfg.AudioDir)
		if err != nil {
			logger.Error().Err(err).Str("event", "audio_req.internal_error").Msg("could not get absolute audio dir")
			recordAudioRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		fullPath := filepath.Join(absAudioDir, path)

		realPath, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Info().Str("event", "audio_req.not_found").Str("path", fullPath).Msg("file not found")
				recordAudioRequestDenied("not_found")
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			logger.Error().Err(err).Str("event", "audio_req.internal_error").Str("path", fullPath).Msg("could not evaluate symlinks")
			recordAudioRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		// Resolve the audio dir itself too so the containment check uses a
		// consistent base.
		realAudioDir, err := filepath.EvalSymlinks(absAudioDir)
		if err != nil {
			logger.Error().Err(err).Str("event", "audio_req.internal_error").Msg("could not evaluate symlinks on audio dir")
			recordAudioRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		relPath, err := filepath.Rel(realAudioDir, realPath)
		if err != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
			logger.Warn().
				Str("event", "audio_req.denied").
				Str("path", path).
				Str("resolved_path", realPath).
				Str("audio_dir", realAudioDir).
				Str("reason", "path_escape").
				Msg("path escapes audio directory")
			recordAudioRequestDenied("path_escape")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// #nosec G304 -- realPath is validated to reside inside the audio directory
		f, err := os.Open(realPath)
		if err != nil {
			logger.Error().Err(err).Str("event", "audio_req.internal_error").Str("path", realPath).Msg("could not open file for serving")
			recordAudioRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.Warn().Err(err).Str("path", realPath).Msg("failed to close file")
			}
		}()

		info, err := f.Stat()
		if err != nil {
			logger.Error().Err(err).Str("event", "audio_req.internal_error").Str("path", realPath).Msg("could not stat opened file")
			recordAudioRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if info.IsDir() {
			logger.Warn().Str("event", "audio_req.denied").Str("path", path).Str("reason", "directory_listing").Msg("resolved path is a directory")
			recordAudioRequestDenied("directory_listing")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// Weak ETag from modtime and size; stimuli are immutable in practice
		// so this keeps replayed clicks off the disk.
		etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			recordAudioCacheHit()
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", contentType)

		logger.Info().Str("event", "audio_req.allowed").Str("path", path).Msg("serving audio")
		recordAudioRequestAllowed()
		// ServeContent handles Range requests, so seeking inside long
		// stimuli works in the browser player.
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// isPathTraversal performs robust checks against path traversal attempts.
// It decodes the input multiple times to catch double-encoding, applies
// Unicode normalization, and searches for dangerous sequences including NULs.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		} else if d2, err2 := url.QueryUnescape(decoded); err2 == nil {
			decoded = d2
		}
		if decoded == prev {
			break
		}
	}

	lower := strings.ToLower(decoded)
	dangerSubstrings := []string{
		"..",
		"..\\",
		"%00",
		"\x00",
		"%c0%ae",    // overlong UTF-8 for '.'
		"%e0%80%ae", // another overlong variant
	}
	for _, pat := range dangerSubstrings {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	if strings.IndexByte(decoded, 0x00) >= 0 {
		return true
	}

	normalized := strings.ToLower(norm.NFC.String(decoded))
	return strings.Contains(normalized, "..")
}
