package app

import (
	"net/http"
	"os"
	"strings"
)

const gateClosedBody = "media buffer initialization in progress"

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(path, ".ts"):
		return "video/mp2t"
	case strings.HasSuffix(path, ".vtt"):
		return "text/vtt; charset=utf-8"
	default:
		return ""
	}
}

// masterHandlerFunc serves the published master playlist. Before the gate
// opens there is nothing to play and clients get a 404.
func (s *Server) masterHandlerFunc(w http.ResponseWriter, r *http.Request) {
	if !s.gate.isOpen() {
		http.Error(w, gateClosedBody, http.StatusNotFound)
		return
	}
	s.serveFile(w, r, s.layout.servingMaster(), "application/vnd.apple.mpegurl")
}

// mediaHandlerFunc serves playlists and segments from the serving tree.
// Segment and subtitle files fall back to the staging tree, which is
// useful for diagnostics before and during buffering.
func (s *Server) mediaHandlerFunc(w http.ResponseWriter, r *http.Request) {
	rel, err := cleanRequestPath(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	contentType := contentTypeFor(rel)
	if contentType == "" {
		http.NotFound(w, r)
		return
	}
	if strings.HasSuffix(rel, ".m3u8") {
		if !s.gate.isOpen() {
			http.Error(w, gateClosedBody, http.StatusNotFound)
			return
		}
		s.serveFile(w, r, s.layout.servingPath(rel), contentType)
		return
	}
	path := s.layout.servingPath(rel)
	if !fileExists(path) {
		path = s.layout.stagingPath(rel)
	}
	s.serveFile(w, r, path, contentType)
}

// optionsHandlerFunc answers CORS preflight requests.
func (s *Server) optionsHandlerFunc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, "", info.ModTime(), f)
}
