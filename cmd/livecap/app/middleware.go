package app

import (
	"net/http"

	"github.com/livecap/livecap/internal"
)

func addVersionAndCORSHeaders(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Livecap-Version", internal.GetVersion())
		w.Header().Add("Access-Control-Allow-Origin", "*")
		// Live playlists change every segment; nothing is cacheable.
		w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
