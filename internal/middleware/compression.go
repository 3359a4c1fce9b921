package middleware

import (
	"net/http"
	"strings"

	"github.com/NYTimes/gziphandler"
)

// compressibleTypes excludes xlsx workbooks, which are already zip archives
var compressibleTypes = []string{
	"application/json",
	"application/problem+json",
	"text/csv",
	"text/plain",
}

var gzipAPI = mustGzipHandler()

func mustGzipHandler() func(http.Handler) http.Handler {
	wrap, err := gziphandler.GzipHandlerWithOpts(
		gziphandler.MinSize(gziphandler.DefaultMinSize),
		gziphandler.ContentTypes(compressibleTypes),
	)
	if err != nil {
		panic(err)
	}
	return wrap
}

// CompressionMiddleware gzips API responses for clients that accept it.
// Bodies under gziphandler.DefaultMinSize are sent as is.
func CompressionMiddleware(next http.Handler) http.Handler {
	gzipped := gzipAPI(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		gzipped.ServeHTTP(w, r)
	})
}

// NoStoreMiddleware marks responses as uncacheable
func NoStoreMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}
