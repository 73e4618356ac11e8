package middleware

import (
	"log"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusOf reports 200 for handlers that never wrote a header.
func statusOf(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// LoggingMiddleware writes one access line per request. Mount after chi's
// RequestID.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Printf("http method=%s path=%s status=%d duration=%s bytes=%d ip=%s req_id=%s ua=%q",
			r.Method, r.URL.Path, statusOf(ww), time.Since(start).Round(time.Microsecond),
			ww.BytesWritten(), clientIP(r), chimw.GetReqID(r.Context()), r.UserAgent())
	})
}
