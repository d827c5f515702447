package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/requests"
)

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

// LogRequest assigns every request a correlation ID (honoring an incoming
// X-Request-ID), recovers handler panics and logs one line per request.
func LogRequest() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		fn := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = requests.NewRequestID()
			}
			r = requests.WithRequestID(r, requestID)
			w.Header().Set("X-Request-ID", requestID)

			start := time.Now()
			wrapped := wrapResponseWriter(w)

			defer func() {
				if rec := recover(); rec != nil {
					log.Log(requestID, "panic in request handler", "err", rec, "trace", string(debug.Stack()))
					errors.WriteHTTPInternalServerError(wrapped, requestID, "internal server error", nil)
				}
			}()

			next(wrapped, r, ps)
			log.Log(requestID, "http request",
				"remote", r.RemoteAddr,
				"method", r.Method,
				"uri", log.RedactURL(r.URL.RequestURI()),
				"duration", time.Since(start),
				"status", wrapped.status,
			)
		}

		return fn
	}
}
