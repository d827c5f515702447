package middleware

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// setCORSHeaders is shared between regular responses and preflight replies.
// Download endpoints set Content-Disposition, and every response carries a
// request ID, so both are exposed to browser callers.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")
}

func AllowCORS() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		handler := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			setCORSHeaders(w)

			next(w, r, ps)
		}
		return handler
	}
}

// PreflightHandler answers OPTIONS for the whole router. Browsers preflight
// every JSON POST, so without the grants here the real request is never sent.
func PreflightHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		w.Header().Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusNoContent)
	})
}
