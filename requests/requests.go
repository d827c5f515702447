package requests

import (
	"context"
	"net/http"

	"github.com/zhuguadundan/videowhisper/config"
)

type contextKey int

const requestIDKey contextKey = iota

// NewRequestID mints a short correlation ID for one HTTP request. Task IDs
// are full UUIDs; request IDs only need to be greppable.
func NewRequestID() string {
	return config.RandomTrailer(8)
}

// WithRequestID returns a copy of r carrying the correlation ID.
func WithRequestID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestIDKey, id))
}

// GetRequestID returns the correlation ID assigned by the logging middleware,
// or empty when the request never went through it.
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
