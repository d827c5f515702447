package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/registry"
	"github.com/zhuguadundan/videowhisper/requests"
)

type errorEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.False(t, env.Success)
	return env
}

func TestLogRequestAssignsARequestID(t *testing.T) {
	var seen string
	handler := LogRequest()(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		seen = requests.GetRequestID(r)
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), nil)

	require.Len(t, seen, 8)
	require.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLogRequestHonorsIncomingRequestID(t *testing.T) {
	var seen string
	handler := LogRequest()(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		seen = requests.GetRequestID(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("X-Request-ID", "upstream1")
	handler(httptest.NewRecorder(), req, nil)

	require.Equal(t, "upstream1", seen)
}

func TestLogRequestRecoversPanics(t *testing.T) {
	handler := LogRequest()(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeError(t, rec)
	require.Equal(t, "internal", env.Error.Kind)
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := wrapResponseWriter(rec)
	wrapped.WriteHeader(http.StatusTeapot)
	wrapped.WriteHeader(http.StatusOK)

	require.Equal(t, http.StatusTeapot, wrapped.status)
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestIsAuthorized(t *testing.T) {
	var nextCalled bool
	next := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		nextCalled = true
	}

	t.Run("open instance passes everything through", func(t *testing.T) {
		nextCalled = false
		handler := IsAuthorized(config.Cli{}, next)
		handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/admin/stop-all", nil), nil)
		require.True(t, nextCalled)
	})

	t.Run("missing header is unauthorized", func(t *testing.T) {
		nextCalled = false
		handler := IsAuthorized(config.Cli{AdminToken: "secret"}, next)
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/api/admin/stop-all", nil), nil)
		require.False(t, nextCalled)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "unauthorized", decodeError(t, rec).Error.Kind)
	})

	t.Run("wrong token is unauthorized", func(t *testing.T) {
		nextCalled = false
		handler := IsAuthorized(config.Cli{AdminToken: "secret"}, next)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/stop-all", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		handler(rec, req, nil)
		require.False(t, nextCalled)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("correct token passes", func(t *testing.T) {
		nextCalled = false
		handler := IsAuthorized(config.Cli{AdminToken: "secret"}, next)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/stop-all", nil)
		req.Header.Set("Authorization", "Bearer secret")
		handler(httptest.NewRecorder(), req, nil)
		require.True(t, nextCalled)
	})

	t.Run("production without a token disables admin endpoints", func(t *testing.T) {
		nextCalled = false
		handler := IsAuthorized(config.Cli{Production: true}, next)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/stop-all", nil)
		req.Header.Set("Authorization", "Bearer anything")
		handler(rec, req, nil)
		require.False(t, nextCalled)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "auth_required", decodeError(t, rec).Error.Kind)
	})
}

func TestHasCapacity(t *testing.T) {
	reg, err := registry.New(filepath.Join(t.TempDir(), registry.HistoryFilename))
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	var nextCalled bool
	next := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}

	var mw CapacityMiddleware
	handler := mw.HasCapacity(reg, 2, next)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/process", nil), nil)
	require.True(t, nextCalled)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = reg.Create(registry.Source{Kind: registry.SourceURL, Value: "https://example.com/1"}, "r1", "")
	require.NoError(t, err)
	_, err = reg.Create(registry.Source{Kind: registry.SourceURL, Value: "https://example.com/2"}, "r2", "")
	require.NoError(t, err)

	nextCalled = false
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/process", nil), nil)
	require.False(t, nextCalled)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "conflict_busy", decodeError(t, rec).Error.Kind)
}
