package errors

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"github.com/zhuguadundan/videowhisper/log"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
	Meta    meta      `json:"meta"`
}

type meta struct {
	RequestID string `json:"request_id"`
}

func writeHTTPError(w http.ResponseWriter, requestID, kind, msg string, status int, err error) {
	if err != nil {
		log.LogError(requestID, "request failed", err, "kind", kind, "status", status)
	} else {
		log.Log(requestID, "request failed", "kind", kind, "response", msg, "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := errorEnvelope{
		Success: false,
		Error:   errorBody{Kind: kind, Message: msg},
		Meta:    meta{RequestID: requestID},
	}
	if encErr := json.NewEncoder(w).Encode(env); encErr != nil {
		log.LogError(requestID, "error writing HTTP error", encErr)
	}
}

// WriteError renders err with its mapped status code and kind.
func WriteError(w http.ResponseWriter, requestID string, err error) {
	kind := Kind(err)
	writeHTTPError(w, requestID, kind, UserMessage(err), StatusFor(kind), err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, requestID, msg string, err error) {
	writeHTTPError(w, requestID, KindBadRequest, msg, http.StatusBadRequest, err)
}

func WriteHTTPUnauthorized(w http.ResponseWriter, requestID, msg string, err error) {
	writeHTTPError(w, requestID, KindUnauthorized, msg, http.StatusUnauthorized, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, requestID, msg string, err error) {
	writeHTTPError(w, requestID, KindNotFound, msg, http.StatusNotFound, err)
}

func WriteHTTPTooManyRequests(w http.ResponseWriter, requestID, msg string, err error) {
	writeHTTPError(w, requestID, KindConflictBusy, msg, http.StatusTooManyRequests, err)
}

func WriteHTTPUnsupportedMediaType(w http.ResponseWriter, requestID, msg string, err error) {
	writeHTTPError(w, requestID, KindBadRequest, msg, http.StatusUnsupportedMediaType, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, requestID, msg string, err error) {
	writeHTTPError(w, requestID, KindInternal, msg, http.StatusInternalServerError, err)
}

// WriteHTTPBadBodySchema collapses schema validation errors into one message.
func WriteHTTPBadBodySchema(where string, w http.ResponseWriter, requestID string, errors []gojsonschema.ResultError) {
	sb := strings.Builder{}
	sb.WriteString("Body validation error in ")
	sb.WriteString(where)
	for i := 0; i < len(errors); i++ {
		sb.WriteString(" ")
		sb.WriteString(errors[i].String())
	}
	writeHTTPError(w, requestID, KindBadRequest, sb.String(), http.StatusBadRequest, nil)
}
