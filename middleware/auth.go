package middleware

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/requests"
)

// IsAuthorized guards admin endpoints with the configured bearer token.
// Development instances without a token stay open; production instances that
// never configured one keep admin endpoints disabled outright.
func IsAuthorized(cli config.Cli, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !cli.AuthRequired() {
			next(w, r, ps)
			return
		}
		requestID := requests.GetRequestID(r)

		if cli.AdminToken == "" {
			errors.WriteError(w, requestID, errors.E(errors.KindAuthRequired, "admin endpoints are disabled: no admin token configured", nil))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			errors.WriteHTTPUnauthorized(w, requestID, "no authorization header", nil)
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != cli.AdminToken {
			errors.WriteHTTPUnauthorized(w, requestID, "invalid token", nil)
			return
		}

		next(w, r, ps)
	}
}
