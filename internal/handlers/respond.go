// Package handlers translates the REST surface into service calls.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/auth"
	"github.com/nikhil/teamhub/internal/logger"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithAppError maps a service error to its status code. Internal
// details stay in the log.
func respondWithAppError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error, action string, keysAndValues ...interface{}) {
	kind := apperr.KindOf(err)
	fields := append([]interface{}{"error", err, "action", action}, keysAndValues...)
	reqLog := log.WithContext(r.Context())
	if identity, ok := auth.FromContext(r.Context()); ok {
		reqLog = reqLog.WithUser(identity.UserID)
	}
	switch kind {
	case apperr.KindInternal:
		reqLog.Error("Request failed", fields...)
	default:
		reqLog.Info("Request rejected", fields...)
	}
	respondWithError(w, kind.HTTPStatus(), apperr.PublicMessage(err))
}

// currentUser returns the authenticated caller set by the auth middleware.
func currentUser(w http.ResponseWriter, r *http.Request, log *logger.Logger) (auth.Identity, bool) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		log.WithContext(r.Context()).Error("Failed to extract user details from context")
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return auth.Identity{}, false
	}
	return identity, true
}

// pathID parses a positive integer path variable.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, log *logger.Logger, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		log.WithContext(r.Context()).Debug("Failed to decode request body", "error", err)
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return v, nil
}
