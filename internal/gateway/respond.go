package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/salesdesk/salesdesk/internal/types"
)

// Headers carrying the pre-authenticated caller.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps error kinds to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, types.ErrAIService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logf("warning: %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", types.ErrValidation, err)
	}
	return nil
}

// principal reads the caller identity from the request headers.
func principal(r *http.Request) (types.Principal, error) {
	p := types.Principal{
		ID:   r.Header.Get(HeaderUserID),
		Role: types.Role(r.Header.Get(HeaderUserRole)),
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// requireRole resolves the principal and checks allowed(role).
func requireRole(r *http.Request, action string, allowed func(types.Role) bool) (types.Principal, error) {
	p, err := principal(r)
	if err != nil {
		return p, err
	}
	if !allowed(p.Role) {
		return p, fmt.Errorf("%w: role %q may not %s", types.ErrForbidden, p.Role, action)
	}
	return p, nil
}
