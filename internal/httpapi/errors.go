package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"vedarc.org/internal/domain"
	"vedarc.org/internal/obs"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, dst)
}

// errorStatus maps domain sentinels onto HTTP status and a machine code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrRequiresApproval):
		return http.StatusPreconditionRequired, "requires_admin_approval"
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code, tag := errorStatus(err)
	msg := domain.Message(err)
	switch code {
	case http.StatusInternalServerError:
		obs.Error("request failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err,
		})
		msg = "internal error"
	case http.StatusServiceUnavailable:
		obs.Warn("database unavailable", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err,
		})
		msg = "Database connection not available"
	}
	writeErrorCode(w, r, code, tag, msg)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorCode(w, r, code, "", msg)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, code int, tag, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if tag != "" {
		payload["code"] = tag
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorCode(w, r, http.StatusBadRequest, "validation_failed", err.Error())
}
