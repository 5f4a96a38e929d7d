package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/domain"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors to HTTP statuses. Unexpected errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	var verr *domain.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrShuttingDown):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrCatalogUnavailable):
		logger.WithError(err).Warn("Catalog unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: domain.ErrCatalogUnavailable.Error()})
	default:
		logger.WithError(err).Error("Unable to handle request")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message, Field: field})
}

// decodeBody decodes a JSON body rejecting unknown fields.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.New("request body is empty")
		}
		return errors.Wrap(err, "invalid request body")
	}

	return nil
}

// unknownField extracts the field name from a json "unknown field" error.
func unknownField(err error) string {
	const prefix = `json: unknown field "`

	msg := errors.Cause(err).Error()
	if !strings.HasPrefix(msg, prefix) {
		return ""
	}

	return strings.TrimSuffix(strings.TrimPrefix(msg, prefix), `"`)
}

func writeBodyError(w http.ResponseWriter, err error) {
	badRequest(w, unknownField(err), err.Error())
}
