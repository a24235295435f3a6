package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/finance-admin/internal/api/middleware"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/rs/zerolog"
)

// writeDomainError maps the typed domain errors onto HTTP statuses. The body
// carries the typed error's own message, never the wrapping context. Anything
// unrecognized is logged and answered with fallback.
func writeDomainError(w http.ResponseWriter, log zerolog.Logger, err error, fallback string) {
	var (
		validation *domain.ValidationError
		malformed  *domain.MalformedArchiveError
		schema     *domain.SchemaError
		conflict   *domain.ConflictError
		notFound   *domain.NotFoundError
		tooLarge   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &validation):
		if len(validation.Issues) > 0 {
			middleware.WriteErrorDetails(w, http.StatusBadRequest, validation.Message, validation.Issues)
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &malformed):
		middleware.WriteError(w, http.StatusBadRequest, malformed.Error())
	case errors.As(err, &schema):
		middleware.WriteError(w, http.StatusUnprocessableEntity, schema.Error())
	case errors.As(err, &conflict):
		if len(conflict.References) > 0 {
			middleware.WriteErrorDetails(w, http.StatusConflict, conflict.Message, conflict.References)
			return
		}
		middleware.WriteError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &notFound):
		middleware.WriteError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &tooLarge):
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		log.Error().Err(err).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeBody reads a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Message: "invalid request body: " + err.Error()}
	}
	return nil
}
