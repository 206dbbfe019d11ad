// Package respond maps domain errors to HTTP responses.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"estimator/internal/assembler"
	"estimator/internal/bom"
	"estimator/internal/catalog"
	"estimator/internal/formula"
	"estimator/internal/pricing"
	"estimator/internal/service/estimate"
	"estimator/internal/storage"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

var validate = validator.New()

// Decode reads a JSON body into req and runs its validate tags.
// It writes the error response itself and returns false on failure.
func Decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := render.DecodeJSON(r.Body, req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, ErrorResponse{Error: "request validation failed", Fields: fields})
		return false
	}
	return true
}

// Error writes err with the status its kind maps to. Server errors are
// logged, client errors are not.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.String("error", err.Error()))
		body.Error = "internal server error"
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

// Status is the HTTP status Error would write for err.
func Status(err error) int {
	status, _ := classify(err)
	return status
}

func classify(err error) (int, ErrorResponse) {
	var (
		verrs *catalog.ValidationErrors
		ferr  *formula.Error
		derr  *catalog.DefinitionError
	)
	body := ErrorResponse{Error: err.Error()}

	switch {
	case errors.As(err, &verrs):
		body.Error = "parameter validation failed"
		body.Kind = "ValidationError"
		body.Fields = verrs.Map()
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &ferr):
		body.Kind = formula.Kind(err)
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &derr):
		body.Kind = "InvalidDefinition"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, storage.ErrNotFound):
		body.Kind = "NotFound"
		return http.StatusNotFound, body
	case errors.Is(err, estimate.ErrTemplateArchived):
		body.Kind = "TemplateArchived"
		return http.StatusConflict, body
	case errors.Is(err, catalog.ErrDuplicateCodeConflict), errors.Is(err, storage.ErrCodeConflict):
		body.Kind = "DuplicateCodeConflict"
		return http.StatusConflict, body
	case errors.Is(err, bom.ErrNegativeQuantity):
		body.Kind = "NegativeQuantity"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, pricing.ErrInvalidPercent), errors.Is(err, pricing.ErrNonFinite):
		body.Kind = "InvalidPricing"
		return http.StatusUnprocessableEntity, body
	case assembler.IsDefinitionError(err):
		body.Kind = "InvalidTemplate"
		return http.StatusUnprocessableEntity, body
	}
	return http.StatusInternalServerError, body
}
