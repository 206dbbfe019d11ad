package get

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"estimator/http-server/respond"
	"estimator/internal/storage"
)

type TemplateProvider interface {
	GetTemplateByCode(ctx context.Context, code string) (*storage.Template, error)
	GetAllTemplates(ctx context.Context, status storage.TemplateStatus) ([]storage.TemplateSummary, error)
}

// GetTemplateByCode returns the full template aggregate for ?code=.
func GetTemplateByCode(log *slog.Logger, provider TemplateProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.template.GetTemplateByCode"

		code := r.URL.Query().Get("code")
		if code == "" {
			log.With(slog.String("op", op)).Warn("Missing 'code' in query parameters")
			http.Error(w, "Missing required query parameter 'code'", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		template, err := provider.GetTemplateByCode(ctx, code)
		if err != nil {
			respond.Error(w, r, log.With(slog.String("op", op), slog.String("code", code)), err)
			return
		}

		render.JSON(w, r, template)
	}
}

// GetTemplates lists templates, filtered by ?status= when present.
func GetTemplates(log *slog.Logger, provider TemplateProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.template.GetTemplates"

		status := storage.TemplateStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			http.Error(w, "Invalid status", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		templates, err := provider.GetAllTemplates(ctx, status)
		if err != nil {
			respond.Error(w, r, log.With(slog.String("op", op)), err)
			return
		}

		render.JSON(w, r, templates)
	}
}
