package update

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"estimator/http-server/respond"
	"estimator/internal/storage"
)

type TemplateStatusProvider interface {
	UpdateTemplateStatus(ctx context.Context, code string, upd storage.TemplateStatusUpdate) error
}

type Request struct {
	Status  storage.TemplateStatus `json:"status" validate:"required,oneof=DRAFT ACTIVE ARCHIVED"`
	Version *int                   `json:"version,omitempty" validate:"omitempty,gte=1"`
}

// UpdateTemplateStatus moves a template between DRAFT, ACTIVE and ARCHIVED.
func UpdateTemplateStatus(log *slog.Logger, provider TemplateStatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.template.UpdateTemplateStatus"

		code := chi.URLParam(r, "code")
		if code == "" {
			http.Error(w, "Missing template code", http.StatusBadRequest)
			return
		}

		var req Request
		if !respond.Decode(w, r, &req) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		err := provider.UpdateTemplateStatus(ctx, code, storage.TemplateStatusUpdate{
			Status:  req.Status,
			Version: req.Version,
		})
		if err != nil {
			respond.Error(w, r, log.With(slog.String("op", op), slog.String("code", code)), err)
			return
		}

		log.Info("template status updated",
			slog.String("op", op),
			slog.String("code", code),
			slog.String("status", string(req.Status)),
		)

		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}
