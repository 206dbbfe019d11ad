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

type ResourceProvider interface {
	GetAllResources(ctx context.Context, typ storage.ResourceType) ([]storage.Resource, error)
}

// GetResources lists catalog resources, filtered by ?type=MATERIAL|LABOR.
func GetResources(log *slog.Logger, provider ResourceProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.resources.GetResources"

		typ := storage.ResourceType(r.URL.Query().Get("type"))
		if typ != "" && typ != storage.ResourceMaterial && typ != storage.ResourceLabor {
			http.Error(w, "Invalid resource type", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resources, err := provider.GetAllResources(ctx, typ)
		if err != nil {
			respond.Error(w, r, log.With(slog.String("op", op)), err)
			return
		}

		render.JSON(w, r, resources)
	}
}
