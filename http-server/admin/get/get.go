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

type OverheadProvider interface {
	GetAllOverheadRates(ctx context.Context) ([]storage.OverheadRate, error)
}

func GetOverheadRates(log *slog.Logger, provider OverheadProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.GetOverheadRates"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		rates, err := provider.GetAllOverheadRates(ctx)
		if err != nil {
			respond.Error(w, r, log.With(slog.String("op", op)), err)
			return
		}

		render.JSON(w, r, rates)
	}
}
