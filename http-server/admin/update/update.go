package update

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"estimator/http-server/respond"
	"estimator/internal/storage"
)

type OverheadUpdater interface {
	SaveOverheadRates(ctx context.Context, rates []storage.OverheadRate) error
}

type Rate struct {
	ID       int64   `json:"id"`
	Category string  `json:"category"`
	Fund     string  `json:"fund" validate:"required"`
	Percent  float64 `json:"percent" validate:"gte=0,lte=100"`
	IsActive bool    `json:"is_active"`
}

type Request struct {
	Rates []Rate `json:"rates" validate:"dive"`
}

// SaveOverheadRates updates rates with an ID and inserts the rest.
func SaveOverheadRates(log *slog.Logger, updater OverheadUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.SaveOverheadRates"

		var req Request
		if !respond.Decode(w, r, &req) {
			return
		}

		rates := make([]storage.OverheadRate, len(req.Rates))
		for i, rt := range req.Rates {
			rates[i] = storage.OverheadRate(rt)
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := updater.SaveOverheadRates(ctx, rates); err != nil {
			respond.Error(w, r, log.With(slog.String("op", op)), err)
			return
		}

		log.Info("overhead rates saved", slog.String("op", op), slog.Int("count", len(rates)))

		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}
