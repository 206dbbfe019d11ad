package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/cors"

	getoverhead "estimator/http-server/admin/get"
	upoverhead "estimator/http-server/admin/update"
	"estimator/http-server/evaluate"
	generate_excel "estimator/http-server/generate-report/generate-excel"
	getresources "estimator/http-server/resources/get"
	gettemplate "estimator/http-server/template/get"
	savetemplate "estimator/http-server/template/save"
	uptemplate "estimator/http-server/template/update"
	"estimator/internal/config"
	"estimator/internal/metrics"
	"estimator/internal/middleware/auth"
	"estimator/internal/service/export"
	"estimator/internal/storage/sqlstore"
)

func routes(
	cfg config.Config,
	log *slog.Logger,
	storage *sqlstore.Storage,
	estimateService evaluate.Evaluator,
	asm savetemplate.TemplateAssembler,
	m *metrics.Metrics,
) *chi.Mux {
	router := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	router.Use(corsHandler.Handler)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(m.Middleware)

	router.Get("/health", health(storage))
	router.Handle("/metrics", m.Handler())

	router.Get("/api/templates", gettemplate.GetTemplates(log, storage))
	router.Get("/api/template", gettemplate.GetTemplateByCode(log, storage))
	router.Post("/api/templates/{code}/evaluate", evaluate.EvaluateTemplate(log, estimateService))
	router.Post("/api/templates/{code}/evaluate/excel", generate_excel.EvaluateExcel(log, estimateService, export.GenerateExcel))

	router.Get("/api/resources", getresources.GetResources(log, storage))

	adminRouter := chi.NewRouter()
	adminRouter.Use(auth.BasicAuth(cfg.AdminLogin, cfg.AdminPass))

	adminRouter.Post("/templates/assemble", savetemplate.AssembleTemplate(log, asm, m))
	adminRouter.Post("/templates/preview", savetemplate.PreviewTemplate(log, asm))
	adminRouter.Put("/templates/{code}/status", uptemplate.UpdateTemplateStatus(log, storage))
	adminRouter.Get("/overhead", getoverhead.GetOverheadRates(log, storage))
	adminRouter.Put("/overhead", upoverhead.SaveOverheadRates(log, storage))

	router.Mount("/api/admin", adminRouter)

	return router
}

type pinger interface {
	Ping(ctx context.Context) error
}

func health(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unavailable"})
			return
		}

		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}
