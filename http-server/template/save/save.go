package save

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"estimator/http-server/respond"
	"estimator/internal/assembler"
)

type TemplateAssembler interface {
	Assemble(ctx context.Context, req assembler.Request) (*assembler.Result, error)
	Preview(ctx context.Context, req assembler.Request) (*assembler.Result, error)
}

type AssemblyObserver interface {
	ObserveAssembly(outcome string)
}

// AssembleTemplate builds and stores a new template from blocks. A rejected
// request answers with the validation report of the assembly.
func AssembleTemplate(log *slog.Logger, asm TemplateAssembler, obs AssemblyObserver) http.HandlerFunc {
	return handle(log, "handlers.template.AssembleTemplate", asm.Assemble, obs, http.StatusCreated)
}

// PreviewTemplate runs the same assembly without persisting anything.
func PreviewTemplate(log *slog.Logger, asm TemplateAssembler) http.HandlerFunc {
	return handle(log, "handlers.template.PreviewTemplate", asm.Preview, nil, http.StatusOK)
}

func handle(
	log *slog.Logger,
	op string,
	run func(context.Context, assembler.Request) (*assembler.Result, error),
	obs AssemblyObserver,
	okStatus int,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assembler.Request
		if !respond.Decode(w, r, &req) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		res, err := run(ctx, req)
		if err != nil {
			status := respond.Status(err)
			if res == nil || status >= http.StatusInternalServerError {
				observe(obs, "error")
				respond.Error(w, r, log.With(slog.String("op", op)), err)
				return
			}
			observe(obs, "rejected")
			render.Status(r, status)
			render.JSON(w, r, res)
			return
		}
		observe(obs, "ok")

		render.Status(r, okStatus)
		render.JSON(w, r, res)
	}
}

func observe(obs AssemblyObserver, outcome string) {
	if obs != nil {
		obs.ObserveAssembly(outcome)
	}
}
