package evaluate

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"estimator/http-server/respond"
	"estimator/internal/service/estimate"
)

type Evaluator interface {
	Evaluate(ctx context.Context, req estimate.Request) (*estimate.Estimate, error)
}

// Request is the body of an evaluation. Omitted percentages fall back to
// the template and then to the configured defaults.
type Request struct {
	Values          map[string]any `json:"values"`
	MarginPercent   *float64       `json:"margin_percent,omitempty" validate:"omitempty,gte=0"`
	DiscountPercent *float64       `json:"discount_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	TaxPercent      *float64       `json:"tax_percent,omitempty" validate:"omitempty,gte=0"`
}

func (req Request) ToEstimate(code string) estimate.Request {
	return estimate.Request{
		TemplateCode:    code,
		Values:          req.Values,
		MarginPercent:   req.MarginPercent,
		DiscountPercent: req.DiscountPercent,
		TaxPercent:      req.TaxPercent,
	}
}

// Run decodes the request for the {code} route and evaluates it. It writes
// the error response itself and returns nil on failure.
func Run(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, ev Evaluator) *estimate.Estimate {
	code := chi.URLParam(r, "code")
	if code == "" {
		http.Error(w, "Missing template code", http.StatusBadRequest)
		return nil
	}

	var req Request
	if !respond.Decode(w, r, &req) {
		return nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	est, err := ev.Evaluate(ctx, req.ToEstimate(code))
	if err != nil {
		respond.Error(w, r, log.With(slog.String("op", op), slog.String("template", code)), err)
		return nil
	}
	return est
}

// EvaluateTemplate answers with the full estimate: bound parameters,
// formula results, resource lines and the price breakdown.
func EvaluateTemplate(log *slog.Logger, ev Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.evaluate.EvaluateTemplate"

		est := Run(w, r, log, op, ev)
		if est == nil {
			return
		}

		render.JSON(w, r, est)
	}
}
