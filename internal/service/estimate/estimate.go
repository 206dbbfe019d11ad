// Package estimate runs one evaluation: validate parameters, run formulas,
// materialize the BOM and price it.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"estimator/internal/bom"
	"estimator/internal/catalog"
	"estimator/internal/formula"
	"estimator/internal/metrics"
	"estimator/internal/pricing"
	"estimator/internal/storage"
)

var ErrTemplateArchived = errors.New("template is archived")

type EstimateStorage interface {
	GetTemplateByCode(ctx context.Context, code string) (*storage.Template, error)
	GetAllOverheadRates(ctx context.Context) ([]storage.OverheadRate, error)
	GetResources(ctx context.Context, keys []storage.ResourceKey) (map[storage.ResourceKey]storage.Resource, error)
}

// Defaults apply when neither the request nor the template sets a value.
type Defaults struct {
	Currency      string
	TaxPercent    float64
	MarginPercent float64
}

type Service struct {
	log      *slog.Logger
	storage  EstimateStorage
	defaults Defaults
	metrics  *metrics.Metrics
}

func NewService(log *slog.Logger, storage EstimateStorage, defaults Defaults, m *metrics.Metrics) *Service {
	return &Service{log: log, storage: storage, defaults: defaults, metrics: m}
}

type Request struct {
	TemplateCode    string
	Values          map[string]any
	MarginPercent   *float64
	DiscountPercent *float64
	TaxPercent      *float64
}

const (
	WarnUnknownParameter = "UnknownParameter"
)

type Warning struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type Estimate struct {
	TemplateCode  string                   `json:"template_code"`
	TemplateName  string                   `json:"template_name"`
	Currency      string                   `json:"currency"`
	Parameters    map[string]storage.Value `json:"parameters"`
	Formulas      []formula.Computed       `json:"formulas"`
	ResourceLines []bom.Line               `json:"resource_lines"`
	Breakdown     *pricing.Breakdown       `json:"breakdown"`
	Warnings      []Warning                `json:"warnings"`
}

// Evaluate is deterministic for a given template, rates and request.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Estimate, error) {
	const op = "service.estimate.Evaluate"

	start := time.Now()
	est, err := s.evaluate(ctx, req)
	s.metrics.ObserveEvaluation(outcome(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug("template evaluated",
		slog.String("op", op),
		slog.String("template", req.TemplateCode),
		slog.Float64("final_price", est.Breakdown.FinalPrice),
		slog.Int("warnings", len(est.Warnings)),
	)

	return est, nil
}

func (s *Service) evaluate(ctx context.Context, req Request) (*Estimate, error) {
	var (
		template *storage.Template
		rates    []storage.OverheadRate
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		template, err = s.storage.GetTemplateByCode(gCtx, req.TemplateCode)
		if err != nil {
			return fmt.Errorf("template: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rates, err = s.storage.GetAllOverheadRates(gCtx)
		if err != nil {
			return fmt.Errorf("overhead rates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if template.Status == storage.StatusArchived {
		return nil, fmt.Errorf("%q: %w", template.Code, ErrTemplateArchived)
	}

	keys := make([]storage.ResourceKey, 0, len(template.Bom.Items))
	for _, it := range template.Bom.Items {
		keys = append(keys, storage.ResourceKey{Code: it.ResourceCode, Type: it.ResourceType})
	}
	resources, err := s.storage.GetResources(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("resources: %w", err)
	}

	return Compute(template, req, resources, rates, s.defaults)
}

// Compute is the pure part of Evaluate.
func Compute(
	template *storage.Template,
	req Request,
	resources map[storage.ResourceKey]storage.Resource,
	rates []storage.OverheadRate,
	defaults Defaults,
) (*Estimate, error) {
	values, err := catalog.ValidateAll(template.Parameters, req.Values)
	if err != nil {
		return nil, err
	}

	est := &Estimate{
		TemplateCode: template.Code,
		TemplateName: template.Name,
		Currency:     pick(template.Currency, defaults.Currency),
		Parameters:   values,
		Warnings:     []Warning{},
	}

	for _, code := range catalog.Unknown(template.Parameters, req.Values) {
		est.Warnings = append(est.Warnings, Warning{
			Kind:    WarnUnknownParameter,
			Subject: code,
			Message: "value ignored: not a parameter of this template",
		})
	}

	run, err := formula.Run(template.Formulas, formula.EnvFromValues(values))
	if err != nil {
		return nil, err
	}
	est.Formulas = run.Formulas

	materialized, err := bom.Materialize(template.Bom, run.Env, resources)
	if err != nil {
		return nil, err
	}
	est.ResourceLines = materialized.Lines
	for _, w := range materialized.Warnings {
		est.Warnings = append(est.Warnings, Warning{Kind: w.Kind, Subject: w.ResourceCode, Message: w.Message})
	}

	allocations, overhead, err := pricing.AllocateOverhead(pricing.Subtotal(materialized.Lines), template.Category, rates)
	if err != nil {
		return nil, err
	}

	margin := deref(template.MarginPercent, defaults.MarginPercent)

	breakdown, err := pricing.Compute(pricing.Input{
		Lines:           materialized.Lines,
		OverheadCost:    overhead,
		Overhead:        allocations,
		MarginPercent:   deref(req.MarginPercent, margin),
		DiscountPercent: deref(req.DiscountPercent, 0),
		TaxPercent:      deref(req.TaxPercent, defaults.TaxPercent),
		Currency:        est.Currency,
	})
	if err != nil {
		return nil, err
	}
	est.Breakdown = breakdown

	return est, nil
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func deref(p *float64, fallback float64) float64 {
	if p != nil {
		return *p
	}
	return fallback
}

func outcome(err error) string {
	var verrs *catalog.ValidationErrors
	var ferr *formula.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verrs):
		return "invalid_parameters"
	case errors.As(err, &ferr):
		return "formula_error"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
