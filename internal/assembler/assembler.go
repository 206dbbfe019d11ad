// Package assembler composes templates from reusable blocks and persists
// them in one transaction.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"estimator/internal/catalog"
	"estimator/internal/storage"
)

type Store interface {
	WithTx(ctx context.Context, fn func(tx storage.CatalogTx) error) error
}

type Assembler struct {
	log     *slog.Logger
	store   Store
	newCode func() string
}

func New(log *slog.Logger, store Store) *Assembler {
	return &Assembler{log: log, store: store, newCode: uuid.NewString}
}

var errDryRun = errors.New("dry run")

// Assemble validates the blocks, upserts the shared catalog entries and
// creates a new template. Every run yields a fresh template code.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	return a.run(ctx, req, false)
}

// Preview performs the whole assembly, including catalog conflict checks,
// and rolls it back.
func (a *Assembler) Preview(ctx context.Context, req Request) (*Result, error) {
	return a.run(ctx, req, true)
}

func (a *Assembler) run(ctx context.Context, req Request, dryRun bool) (*Result, error) {
	const op = "assembler.Assemble"

	log := a.log.With(slog.String("op", op), slog.String("name", req.Name), slog.Bool("dry_run", dryRun))

	d, validation, err := build(req)
	if err != nil {
		log.Info("template rejected", slog.String("error", err.Error()))
		return &Result{Validation: validation}, err
	}

	tpl := &d.template
	tpl.Code = a.newCode()

	err = a.store.WithTx(ctx, func(tx storage.CatalogTx) error {
		if err := persist(ctx, tx, d); err != nil {
			return err
		}
		if dryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		validation.Errors = append(validation.Errors, err.Error())
		log.Error("failed to assemble template", slog.String("error", err.Error()))
		return &Result{Validation: validation}, fmt.Errorf("%s: %w", op, err)
	}

	res := &Result{
		TemplateCode: tpl.Code,
		Validation:   validation,
		Preview:      preview(tpl),
		Template:     tpl,
	}
	if dryRun {
		res.TemplateCode = ""
		clearIDs(tpl)
		return res, nil
	}
	res.TemplateID = tpl.ID

	log.Info("template assembled",
		slog.String("code", tpl.Code),
		slog.Int("parameters", res.Preview.EstimatedParameters),
		slog.Int("formulas", res.Preview.EstimatedFormulas),
		slog.Int("bom_items", res.Preview.EstimatedBomItems),
		slog.Int("warnings", len(validation.Warnings)),
	)

	return res, nil
}

// persist writes the draft through tx: parameters, formulas and resources by
// code, then the template aggregate.
func persist(ctx context.Context, tx storage.CatalogTx, d *draft) error {
	tpl := &d.template

	for i := range tpl.Parameters {
		p := &tpl.Parameters[i].Parameter
		saved, err := catalog.Define(ctx, tx, *p)
		if err != nil {
			return err
		}
		*p = saved
	}

	for i := range tpl.Formulas {
		f := &tpl.Formulas[i].Formula
		saved, err := tx.UpsertFormula(ctx, *f)
		if err != nil {
			if errors.Is(err, storage.ErrCodeConflict) {
				return fmt.Errorf("formula %q: %w", f.Code, ErrDuplicateCodeConflict)
			}
			return err
		}
		*f = saved
	}

	for _, r := range d.rules {
		_, err := tx.FindResourceByCode(ctx, r.ResourceCode, r.Type)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if r.Resource == nil {
			return fmt.Errorf("%s %q: %w", r.Type, r.ResourceCode, ErrUnknownResource)
		}
		_, err = tx.UpsertResource(ctx, storage.Resource{
			Code:     r.ResourceCode,
			Name:     r.Resource.Name,
			Type:     r.Type,
			BaseUnit: r.Resource.BaseUnit,
			UnitCost: r.Resource.UnitCost,
			IsActive: true,
		})
		if err != nil {
			return err
		}
	}

	if _, err := tx.CreateTemplate(ctx, tpl); err != nil {
		return err
	}

	return nil
}

// clearIDs drops the identities handed out by a rolled back transaction.
func clearIDs(t *storage.Template) {
	t.ID, t.Code, t.Bom.ID = 0, "", 0
	for i := range t.Parameters {
		t.Parameters[i].Parameter.ID = 0
	}
	for i := range t.Formulas {
		t.Formulas[i].Formula.ID = 0
	}
	for i := range t.Bom.Items {
		t.Bom.Items[i].ID = 0
	}
}
