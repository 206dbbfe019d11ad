package sqlstore

import (
	"context"
	"fmt"

	"estimator/internal/storage"
)

func (s *Storage) GetAllOverheadRates(ctx context.Context) ([]storage.OverheadRate, error) {
	const op = "storage.sqlstore.GetAllOverheadRates"

	rows, err := s.db.QueryContext(ctx, `SELECT id, category, fund, percent, is_active FROM overhead_rates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	rates := []storage.OverheadRate{}
	for rows.Next() {
		var r storage.OverheadRate
		if err := rows.Scan(&r.ID, &r.Category, &r.Fund, &r.Percent, &r.IsActive); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		rates = append(rates, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate rows: %w", op, err)
	}

	return rates, nil
}

// SaveOverheadRates updates rates by id and inserts the ones without id.
func (s *Storage) SaveOverheadRates(ctx context.Context, rates []storage.OverheadRate) error {
	const op = "storage.sqlstore.SaveOverheadRates"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}

	defer tx.Rollback()

	update, err := tx.PrepareContext(ctx, `UPDATE overhead_rates SET category = ?, fund = ?, percent = ?, is_active = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("%s: prepare update: %w", op, err)
	}
	defer update.Close()

	insert, err := tx.PrepareContext(ctx, `INSERT INTO overhead_rates (category, fund, percent, is_active) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%s: prepare insert: %w", op, err)
	}
	defer insert.Close()

	for _, r := range rates {
		if r.ID == 0 {
			_, err = insert.ExecContext(ctx, r.Category, r.Fund, r.Percent, r.IsActive)
		} else {
			_, err = update.ExecContext(ctx, r.Category, r.Fund, r.Percent, r.IsActive, r.ID)
		}
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%s: fund %q/%q: %w", op, r.Category, r.Fund, storage.ErrCodeConflict)
			}
			return fmt.Errorf("%s: save rate id=%d: %w", op, r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}
