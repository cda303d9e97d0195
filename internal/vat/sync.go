package vat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/calculator"
	"github.com/forgecommerce/invoicing/internal/metrics"
)

// RateSyncer keeps the in-memory tax-rate catalog in step with the
// tax_rates table and versions imported rates.
type RateSyncer struct {
	db      *pgxpool.Pool
	cache   *RateCache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRateSyncer creates a new RateSyncer with the given dependencies.
func NewRateSyncer(db *pgxpool.Pool, cache *RateCache, logger *slog.Logger, m *metrics.Metrics) *RateSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateSyncer{
		db:      db,
		cache:   cache,
		logger:  logger,
		metrics: m,
	}
}

// Sync reloads the active tax rates from the database into the cache. On
// failure the cache keeps its previous content.
func (s *RateSyncer) Sync(ctx context.Context) SyncResult {
	now := time.Now().UTC()

	rates, err := s.loadFromDB(ctx)
	if err != nil {
		s.metrics.CatalogReload(SourceDatabase, err, 0)
		return SyncResult{
			Source:   SourceDatabase,
			SyncedAt: now,
			Error:    err,
		}
	}

	changes := detectChanges(s.cache.GetAll(), rates)
	for _, ch := range changes {
		s.logger.Info("tax rate changed",
			"code", ch.Code,
			"old_vat", ch.OldVAT.String(),
			"new_vat", ch.NewVAT.String(),
			"old_surcharge", ch.OldSurcharge.String(),
			"new_surcharge", ch.NewSurcharge.String(),
		)
	}

	s.cache.Load(rates)
	s.metrics.CatalogReload(SourceDatabase, nil, s.cache.Count())

	return SyncResult{
		Source:       SourceDatabase,
		RatesLoaded:  len(rates),
		RatesChanged: len(changes),
		SyncedAt:     now,
	}
}

// Import stores rates as the active version of their codes, expiring the
// rows they replace, and reloads the cache. Rows whose rates did not change
// only get their synced_at refreshed.
func (s *RateSyncer) Import(ctx context.Context, rates []TaxRate, source string) SyncResult {
	now := time.Now().UTC()

	if err := s.saveRates(ctx, rates, source); err != nil {
		s.metrics.CatalogReload(source, err, 0)
		return SyncResult{
			Source:   source,
			SyncedAt: now,
			Error:    err,
		}
	}
	s.metrics.RatesImported(len(rates))

	result := s.Sync(ctx)
	result.Source = source
	return result
}

// loadFromDB loads currently active tax rates from the database.
// Active rates are those where valid_to IS NULL.
func (s *RateSyncer) loadFromDB(ctx context.Context) ([]TaxRate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, code, description, vat, surcharge,
		       valid_from, valid_to, source, synced_at
		FROM tax_rates
		WHERE valid_to IS NULL
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tax_rates: %w", err)
	}
	defer rows.Close()

	var rates []TaxRate
	for rows.Next() {
		var r TaxRate
		if err := rows.Scan(
			&r.ID, &r.Code, &r.Description, &r.VAT, &r.Surcharge,
			&r.ValidFrom, &r.ValidTo, &r.Source, &r.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning tax_rate row: %w", err)
		}
		rates = append(rates, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tax_rate rows: %w", err)
	}

	return rates, nil
}

// saveRates persists rates in one transaction. A code whose VAT or
// surcharge changed gets its active row expired (valid_to set) before the
// new row is inserted.
func (s *RateSyncer) saveRates(ctx context.Context, rates []TaxRate, source string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	for _, r := range rates {
		var existingID string
		var existingVAT, existingSurcharge decimal.Decimal
		err := tx.QueryRow(ctx, `
			SELECT id, vat, surcharge FROM tax_rates
			WHERE code = $1 AND valid_to IS NULL
			LIMIT 1
		`, r.Code).Scan(&existingID, &existingVAT, &existingSurcharge)

		if err == nil {
			if existingVAT.Equal(r.VAT) && existingSurcharge.Equal(r.Surcharge) {
				_, err = tx.Exec(ctx, `
					UPDATE tax_rates SET synced_at = $1, description = $2 WHERE id = $3
				`, now, r.Description, existingID)
				if err != nil {
					return fmt.Errorf("updating synced_at for %s: %w", r.Code, err)
				}
				continue
			}

			_, err = tx.Exec(ctx, `
				UPDATE tax_rates SET valid_to = $1 WHERE id = $2
			`, now, existingID)
			if err != nil {
				return fmt.Errorf("expiring old rate for %s: %w", r.Code, err)
			}
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("checking existing rate for %s: %w", r.Code, err)
		}

		rateID := r.ID
		if rateID == "" {
			rateID = uuid.New().String()
		}
		validFrom := r.ValidFrom
		if validFrom.IsZero() {
			validFrom = now
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO tax_rates (id, code, description, vat, surcharge, valid_from, valid_to, source, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8)
		`, rateID, r.Code, r.Description, r.VAT, r.Surcharge, validFrom, source, now)
		if err != nil {
			return fmt.Errorf("inserting rate for %s: %w", r.Code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tax rate import: %w", err)
	}

	s.logger.Info("saved tax rates to database",
		"source", source,
		"count", len(rates),
	)

	return nil
}

// detectChanges compares the cached catalog with freshly loaded rates and
// returns the codes that are new or whose rates changed, ordered by code.
func detectChanges(old map[string]calculator.TaxRateEntry, fresh []TaxRate) []RateChange {
	var changes []RateChange
	for _, r := range fresh {
		if r.ValidTo != nil {
			continue
		}
		prev, existed := old[r.Code]
		if existed && prev.VAT.Equal(r.VAT) && prev.Surcharge.Equal(r.Surcharge) {
			continue
		}
		changes = append(changes, RateChange{
			Code:         r.Code,
			OldVAT:       prev.VAT,
			NewVAT:       r.VAT,
			OldSurcharge: prev.Surcharge,
			NewSurcharge: r.Surcharge,
		})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Code < changes[j].Code })
	return changes
}
