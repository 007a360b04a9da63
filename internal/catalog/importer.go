package catalog

import (
	"context"
	"fmt"

	"subpromo/internal/cache"
	"subpromo/internal/model"
	"subpromo/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ImportReport summarises one catalog import.
type ImportReport struct {
	Sources  int         `json:"sources"`
	Loaded   int         `json:"loaded"`
	Imported int         `json:"imported"`
	Created  int         `json:"created"`
	Updated  int         `json:"updated"`
	Rejected int         `json:"rejected"`
	Errors   []LineError `json:"errors,omitempty"`
}

// ImporterConfig holds configuration for the catalog importer.
type ImporterConfig struct {
	// Concurrency bounds how many sources are loaded at once. Default: 4
	Concurrency int
}

// Importer loads promo code catalogs and upserts them into the store.
type Importer struct {
	loader      Loader
	store       repository.PromoCodeStore
	invalidator Invalidator
	cfg         ImporterConfig
	logger      zerolog.Logger
}

// NewImporter creates a catalog importer. invalidator may be nil.
func NewImporter(loader Loader, store repository.PromoCodeStore, invalidator Invalidator, cfg ImporterConfig, logger zerolog.Logger) *Importer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	return &Importer{
		loader:      loader,
		store:       store,
		invalidator: invalidator,
		cfg:         cfg,
		logger:      logger.With().Str("component", "catalog-importer").Logger(),
	}
}

// Import loads every source concurrently and then upserts the definitions in
// source order. Invalid definitions and duplicate codes are rejected and
// reported; a failed load or a store failure aborts the import.
func (i *Importer) Import(ctx context.Context, sources ...string) (*ImportReport, error) {
	report := &ImportReport{Sources: len(sources)}

	batches := make([]*Batch, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Concurrency)
	for idx, source := range sources {
		g.Go(func() error {
			batch, err := i.loader.Load(gctx, source)
			if err != nil {
				return fmt.Errorf("failed to load catalog %s: %w", source, err)
			}
			batches[idx] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		i.logger.Error().Err(err).Int("sources", len(sources)).Msg("catalog load failed")
		return report, err
	}

	for _, batch := range batches {
		report.Loaded += len(batch.Entries)
		report.Rejected += len(batch.Errors)
		report.Errors = append(report.Errors, batch.Errors...)

		for _, entry := range batch.Entries {
			if err := i.importEntry(ctx, batch.Source, entry, report); err != nil {
				return report, err
			}
		}
	}

	i.logger.Info().
		Int("sources", report.Sources).
		Int("loaded", report.Loaded).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("rejected", report.Rejected).
		Msg("catalog import finished")

	return report, nil
}

func (i *Importer) importEntry(ctx context.Context, source string, entry Entry, report *ImportReport) error {
	def := entry.Definition
	Normalise(&def)

	reject := func(err error) {
		report.Rejected++
		reason := err.Error()
		if de, ok := model.AsDomainError(err); ok {
			reason = de.Message
		}
		report.Errors = append(report.Errors, LineError{Source: source, Line: entry.Line, Code: def.Code, Reason: reason})
		i.logger.Warn().
			Str("source", source).
			Int("line", entry.Line).
			Str("code", def.Code).
			Str("reason", reason).
			Msg("catalog entry rejected")
	}

	if err := Validate(&def); err != nil {
		reject(err)
		return nil
	}

	var (
		created  bool
		previous string
	)
	err := i.store.WithinTx(ctx, func(ctx context.Context, tx repository.PromoCodeTx) error {
		existing, err := tx.FindByID(ctx, def.ID)
		if err != nil {
			return err
		}
		previous = ""
		if existing != nil {
			previous = existing.Code
		}

		created, err = tx.UpsertPromoCode(ctx, &def)
		return err
	})
	if err != nil {
		switch model.KindOf(err) {
		case model.KindConflict, model.KindBadRequest:
			reject(err)
			return nil
		}
		i.logger.Error().Err(err).Str("code", def.Code).Msg("failed to import promo code")
		return fmt.Errorf("failed to import promo code %s: %w", def.Code, err)
	}

	report.Imported++
	ev := cache.Event{Kind: cache.EventCreated, PromoCodeID: def.ID, Code: def.Code}
	if created {
		report.Created++
	} else {
		report.Updated++
		ev.Kind = cache.EventUpdated
		// A renamed code leaves its old lookup key behind; purge every lookup.
		if previous != def.Code {
			ev.Code = ""
		}
	}

	if i.invalidator != nil {
		if _, err := i.invalidator.Invalidate(context.WithoutCancel(ctx), ev); err != nil {
			i.logger.Warn().Err(err).Str("code", def.Code).Msg("cache invalidation incomplete after import")
		}
	}

	return nil
}
