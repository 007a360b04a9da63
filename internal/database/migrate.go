package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate runs the embedded SQL migrations in file name order.
// Every migration is idempotent, so running it against an up-to-date schema is a no-op.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	names, err := migrationNames()
	if err != nil {
		return err
	}

	for _, name := range names {
		sql, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		logger.Info().Str("migration", name).Msg("migration applied")
	}

	return nil
}

func migrationNames() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

// ActiveRedemptionIndex is the unique index holding each user to one active
// redemption per promo code.
const ActiveRedemptionIndex = "uq_subscription_promo_codes_active_user"

// ApplyRedemptionLimit creates ActiveRedemptionIndex when a user may hold a
// code once and drops it when more uses are allowed.
func ApplyRedemptionLimit(ctx context.Context, pool *pgxpool.Pool, maxUsesPerUser int, logger zerolog.Logger) error {
	if _, err := pool.Exec(ctx, redemptionLimitSQL(maxUsesPerUser)); err != nil {
		return fmt.Errorf("failed to apply redemption limit index: %w", err)
	}
	logger.Info().
		Int("max_uses_per_user", maxUsesPerUser).
		Bool("unique_index", maxUsesPerUser <= 1).
		Msg("redemption limit applied")
	return nil
}

func redemptionLimitSQL(maxUsesPerUser int) string {
	if maxUsesPerUser > 1 {
		return "DROP INDEX IF EXISTS " + ActiveRedemptionIndex
	}
	return "CREATE UNIQUE INDEX IF NOT EXISTS " + ActiveRedemptionIndex +
		" ON subscription_promo_codes(promo_code_id, user_id) WHERE is_active"
}
