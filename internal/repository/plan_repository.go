package repository

import (
	"context"

	"subpromo/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// planRepository implements the PlanRepository interface using PostgreSQL.
type planRepository struct {
	q queries
}

// NewPlanRepository creates a new PostgreSQL-backed plan repository.
func NewPlanRepository(pool *pgxpool.Pool, logger zerolog.Logger) PlanRepository {
	return &planRepository{
		q: queries{db: pool, logger: logger.With().Str("repository", "plan").Logger()},
	}
}

// GetByID retrieves a plan by its ID. A missing plan returns (nil, nil).
func (r *planRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	return r.q.FindPlan(ctx, id)
}
