package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"subpromo/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const promoCodeColumns = `
	id, code, description, discount_type, discount_value, max_discount_amount,
	start_date, end_date, usage_limit, usage_count, is_active, is_first_time_only,
	applicable_to, created_at, updated_at
`

// NormaliseCode canonicalises a user-entered promo code.
func NormaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// queries implements the PromoCodeTx queries over any querier.
type queries struct {
	db     querier
	logger zerolog.Logger
}

// promoCodeRepository implements PromoCodeStore using PostgreSQL.
type promoCodeRepository struct {
	queries
	pool       *pgxpool.Pool
	maxRetries int
}

// NewPromoCodeRepository creates a new PostgreSQL-backed promo code store.
// maxRetries bounds how often WithinTx retries a serialization failure or deadlock.
func NewPromoCodeRepository(pool *pgxpool.Pool, maxRetries int, logger zerolog.Logger) PromoCodeStore {
	logger = logger.With().Str("repository", "promo_code").Logger()
	return &promoCodeRepository{
		queries:    queries{db: pool, logger: logger},
		pool:       pool,
		maxRetries: maxRetries,
	}
}

// WithinTx runs fn inside a transaction and retries retryable failures with linear backoff.
func (r *promoCodeRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx PromoCodeTx) error) error {
	for attempt := 0; ; attempt++ {
		err := r.runInTx(ctx, fn)
		if err == nil {
			return nil
		}

		if !isRetryable(err) || attempt >= r.maxRetries {
			return err
		}

		wait := time.Duration(attempt+1) * 50 * time.Millisecond
		r.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("retrying promo code transaction")

		select {
		case <-ctx.Done():
			return classify("transaction retry aborted", ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (r *promoCodeRepository) runInTx(ctx context.Context, fn func(ctx context.Context, tx PromoCodeTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return classify("failed to begin transaction", err)
	}

	// Rollback after a successful commit returns pgx.ErrTxClosed, which is ignored.
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
	}()

	if err := fn(ctx, &queries{db: tx, logger: r.logger}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error().Err(err).Msg("failed to commit transaction")
		return classify("failed to commit transaction", err)
	}

	return nil
}

// FindByID retrieves a promo code by its ID.
func (q *queries) FindByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error) {
	query := `SELECT ` + promoCodeColumns + ` FROM promo_codes WHERE id = $1`
	return q.findOne(ctx, "id", id.String(), query, id)
}

// FindByCode retrieves a promo code by its normalised code string.
func (q *queries) FindByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	code = NormaliseCode(code)
	query := `SELECT ` + promoCodeColumns + ` FROM promo_codes WHERE code = $1`
	return q.findOne(ctx, "code", code, query, code)
}

// LockByID retrieves a promo code and holds a row lock for the rest of the transaction.
func (q *queries) LockByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error) {
	query := `SELECT ` + promoCodeColumns + ` FROM promo_codes WHERE id = $1 FOR UPDATE`
	return q.findOne(ctx, "id", id.String(), query, id)
}

func (q *queries) findOne(ctx context.Context, field, value, query string, arg any) (*model.PromoCode, error) {
	promo, err := scanPromoCode(q.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			q.logger.Debug().Str(field, value).Msg("promo code not found")
			return nil, nil
		}
		q.logger.Error().Err(err).Str(field, value).Msg("failed to query promo code")
		return nil, classify("failed to query promo code", err)
	}
	return promo, nil
}

// IsPlanApplicable reports whether planID is in the promo code's applicable plans.
func (q *queries) IsPlanApplicable(ctx context.Context, promoCodeID, planID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM promo_code_applicable_plans
			WHERE promo_code_id = $1 AND plan_id = $2
		)
	`
	var exists bool
	if err := q.db.QueryRow(ctx, query, promoCodeID, planID).Scan(&exists); err != nil {
		q.logger.Error().
			Err(err).
			Str("promo_code_id", promoCodeID.String()).
			Str("plan_id", planID.String()).
			Msg("failed to query applicable plans")
		return false, classify("failed to query applicable plans", err)
	}
	return exists, nil
}

// IsUserApplicable reports whether userID is in the promo code's applicable users.
func (q *queries) IsUserApplicable(ctx context.Context, promoCodeID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM promo_code_applicable_users
			WHERE promo_code_id = $1 AND user_id = $2
		)
	`
	var exists bool
	if err := q.db.QueryRow(ctx, query, promoCodeID, userID).Scan(&exists); err != nil {
		q.logger.Error().
			Err(err).
			Str("promo_code_id", promoCodeID.String()).
			Str("user_id", userID.String()).
			Msg("failed to query applicable users")
		return false, classify("failed to query applicable users", err)
	}
	return exists, nil
}

// CountUsageByUserAndCode counts active redemptions of the promo code on the user's subscriptions.
func (q *queries) CountUsageByUserAndCode(ctx context.Context, userID, promoCodeID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM subscription_promo_codes spc
		JOIN subscriptions s ON s.id = spc.subscription_id
		WHERE spc.promo_code_id = $1 AND s.user_id = $2 AND spc.is_active
	`
	var count int
	if err := q.db.QueryRow(ctx, query, promoCodeID, userID).Scan(&count); err != nil {
		q.logger.Error().
			Err(err).
			Str("promo_code_id", promoCodeID.String()).
			Str("user_id", userID.String()).
			Msg("failed to count promo code usage")
		return 0, classify("failed to count promo code usage", err)
	}
	return count, nil
}

// CountPriorSubscriptions counts the user's subscriptions other than excludeSubscriptionID.
func (q *queries) CountPriorSubscriptions(ctx context.Context, userID, excludeSubscriptionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM subscriptions WHERE user_id = $1 AND id <> $2`
	var count int
	if err := q.db.QueryRow(ctx, query, userID, excludeSubscriptionID).Scan(&count); err != nil {
		q.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to count prior subscriptions")
		return 0, classify("failed to count prior subscriptions", err)
	}
	return count, nil
}

// FindSubscription retrieves a subscription by its ID.
func (q *queries) FindSubscription(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	query := `SELECT id, user_id, plan_id, status, created_at FROM subscriptions WHERE id = $1`

	var sub model.Subscription
	err := q.db.QueryRow(ctx, query, id).Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		q.logger.Error().Err(err).Str("subscription_id", id.String()).Msg("failed to query subscription")
		return nil, classify("failed to query subscription", err)
	}
	return &sub, nil
}

// FindPlan retrieves a plan by its ID.
func (q *queries) FindPlan(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	query := `SELECT id, name, price, is_active FROM plans WHERE id = $1`

	var plan model.Plan
	err := q.db.QueryRow(ctx, query, id).Scan(&plan.ID, &plan.Name, &plan.Price, &plan.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		q.logger.Error().Err(err).Str("plan_id", id.String()).Msg("failed to query plan")
		return nil, classify("failed to query plan", err)
	}
	return &plan, nil
}

// AtomicIncrementUsage increments usage_count in a single conditional update,
// so concurrent redemptions can never push it past usage_limit.
func (q *queries) AtomicIncrementUsage(ctx context.Context, id uuid.UUID) (int, bool, error) {
	query := `
		UPDATE promo_codes
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND is_active
		  AND (usage_limit IS NULL OR usage_count < usage_limit)
		RETURNING usage_count
	`
	var count int
	if err := q.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			q.logger.Debug().Str("promo_code_id", id.String()).Msg("promo code has no remaining capacity")
			return 0, false, nil
		}
		q.logger.Error().Err(err).Str("promo_code_id", id.String()).Msg("failed to increment promo code usage")
		return 0, false, classify("failed to increment promo code usage", err)
	}
	return count, true, nil
}

// CreateRedemptionRecord inserts a subscription promo code row.
func (q *queries) CreateRedemptionRecord(ctx context.Context, rec *model.SubscriptionPromoCode) error {
	query := `
		INSERT INTO subscription_promo_codes
			(id, subscription_id, promo_code_id, user_id, discount_amount, applied_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.db.Exec(ctx, query,
		rec.ID, rec.SubscriptionID, rec.PromoCodeID, rec.UserID,
		rec.DiscountAmount, rec.AppliedDate, rec.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return redemptionConflict(err)
		}
		q.logger.Error().
			Err(err).
			Str("subscription_id", rec.SubscriptionID.String()).
			Str("promo_code_id", rec.PromoCodeID.String()).
			Msg("failed to create redemption record")
		return classify("failed to create redemption record", err)
	}

	q.logger.Debug().
		Str("redemption_id", rec.ID.String()).
		Str("promo_code_id", rec.PromoCodeID.String()).
		Msg("redemption record created")

	return nil
}

// UpsertPromoCode inserts or updates a promo code by ID and replaces its applicability rows.
// A code already owned by a different ID is a conflict.
func (q *queries) UpsertPromoCode(ctx context.Context, def *model.PromoCodeDefinition) (bool, error) {
	query := `
		INSERT INTO promo_codes (
			id, code, description, discount_type, discount_value, max_discount_amount,
			start_date, end_date, usage_limit, is_active, is_first_time_only, applicable_to,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			max_discount_amount = EXCLUDED.max_discount_amount,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			usage_limit = EXCLUDED.usage_limit,
			is_active = EXCLUDED.is_active,
			is_first_time_only = EXCLUDED.is_first_time_only,
			applicable_to = EXCLUDED.applicable_to,
			updated_at = NOW()
		RETURNING (xmax = 0)
	`
	p := def.PromoCode
	var created bool
	err := q.db.QueryRow(ctx, query,
		p.ID, NormaliseCode(p.Code), p.Description, string(p.DiscountType), p.DiscountValue,
		p.MaxDiscountAmount, p.StartDate, p.EndDate, p.UsageLimit, p.IsActive,
		p.IsFirstTimeOnly, string(p.ApplicableTo),
	).Scan(&created)
	if err != nil {
		if isUniqueViolation(err) {
			return false, model.NewConflictError(model.ErrCodeDuplicateCode,
				fmt.Sprintf("Promo code %s already exists", NormaliseCode(p.Code)), err)
		}
		if isCheckViolation(err, usageWithinLimitCheck) {
			return false, &model.DomainError{
				Kind:    model.KindBadRequest,
				Code:    model.ErrCodeInvalidDefinition,
				Message: fmt.Sprintf("Promo code %s usage limit is below its current usage count", NormaliseCode(p.Code)),
				Err:     err,
			}
		}
		q.logger.Error().Err(err).Str("promo_code_id", p.ID.String()).Msg("failed to upsert promo code")
		return false, classify("failed to upsert promo code", err)
	}

	if err := q.replaceApplicability(ctx, p.ID, def.PlanIDs, def.UserIDs); err != nil {
		return false, err
	}

	return created, nil
}

func (q *queries) replaceApplicability(ctx context.Context, promoCodeID uuid.UUID, planIDs, userIDs []uuid.UUID) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM promo_code_applicable_plans WHERE promo_code_id = $1`, promoCodeID)
	batch.Queue(`DELETE FROM promo_code_applicable_users WHERE promo_code_id = $1`, promoCodeID)
	for _, planID := range planIDs {
		batch.Queue(`INSERT INTO promo_code_applicable_plans (promo_code_id, plan_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, promoCodeID, planID)
	}
	for _, userID := range userIDs {
		batch.Queue(`INSERT INTO promo_code_applicable_users (promo_code_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, promoCodeID, userID)
	}

	results := q.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			q.logger.Error().
				Err(err).
				Str("promo_code_id", promoCodeID.String()).
				Msg("failed to replace promo code applicability")
			return classify("failed to replace promo code applicability", err)
		}
	}

	return nil
}

// scanPromoCode scans a row selected with promoCodeColumns.
func scanPromoCode(row pgx.Row) (*model.PromoCode, error) {
	var (
		p            model.PromoCode
		discountType string
		applicableTo string
		maxDiscount  decimal.NullDecimal
	)

	err := row.Scan(
		&p.ID,
		&p.Code,
		&p.Description,
		&discountType,
		&p.DiscountValue,
		&maxDiscount,
		&p.StartDate,
		&p.EndDate,
		&p.UsageLimit,
		&p.UsageCount,
		&p.IsActive,
		&p.IsFirstTimeOnly,
		&applicableTo,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.DiscountType = model.DiscountType(discountType)
	p.ApplicableTo = model.ApplicableTo(applicableTo)
	if maxDiscount.Valid {
		v := maxDiscount.Decimal
		p.MaxDiscountAmount = &v
	}

	return &p, nil
}
