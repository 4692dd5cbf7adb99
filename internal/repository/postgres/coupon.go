package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/utafrali/promotion-service/pkg/errors"
	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/repository"
)

const couponColumns = `id, code, campaign_id, is_used, used_by, used_at, expires_at, created_at`

// CouponRepository implements repository.CouponRepository using PostgreSQL.
// Code uniqueness is enforced by a unique constraint on coupon_codes.code;
// inserts use ON CONFLICT DO NOTHING so a collision surfaces as zero rows
// affected instead of aborting the batch transaction.
type CouponRepository struct {
	db DB
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(db DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// CreateBatch inserts quantity coupons inside one transaction. Each
// candidate is inserted with ON CONFLICT DO NOTHING; zero rows affected
// means the code already exists somewhere in the namespace, so a fresh
// candidate is minted, up to maxAttemptsPerCode times. Exhausting the bound
// rolls the whole batch back.
func (r *CouponRepository) CreateBatch(ctx context.Context, quantity, maxAttemptsPerCode int, mint repository.CodeMinter) ([]domain.CouponCode, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin coupon batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO coupon_codes (id, code, campaign_id, is_used, used_by, used_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO NOTHING`

	coupons := make([]domain.CouponCode, 0, quantity)
	for i := 0; i < quantity; i++ {
		inserted := false
		for attempt := 0; attempt < maxAttemptsPerCode; attempt++ {
			candidate, err := mint()
			if err != nil {
				return nil, fmt.Errorf("mint coupon code: %w", err)
			}

			ct, err := tx.Exec(ctx, query,
				candidate.ID,
				candidate.Code,
				candidate.CampaignID,
				candidate.IsUsed,
				nullableString(candidate.UsedBy),
				candidate.UsedAt,
				candidate.ExpiresAt,
				candidate.CreatedAt,
			)
			if err != nil {
				return nil, fmt.Errorf("insert coupon code: %w", err)
			}

			if ct.RowsAffected() > 0 {
				coupons = append(coupons, candidate)
				inserted = true
				break
			}
		}

		if !inserted {
			return nil, apperrors.GenerationFailed(
				fmt.Sprintf("could not generate a unique code within %d attempts", maxAttemptsPerCode))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit coupon batch: %w", err)
	}

	return coupons, nil
}

// GetByCode retrieves a coupon by its code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*domain.CouponCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupon_codes WHERE code = $1`, couponColumns)

	c, err := scanCoupon(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("coupon", code)
		}
		return nil, err
	}
	return c, nil
}

// ListByCampaign returns a campaign's coupons with the total count.
func (r *CouponRepository) ListByCampaign(ctx context.Context, campaignID string, page, perPage int) ([]domain.CouponCode, int, error) {
	limit := perPage
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * limit
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM coupon_codes
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		couponColumns,
	)

	rows, err := r.db.Query(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var (
		coupons    []domain.CouponCode
		totalCount int
	)

	for rows.Next() {
		var (
			c      domain.CouponCode
			usedBy *string
		)

		if err := rows.Scan(
			&c.ID,
			&c.Code,
			&c.CampaignID,
			&c.IsUsed,
			&usedBy,
			&c.UsedAt,
			&c.ExpiresAt,
			&c.CreatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan coupon row: %w", err)
		}

		if usedBy != nil {
			c.UsedBy = *usedBy
		}

		coupons = append(coupons, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate coupon rows: %w", err)
	}

	if coupons == nil {
		coupons = []domain.CouponCode{}
	}

	return coupons, totalCount, nil
}

// MarkUsed flags a coupon as consumed. The guard on is_used makes the
// check-and-set atomic, so two concurrent redemptions cannot both succeed.
func (r *CouponRepository) MarkUsed(ctx context.Context, code, userID string, at time.Time) error {
	query := `
		UPDATE coupon_codes
		SET is_used = true, used_by = $2, used_at = $3
		WHERE code = $1 AND is_used = false`

	ct, err := r.db.Exec(ctx, query, code, userID, at)
	if err != nil {
		return fmt.Errorf("mark coupon used: %w", err)
	}

	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM coupon_codes WHERE code = $1)`, code,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check coupon existence: %w", err)
		}
		if !exists {
			return apperrors.NotFound("coupon", code)
		}
		return apperrors.Conflict("coupon has already been used")
	}

	return nil
}

func scanCoupon(row pgx.Row) (*domain.CouponCode, error) {
	var (
		c      domain.CouponCode
		usedBy *string
	)

	if err := row.Scan(
		&c.ID,
		&c.Code,
		&c.CampaignID,
		&c.IsUsed,
		&usedBy,
		&c.UsedAt,
		&c.ExpiresAt,
		&c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}

	if usedBy != nil {
		c.UsedBy = *usedBy
	}

	return &c, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
