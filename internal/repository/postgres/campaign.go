package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/utafrali/promotion-service/pkg/errors"
	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/repository"
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies
// it as well, so the same code path is exercised in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const campaignColumns = `id, name, description, status, discount_config, usage_conditions,
	target_audience, start_date, end_date, priority, is_stackable,
	total_used, total_savings, unique_users, created_at, updated_at`

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
// The discount config, usage conditions, and target audience unions are
// stored as JSONB columns.
type CampaignRepository struct {
	db DB
}

// NewCampaignRepository creates a new PostgreSQL-backed campaign repository.
func NewCampaignRepository(db DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign into the database.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	discountJSON, conditionsJSON, audienceJSON, err := marshalCampaignConfigs(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO campaigns (
			id, name, description, status, discount_config, usage_conditions,
			target_audience, start_date, end_date, priority, is_stackable,
			total_used, total_savings, unique_users, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.db.Exec(ctx, query,
		c.ID,
		c.Name,
		c.Description,
		c.Status,
		discountJSON,
		conditionsJSON,
		audienceJSON,
		c.StartDate,
		c.EndDate,
		c.Priority,
		c.IsStackable,
		c.Usage.TotalUsed,
		c.Usage.TotalSavings,
		c.Usage.UniqueUsers,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "id", c.ID)
		}
		return fmt.Errorf("insert campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by its ID.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE id = $1`, campaignColumns)

	row := r.db.QueryRow(ctx, query, id)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("campaign", id)
		}
		return nil, err
	}
	return c, nil
}

// List returns campaigns matching the given filter with the total count.
func (r *CampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.DiscountKind != nil {
		conditions = append(conditions, fmt.Sprintf("discount_config->>'kind' = $%d", argIndex))
		args = append(args, *filter.DiscountKind)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM campaigns
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		campaignColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var (
		campaigns  []domain.Campaign
		totalCount int
	)

	for rows.Next() {
		c, err := scanCampaignRowWithCount(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rows: %w", err)
	}

	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}

	return campaigns, totalCount, nil
}

// ListActive returns all campaigns that are active and whose date range
// contains now.
func (r *CampaignRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM campaigns
		WHERE status = $1 AND start_date <= $2 AND end_date >= $2
		ORDER BY priority DESC, start_date ASC, id ASC`,
		campaignColumns,
	)

	rows, err := r.db.Query(ctx, query, domain.CampaignStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaignRow(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active campaign rows: %w", err)
	}

	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}

	return campaigns, nil
}

// Update modifies an existing campaign in the database.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	discountJSON, conditionsJSON, audienceJSON, err := marshalCampaignConfigs(c)
	if err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE campaigns
		SET name = $1, description = $2, status = $3, discount_config = $4,
		    usage_conditions = $5, target_audience = $6, start_date = $7,
		    end_date = $8, priority = $9, is_stackable = $10, updated_at = $11
		WHERE id = $12`

	ct, err := r.db.Exec(ctx, query,
		c.Name,
		c.Description,
		c.Status,
		discountJSON,
		conditionsJSON,
		audienceJSON,
		c.StartDate,
		c.EndDate,
		c.Priority,
		c.IsStackable,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", c.ID)
	}

	return nil
}

// Delete removes a campaign by id.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", id)
	}

	return nil
}

// CommitUsage atomically increments usage counters while the campaign is
// still under its usage limit. The limit check and increment happen in one
// statement so concurrent checkouts cannot oversell the limit.
func (r *CampaignRepository) CommitUsage(ctx context.Context, campaignID string, discount int64) error {
	query := `
		UPDATE campaigns
		SET total_used = total_used + 1,
		    total_savings = total_savings + $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND (COALESCE((usage_conditions->>'usage_limit')::bigint, 0) = 0
		       OR total_used < (usage_conditions->>'usage_limit')::bigint)`

	ct, err := r.db.Exec(ctx, query, campaignID, discount)
	if err != nil {
		return fmt.Errorf("commit campaign usage: %w", err)
	}

	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, campaignID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check campaign existence: %w", err)
		}
		if !exists {
			return apperrors.NotFound("campaign", campaignID)
		}
		return apperrors.UsageLimitReached(campaignID)
	}

	return nil
}

// RecordUsage appends a per-order usage entry and refreshes the campaign's
// distinct-user counter from the ledger. Anonymous applications (empty user
// id) do not count toward unique users.
func (r *CampaignRepository) RecordUsage(ctx context.Context, usage *repository.CampaignUsage) error {
	query := `
		INSERT INTO campaign_usages (id, campaign_id, user_id, order_id, discount_applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		usage.ID,
		usage.CampaignID,
		usage.UserID,
		usage.OrderID,
		usage.DiscountApplied,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record campaign usage: %w", err)
	}

	refresh := `
		UPDATE campaigns
		SET unique_users = (
			SELECT count(DISTINCT user_id)
			FROM campaign_usages
			WHERE campaign_id = $1 AND user_id <> ''
		)
		WHERE id = $1`

	if _, err := r.db.Exec(ctx, refresh, usage.CampaignID); err != nil {
		return fmt.Errorf("refresh unique user count: %w", err)
	}

	return nil
}

// CountUserUsage returns how many times the user has consumed the campaign.
func (r *CampaignRepository) CountUserUsage(ctx context.Context, campaignID, userID string) (int64, error) {
	query := `SELECT count(*) FROM campaign_usages WHERE campaign_id = $1 AND user_id = $2`

	var count int64
	if err := r.db.QueryRow(ctx, query, campaignID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count user usage: %w", err)
	}

	return count, nil
}

func marshalCampaignConfigs(c *domain.Campaign) (discount, conditions, audience []byte, err error) {
	discount, err = json.Marshal(c.DiscountConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal discount_config: %w", err)
	}
	conditions, err = json.Marshal(c.UsageConditions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal usage_conditions: %w", err)
	}
	audience, err = json.Marshal(c.TargetAudience)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal target_audience: %w", err)
	}
	return discount, conditions, audience, nil
}

func unmarshalCampaignConfigs(c *domain.Campaign, discountJSON, conditionsJSON, audienceJSON []byte) error {
	if discountJSON != nil {
		if err := json.Unmarshal(discountJSON, &c.DiscountConfig); err != nil {
			return fmt.Errorf("unmarshal discount_config: %w", err)
		}
	}
	if conditionsJSON != nil {
		if err := json.Unmarshal(conditionsJSON, &c.UsageConditions); err != nil {
			return fmt.Errorf("unmarshal usage_conditions: %w", err)
		}
	}
	if audienceJSON != nil {
		if err := json.Unmarshal(audienceJSON, &c.TargetAudience); err != nil {
			return fmt.Errorf("unmarshal target_audience: %w", err)
		}
	}
	return nil
}

// scanCampaign reads a single campaign from a QueryRow result.
func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		c              domain.Campaign
		discountJSON   []byte
		conditionsJSON []byte
		audienceJSON   []byte
	)

	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Status,
		&discountJSON,
		&conditionsJSON,
		&audienceJSON,
		&c.StartDate,
		&c.EndDate,
		&c.Priority,
		&c.IsStackable,
		&c.Usage.TotalUsed,
		&c.Usage.TotalSavings,
		&c.Usage.UniqueUsers,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}

	if err := unmarshalCampaignConfigs(&c, discountJSON, conditionsJSON, audienceJSON); err != nil {
		return nil, err
	}

	return &c, nil
}

// scanCampaignRow reads one campaign from a multi-row result set.
func scanCampaignRow(rows pgx.Rows) (*domain.Campaign, error) {
	var (
		c              domain.Campaign
		discountJSON   []byte
		conditionsJSON []byte
		audienceJSON   []byte
	)

	if err := rows.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Status,
		&discountJSON,
		&conditionsJSON,
		&audienceJSON,
		&c.StartDate,
		&c.EndDate,
		&c.Priority,
		&c.IsStackable,
		&c.Usage.TotalUsed,
		&c.Usage.TotalSavings,
		&c.Usage.UniqueUsers,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan campaign row: %w", err)
	}

	if err := unmarshalCampaignConfigs(&c, discountJSON, conditionsJSON, audienceJSON); err != nil {
		return nil, err
	}

	return &c, nil
}

// scanCampaignRowWithCount additionally reads the windowed total_count column.
func scanCampaignRowWithCount(rows pgx.Rows, totalCount *int) (*domain.Campaign, error) {
	var (
		c              domain.Campaign
		discountJSON   []byte
		conditionsJSON []byte
		audienceJSON   []byte
	)

	if err := rows.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Status,
		&discountJSON,
		&conditionsJSON,
		&audienceJSON,
		&c.StartDate,
		&c.EndDate,
		&c.Priority,
		&c.IsStackable,
		&c.Usage.TotalUsed,
		&c.Usage.TotalSavings,
		&c.Usage.UniqueUsers,
		&c.CreatedAt,
		&c.UpdatedAt,
		totalCount,
	); err != nil {
		return nil, fmt.Errorf("scan campaign row: %w", err)
	}

	if err := unmarshalCampaignConfigs(&c, discountJSON, conditionsJSON, audienceJSON); err != nil {
		return nil, err
	}

	return &c, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
