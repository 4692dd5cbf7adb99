package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/event"
	"github.com/utafrali/promotion-service/internal/repository"
	apperrors "github.com/utafrali/promotion-service/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CampaignService manages the campaign lifecycle.
type CampaignService struct {
	repo     repository.CampaignRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewCampaignService creates a new campaign service.
func NewCampaignService(repo repository.CampaignRepository, producer *event.Producer, logger *slog.Logger) *CampaignService {
	return &CampaignService{
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// CreateCampaignInput contains the data needed to create a campaign.
type CreateCampaignInput struct {
	Name            string
	Description     string
	DiscountConfig  domain.DiscountConfig
	UsageConditions domain.UsageConditions
	TargetAudience  domain.TargetAudience
	StartDate       time.Time
	EndDate         time.Time
	Priority        int
	IsStackable     bool
}

// UpdateCampaignInput contains the fields that can be updated on a campaign.
// Nil fields are left unchanged.
type UpdateCampaignInput struct {
	Name            *string
	Description     *string
	DiscountConfig  *domain.DiscountConfig
	UsageConditions *domain.UsageConditions
	TargetAudience  *domain.TargetAudience
	StartDate       *time.Time
	EndDate         *time.Time
	Priority        *int
	IsStackable     *bool
}

// ListCampaignsInput contains filter and pagination parameters.
type ListCampaignsInput struct {
	Status       *string
	DiscountKind *string
	Page         int
	PerPage      int
}

// CreateCampaign creates a new campaign in draft status.
func (s *CampaignService) CreateCampaign(ctx context.Context, input *CreateCampaignInput) (*domain.Campaign, error) {
	now := time.Now().UTC()

	campaign := &domain.Campaign{
		ID:              uuid.New().String(),
		Name:            input.Name,
		Description:     input.Description,
		Status:          domain.CampaignStatusDraft,
		DiscountConfig:  input.DiscountConfig,
		UsageConditions: input.UsageConditions,
		TargetAudience:  input.TargetAudience,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		Priority:        input.Priority,
		IsStackable:     input.IsStackable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if campaign.TargetAudience.Kind == "" {
		campaign.TargetAudience.Kind = domain.AudienceAllUsers
	}

	if err := campaign.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	// Do not fail the operation if event publishing fails.
	if err := s.producer.PublishCampaignCreated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign_created event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("name", campaign.Name),
		slog.String("discount_kind", campaign.DiscountConfig.Kind),
	)

	return campaign, nil
}

// GetCampaign retrieves a campaign by id.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("campaign id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// ListCampaigns returns campaigns matching the filter with the total count.
func (s *CampaignService) ListCampaigns(ctx context.Context, input ListCampaignsInput) ([]domain.Campaign, int, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	perPage := input.PerPage
	if perPage < 1 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	if input.Status != nil && !domain.IsValidStatus(*input.Status) {
		return nil, 0, apperrors.Validation("status", fmt.Sprintf("unknown status %q", *input.Status))
	}

	filter := repository.CampaignFilter{
		Status:       input.Status,
		DiscountKind: input.DiscountKind,
		Page:         page,
		PerPage:      perPage,
	}

	return s.repo.List(ctx, filter)
}

// UpdateCampaign applies a partial update to a campaign. Campaigns in a
// terminal state cannot be updated.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, input *UpdateCampaignInput) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if campaign.IsTerminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot update campaign in status %s", campaign.Status))
	}

	if input.Name != nil {
		campaign.Name = *input.Name
	}
	if input.Description != nil {
		campaign.Description = *input.Description
	}
	if input.DiscountConfig != nil {
		campaign.DiscountConfig = *input.DiscountConfig
	}
	if input.UsageConditions != nil {
		campaign.UsageConditions = *input.UsageConditions
	}
	if input.TargetAudience != nil {
		campaign.TargetAudience = *input.TargetAudience
	}
	if input.StartDate != nil {
		campaign.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		campaign.EndDate = *input.EndDate
	}
	if input.Priority != nil {
		campaign.Priority = *input.Priority
	}
	if input.IsStackable != nil {
		campaign.IsStackable = *input.IsStackable
	}

	if err := campaign.Validate(); err != nil {
		return nil, err
	}

	campaign.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	// Do not fail the operation if event publishing fails.
	if err := s.producer.PublishCampaignUpdated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign_updated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign updated",
		slog.String("campaign_id", campaign.ID),
	)

	return campaign, nil
}

// DeleteCampaign removes a campaign. Active campaigns must be deactivated
// first.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if campaign.Status == domain.CampaignStatusActive {
		return apperrors.Conflict("cannot delete an active campaign")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}

	s.logger.InfoContext(ctx, "campaign deleted",
		slog.String("campaign_id", id),
	)

	return nil
}

// ActivateCampaign transitions a campaign to active (or scheduled when its
// start date is still in the future). Activating a non-stackable campaign
// that would run alongside another non-stackable campaign targeting an
// overlapping audience is rejected, since only one of them could ever apply.
func (s *CampaignService) ActivateCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if err := campaign.Activate(now); err != nil {
		return nil, err
	}

	if !campaign.IsStackable {
		active, err := s.repo.ListActive(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("list active campaigns: %w", err)
		}
		for i := range active {
			other := &active[i]
			if other.ID == campaign.ID || other.IsStackable {
				continue
			}
			if datesOverlap(campaign, other) && audiencesOverlap(&campaign.TargetAudience, &other.TargetAudience) {
				return nil, apperrors.Conflict(fmt.Sprintf(
					"non-stackable campaign conflicts with active campaign %s", other.ID))
			}
		}
	}

	campaign.UpdatedAt = now

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("activate campaign: %w", err)
	}

	// Do not fail the operation if event publishing fails.
	if err := s.producer.PublishCampaignActivated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign_activated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign activated",
		slog.String("campaign_id", campaign.ID),
		slog.String("status", campaign.Status),
	)

	return campaign, nil
}

// DeactivateCampaign pauses an active or scheduled campaign.
func (s *CampaignService) DeactivateCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.transition(ctx, id, "deactivated", (*domain.Campaign).Deactivate)
}

// EndCampaign moves a campaign into the terminal ended state.
func (s *CampaignService) EndCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.transition(ctx, id, "ended", (*domain.Campaign).End)
}

// CancelCampaign moves a campaign into the terminal cancelled state.
func (s *CampaignService) CancelCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.transition(ctx, id, "cancelled", (*domain.Campaign).Cancel)
}

func (s *CampaignService) transition(ctx context.Context, id, verb string, apply func(*domain.Campaign) error) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := apply(campaign); err != nil {
		return nil, err
	}

	campaign.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("%s campaign: %w", verb, err)
	}

	// Do not fail the operation if event publishing fails.
	if err := s.producer.PublishCampaignUpdated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign_updated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign "+verb,
		slog.String("campaign_id", campaign.ID),
		slog.String("status", campaign.Status),
	)

	return campaign, nil
}

func datesOverlap(a, b *domain.Campaign) bool {
	return !a.StartDate.After(b.EndDate) && !b.StartDate.After(a.EndDate)
}

// audiencesOverlap reports whether two audiences could admit the same user.
// Cohort audiences (first-time, returning, VIP) are mutually exclusive; id
// based audiences overlap only on a shared id. Mixed cohort and id based
// audiences are treated as overlapping since membership cannot be ruled out.
func audiencesOverlap(a, b *domain.TargetAudience) bool {
	if a.Kind == domain.AudienceAllUsers || b.Kind == domain.AudienceAllUsers {
		return true
	}

	cohort := func(kind string) bool {
		switch kind {
		case domain.AudienceFirstTimeBuyers, domain.AudienceReturningCustomers, domain.AudienceVipMembers:
			return true
		}
		return false
	}

	if cohort(a.Kind) && cohort(b.Kind) {
		return a.Kind == b.Kind
	}

	if a.Kind == domain.AudienceSpecificUsers && b.Kind == domain.AudienceSpecificUsers {
		return intersects(a.SpecificUsers.UserIDs, b.SpecificUsers.UserIDs)
	}
	if a.Kind == domain.AudienceUserGroups && b.Kind == domain.AudienceUserGroups {
		return intersects(a.UserGroups.GroupIDs, b.UserGroups.GroupIDs)
	}

	return true
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
