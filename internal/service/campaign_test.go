package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/event"
	"github.com/utafrali/promotion-service/internal/repository"
	apperrors "github.com/utafrali/promotion-service/pkg/errors"
	pkgkafka "github.com/utafrali/promotion-service/pkg/kafka"
)

// --- Mocks ---

type mockCampaignRepository struct {
	mock.Mock
}

func (m *mockCampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockCampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Campaign), args.Int(1), args.Error(2)
}

func (m *mockCampaignRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockCampaignRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCampaignRepository) CommitUsage(ctx context.Context, campaignID string, discount int64) error {
	args := m.Called(ctx, campaignID, discount)
	return args.Error(0)
}

func (m *mockCampaignRepository) RecordUsage(ctx context.Context, usage *repository.CampaignUsage) error {
	args := m.Called(ctx, usage)
	return args.Error(0)
}

func (m *mockCampaignRepository) CountUserUsage(ctx context.Context, campaignID, userID string) (int64, error) {
	args := m.Called(ctx, campaignID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestProducer() *event.Producer {
	logger := newTestLogger()
	// Kafka producer that fails silently in tests (no real broker).
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

func newTestCampaignService(repo *mockCampaignRepository) *CampaignService {
	return NewCampaignService(repo, newTestProducer(), newTestLogger())
}

func strPtr(s string) *string {
	return &s
}

func int64Ptr(i int64) *int64 {
	return &i
}

func intPtr(i int) *int {
	return &i
}

var (
	futureStart = time.Now().UTC().Add(24 * time.Hour)
	futureEnd   = time.Now().UTC().Add(48 * time.Hour)
	activeStart = time.Now().UTC().Add(-24 * time.Hour)
	activeEnd   = time.Now().UTC().Add(24 * time.Hour)
	pastStart   = time.Now().UTC().Add(-48 * time.Hour)
	pastEnd     = time.Now().UTC().Add(-24 * time.Hour)
)

func percentageInput(name string) *CreateCampaignInput {
	return &CreateCampaignInput{
		Name:        name,
		Description: "20% off everything",
		DiscountConfig: domain.DiscountConfig{
			Kind:       domain.DiscountKindPercentage,
			Percentage: &domain.PercentageDiscount{Percentage: 20},
		},
		TargetAudience: domain.TargetAudience{Kind: domain.AudienceAllUsers},
		StartDate:      futureStart,
		EndDate:        futureEnd,
		Priority:       5,
		IsStackable:    true,
	}
}

func storedCampaign(id, status string) *domain.Campaign {
	now := time.Now().UTC()
	return &domain.Campaign{
		ID:     id,
		Name:   "Summer Sale",
		Status: status,
		DiscountConfig: domain.DiscountConfig{
			Kind:       domain.DiscountKindPercentage,
			Percentage: &domain.PercentageDiscount{Percentage: 20},
		},
		TargetAudience: domain.TargetAudience{Kind: domain.AudienceAllUsers},
		StartDate:      activeStart,
		EndDate:        activeEnd,
		Priority:       5,
		IsStackable:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// --- Tests ---

func TestCreateCampaign_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.CreateCampaign(ctx, percentageInput("Summer Sale"))

	require.NoError(t, err)
	assert.NotEmpty(t, campaign.ID)
	assert.Equal(t, "Summer Sale", campaign.Name)
	assert.Equal(t, domain.CampaignStatusDraft, campaign.Status)
	assert.Equal(t, domain.DiscountKindPercentage, campaign.DiscountConfig.Kind)
	assert.Equal(t, 5, campaign.Priority)
	assert.True(t, campaign.IsStackable)
	assert.Zero(t, campaign.Usage.TotalUsed)
	assert.NotZero(t, campaign.CreatedAt)
	assert.NotZero(t, campaign.UpdatedAt)

	repo.AssertExpectations(t)
}

func TestCreateCampaign_EmptyName(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	campaign, err := svc.CreateCampaign(context.Background(), percentageInput(""))

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateCampaign_PercentageOutOfRange(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	input := percentageInput("Bad Campaign")
	input.DiscountConfig.Percentage.Percentage = 150

	campaign, err := svc.CreateCampaign(context.Background(), input)

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateCampaign_EndDateBeforeStartDate(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	input := percentageInput("Bad Campaign")
	input.StartDate = futureEnd
	input.EndDate = futureStart

	campaign, err := svc.CreateCampaign(context.Background(), input)

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateCampaign_MissingDiscountPayload(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	input := percentageInput("Bad Campaign")
	input.DiscountConfig = domain.DiscountConfig{Kind: domain.DiscountKindFixedAmount}

	campaign, err := svc.CreateCampaign(context.Background(), input)

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateCampaign_DefaultsAudienceToAllUsers(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	input := percentageInput("Summer Sale")
	input.TargetAudience = domain.TargetAudience{}

	campaign, err := svc.CreateCampaign(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, domain.AudienceAllUsers, campaign.TargetAudience.Kind)
}

func TestGetCampaign_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusActive)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)

	campaign, err := svc.GetCampaign(ctx, "camp-001")

	require.NoError(t, err)
	assert.Equal(t, stored, campaign)
}

func TestGetCampaign_NotFound(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	repo.On("GetByID", ctx, "missing").Return(nil, apperrors.NotFound("campaign", "missing"))

	campaign, err := svc.GetCampaign(ctx, "missing")

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetCampaign_EmptyID(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	campaign, err := svc.GetCampaign(context.Background(), "")

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestListCampaigns_ClampsPagination(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	expected := repository.CampaignFilter{Page: 1, PerPage: 100}
	repo.On("List", ctx, expected).Return([]domain.Campaign{}, 0, nil)

	_, _, err := svc.ListCampaigns(ctx, ListCampaignsInput{Page: -3, PerPage: 5000})

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestListCampaigns_DefaultsPagination(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	expected := repository.CampaignFilter{Page: 1, PerPage: 20}
	repo.On("List", ctx, expected).Return([]domain.Campaign{}, 0, nil)

	_, _, err := svc.ListCampaigns(ctx, ListCampaignsInput{})

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestListCampaigns_InvalidStatus(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	_, _, err := svc.ListCampaigns(context.Background(), ListCampaignsInput{Status: strPtr("bogus")})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUpdateCampaign_PartialUpdate(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusDraft)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.UpdateCampaign(ctx, "camp-001", &UpdateCampaignInput{
		Name:     strPtr("Winter Sale"),
		Priority: intPtr(9),
	})

	require.NoError(t, err)
	assert.Equal(t, "Winter Sale", campaign.Name)
	assert.Equal(t, 9, campaign.Priority)
	assert.Equal(t, domain.DiscountKindPercentage, campaign.DiscountConfig.Kind)

	repo.AssertExpectations(t)
}

func TestUpdateCampaign_TerminalRejected(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusEnded)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)

	campaign, err := svc.UpdateCampaign(ctx, "camp-001", &UpdateCampaignInput{Name: strPtr("Too Late")})

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestUpdateCampaign_InvalidResult(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusDraft)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)

	campaign, err := svc.UpdateCampaign(ctx, "camp-001", &UpdateCampaignInput{Name: strPtr("")})

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDeleteCampaign_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusDraft)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("Delete", ctx, "camp-001").Return(nil)

	err := svc.DeleteCampaign(ctx, "camp-001")

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestDeleteCampaign_ActiveRejected(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusActive)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)

	err := svc.DeleteCampaign(ctx, "camp-001")

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	repo.AssertNotCalled(t, "Delete", ctx, "camp-001")
}

func TestActivateCampaign_Immediate(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusDraft)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.ActivateCampaign(ctx, "camp-001")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusActive, campaign.Status)

	repo.AssertExpectations(t)
}

func TestActivateCampaign_FutureStartSchedules(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusDraft)
	stored.StartDate = futureStart
	stored.EndDate = futureEnd
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.ActivateCampaign(ctx, "camp-001")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusScheduled, campaign.Status)
}

func TestActivateCampaign_AlreadyEnded(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusPaused)
	stored.StartDate = pastStart
	stored.EndDate = pastEnd
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)

	campaign, err := svc.ActivateCampaign(ctx, "camp-001")

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestActivateCampaign_NonStackableOverlapRejected(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusDraft)
	stored.IsStackable = false

	running := *storedCampaign("camp-002", domain.CampaignStatusActive)
	running.IsStackable = false

	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("ListActive", ctx, mock.AnythingOfType("time.Time")).Return([]domain.Campaign{running}, nil)

	campaign, err := svc.ActivateCampaign(ctx, "camp-001")

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	repo.AssertNotCalled(t, "Update", ctx, mock.Anything)
}

func TestActivateCampaign_NonStackableDisjointAudiences(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusDraft)
	stored.IsStackable = false
	stored.TargetAudience = domain.TargetAudience{Kind: domain.AudienceVipMembers}

	running := *storedCampaign("camp-002", domain.CampaignStatusActive)
	running.IsStackable = false
	running.TargetAudience = domain.TargetAudience{Kind: domain.AudienceFirstTimeBuyers}

	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("ListActive", ctx, mock.AnythingOfType("time.Time")).Return([]domain.Campaign{running}, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.ActivateCampaign(ctx, "camp-001")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusActive, campaign.Status)
}

func TestDeactivateCampaign_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusActive)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.DeactivateCampaign(ctx, "camp-001")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusPaused, campaign.Status)
}

func TestDeactivateCampaign_DraftRejected(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusDraft)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)

	campaign, err := svc.DeactivateCampaign(ctx, "camp-001")

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestEndCampaign_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusActive)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.EndCampaign(ctx, "camp-001")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusEnded, campaign.Status)
}

func TestCancelCampaign_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusPaused)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.CancelCampaign(ctx, "camp-001")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusCancelled, campaign.Status)
}

func TestCancelCampaign_TerminalRejected(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)
	ctx := context.Background()

	stored := storedCampaign("camp-001", domain.CampaignStatusCancelled)
	repo.On("GetByID", ctx, "camp-001").Return(stored, nil)

	campaign, err := svc.CancelCampaign(ctx, "camp-001")

	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}
