package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const campaignsTable = "campaigns"

var campaignStruct = database.NewStruct(new(models.Campaign))

// CampaignRepository handles the campaign records mutated by platform webhooks
type CampaignRepository struct {
	*Repository
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db database.DB, logger ectologger.Logger) *CampaignRepository {
	return &CampaignRepository{
		Repository: NewRepository(db, logger),
	}
}

// Upsert inserts the campaign or overwrites it when (tenant, platform, account, campaign) exists
func (r *CampaignRepository) Upsert(ctx context.Context, campaign *models.Campaign) error {
	ctx, span := tracing.StartSpan(ctx, "CampaignRepository.Upsert")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	campaign.TenantID = tenantID
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	if campaign.Status == "" {
		campaign.Status = models.CampaignStatusActive
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(campaignsTable).
		Cols("id", "tenant_id", "platform", "account_id", "campaign_id", "name", "status", "budget",
			"objective", "created_at", "updated_at").
		Values(campaign.ID, campaign.TenantID, campaign.Platform, campaign.AccountID, campaign.CampaignID,
			campaign.Name, campaign.Status, campaign.Budget, campaign.Objective, database.Now(), database.Now())
	ub := ib.OnConflictUpdate("tenant_id", "platform", "account_id", "campaign_id")
	ub.Set(
		ub.Assign("name", database.Excluded("name")),
		ub.Assign("status", database.Excluded("status")),
		ub.Assign("budget", database.Excluded("budget")),
		ub.Assign("objective", database.Excluded("objective")),
		ub.Assign("updated_at", database.Now()),
	)
	ib.Returning("id", "created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)
	if err != nil {
		tracing.Fail(span, err, "upsert campaign")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"campaign_id": campaign.CampaignID,
		}).Error("failed to upsert campaign")
		return fmt.Errorf("%w: upsert campaign %s: %v", models.ErrStorageWriteFailure, campaign.CampaignID, err)
	}
	return nil
}

// Update applies patch to an existing campaign
func (r *CampaignRepository) Update(ctx context.Context, platform models.Platform, accountID, campaignID string, patch models.CampaignPatch) error {
	ctx, span := tracing.StartSpan(ctx, "CampaignRepository.Update")
	defer span.End()

	assign := func(ub *database.UpdateBuilder) []string {
		set := []string{ub.Assign("updated_at", database.Now())}
		if patch.Name != nil {
			set = append(set, ub.Assign("name", *patch.Name))
		}
		if patch.Status != nil {
			set = append(set, ub.Assign("status", *patch.Status))
		}
		if patch.Budget != nil {
			set = append(set, ub.Assign("budget", *patch.Budget))
		}
		if patch.Objective != nil {
			set = append(set, ub.Assign("objective", *patch.Objective))
		}
		return set
	}
	return r.update(ctx, span, platform, accountID, campaignID, assign)
}

// SetStatus flips the status flag. Campaigns are never physically deleted.
func (r *CampaignRepository) SetStatus(ctx context.Context, platform models.Platform, accountID, campaignID string, status models.CampaignStatus) error {
	ctx, span := tracing.StartSpan(ctx, "CampaignRepository.SetStatus")
	defer span.End()

	return r.update(ctx, span, platform, accountID, campaignID, func(ub *database.UpdateBuilder) []string {
		return []string{ub.Assign("status", status), ub.Assign("updated_at", database.Now())}
	})
}

// Get retrieves a campaign by its platform identifier
func (r *CampaignRepository) Get(ctx context.Context, platform models.Platform, accountID, campaignID string) (*models.Campaign, error) {
	ctx, span := tracing.StartSpan(ctx, "CampaignRepository.Get")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := campaignStruct.SelectFrom(campaignsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("platform", platform),
		sb.Equal("account_id", accountID),
		sb.Equal("campaign_id", campaignID),
	)

	query, args := sb.Build()
	var campaign models.Campaign
	err = r.DB().GetContext(ctx, &campaign, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrCampaignNotFound, campaignID)
	}
	if err != nil {
		tracing.Fail(span, err, "get campaign")
		return nil, err
	}
	return &campaign, nil
}

func (r *CampaignRepository) update(ctx context.Context, span trace.Span, platform models.Platform, accountID, campaignID string, assign func(ub *database.UpdateBuilder) []string) error {
	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(campaignsTable)
	ub.Set(assign(ub)...)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("platform", platform),
		ub.Equal("account_id", accountID),
		ub.Equal("campaign_id", campaignID),
	)

	query, args := ub.Build()
	if err := r.exec(ctx, models.ErrCampaignNotFound, "update campaign "+campaignID, query, args...); err != nil {
		tracing.Fail(span, err, "update campaign")
		return err
	}
	return nil
}
