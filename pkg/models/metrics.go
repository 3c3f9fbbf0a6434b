package models

import (
	"time"

	"github.com/google/uuid"
)

// GA4DailyMetric is one day of property-level engagement data
type GA4DailyMetric struct {
	TenantID           uuid.UUID `db:"tenant_id" json:"tenant_id"`
	PropertyID         string    `db:"property_id" json:"property_id"`
	Date               time.Time `db:"date" json:"date"`
	Sessions           int64     `db:"sessions" json:"sessions"`
	Users              int64     `db:"users" json:"users"`
	NewUsers           int64     `db:"new_users" json:"new_users"`
	PageViews          int64     `db:"page_views" json:"page_views"`
	EngagedSessions    int64     `db:"engaged_sessions" json:"engaged_sessions"`
	BounceRate         float64   `db:"bounce_rate" json:"bounce_rate"`
	AvgSessionDuration float64   `db:"avg_session_duration" json:"avg_session_duration"`
	Conversions        float64   `db:"conversions" json:"conversions"`
	Revenue            float64   `db:"revenue" json:"revenue"`
}

// GoogleAdsCampaignMetric is one day of KPIs for a Google Ads campaign
type GoogleAdsCampaignMetric struct {
	TenantID     uuid.UUID `db:"tenant_id" json:"tenant_id"`
	CustomerID   string    `db:"customer_id" json:"customer_id"`
	CampaignID   string    `db:"campaign_id" json:"campaign_id"`
	CampaignName string    `db:"campaign_name" json:"campaign_name"`
	Date         time.Time `db:"date" json:"date"`
	Impressions  int64     `db:"impressions" json:"impressions"`
	Clicks       int64     `db:"clicks" json:"clicks"`
	Cost         float64   `db:"cost" json:"cost"`
	Conversions  float64   `db:"conversions" json:"conversions"`
	CTR          float64   `db:"ctr" json:"ctr"`
	CPC          float64   `db:"cpc" json:"cpc"`
}

// SearchConsolePageMetric is one day of search performance for a page
type SearchConsolePageMetric struct {
	TenantID    uuid.UUID `db:"tenant_id" json:"tenant_id"`
	SiteURL     string    `db:"site_url" json:"site_url"`
	Page        string    `db:"page" json:"page"`
	Date        time.Time `db:"date" json:"date"`
	Clicks      int64     `db:"clicks" json:"clicks"`
	Impressions int64     `db:"impressions" json:"impressions"`
	CTR         float64   `db:"ctr" json:"ctr"`
	Position    float64   `db:"position" json:"position"`
}

// MetaCampaignMetric is one day of insights for a Meta ad campaign
type MetaCampaignMetric struct {
	TenantID     uuid.UUID `db:"tenant_id" json:"tenant_id"`
	AdAccountID  string    `db:"ad_account_id" json:"ad_account_id"`
	CampaignID   string    `db:"campaign_id" json:"campaign_id"`
	CampaignName string    `db:"campaign_name" json:"campaign_name"`
	Date         time.Time `db:"date" json:"date"`
	Impressions  int64     `db:"impressions" json:"impressions"`
	Clicks       int64     `db:"clicks" json:"clicks"`
	Reach        int64     `db:"reach" json:"reach"`
	Spend        float64   `db:"spend" json:"spend"`
	Conversions  float64   `db:"conversions" json:"conversions"`
}
