package spendsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/business"
	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/pkg/metaads"
)

var (
	ErrCredentialMissing = errors.New("ad platform credential missing")
	ErrCredentialLookup  = errors.New("ad platform credential lookup failed")
	ErrUpstreamFetch     = errors.New("ad platform insights fetch failed")
)

const (
	CodeCredentialMissing = business.CodeConnectionNotFound
	CodeCredentialLookup  = "META_CONNECTION_LOOKUP_FAILED"
	CodeUpstreamFetch     = "META_INSIGHTS_FETCH_FAILED"
)

// Code maps collector errors to their stable string codes.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrCredentialMissing):
		return CodeCredentialMissing
	case errors.Is(err, ErrCredentialLookup):
		return CodeCredentialLookup
	case errors.Is(err, ErrUpstreamFetch):
		return CodeUpstreamFetch
	default:
		return ""
	}
}

// Insights is the authoritative spend reading for an ad.
type Insights struct {
	Spend  decimal.Decimal `json:"spend"`
	Clicks int64           `json:"clicks"`
}

type CredentialStore interface {
	MetaConnection(ctx context.Context, businessID uuid.UUID) (*business.MetaConnection, error)
}

type AdPlatform interface {
	GetAdInsights(ctx context.Context, adID, token string) (metaads.Insights, error)
}

type SpendWriter interface {
	UpdateSpend(ctx context.Context, id uuid.UUID, spend decimal.Decimal, clicks int64) (*livead.LiveAd, error)
}

// Collector reads spend from the ad platform using the owning business's credential.
type Collector struct {
	credentials CredentialStore
	platform    AdPlatform
	ads         SpendWriter
}

func NewCollector(credentials CredentialStore, platform AdPlatform, ads SpendWriter) *Collector {
	return &Collector{credentials: credentials, platform: platform, ads: ads}
}

// Token resolves the business credential for ad-platform calls.
func (c *Collector) Token(ctx context.Context, ad *livead.LiveAd) (string, error) {
	if !ad.BusinessID.Valid {
		return "", fmt.Errorf("%w: live ad %s has no business", ErrCredentialMissing, ad.ID)
	}
	conn, err := c.credentials.MetaConnection(ctx, ad.BusinessID.UUID)
	if errors.Is(err, business.ErrConnectionNotFound) {
		return "", fmt.Errorf("%w: business %s", ErrCredentialMissing, ad.BusinessID.UUID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: business %s: %v", ErrCredentialLookup, ad.BusinessID.UUID, err)
	}
	return conn.AccessToken, nil
}

// Fetch returns the platform's current spend for the ad. It writes nothing.
func (c *Collector) Fetch(ctx context.Context, ad *livead.LiveAd) (Insights, error) {
	if ad.MetaAdID == "" {
		return Insights{}, fmt.Errorf("%w: live ad %s has no platform ad id", ErrUpstreamFetch, ad.ID)
	}
	token, err := c.Token(ctx, ad)
	if err != nil {
		return Insights{}, err
	}

	res, err := c.platform.GetAdInsights(ctx, ad.MetaAdID, token)
	if err != nil {
		return Insights{}, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	if res.Spend.IsNegative() {
		return Insights{}, fmt.Errorf("%w: negative spend %s", ErrUpstreamFetch, res.Spend)
	}
	return Insights{Spend: res.Spend, Clicks: res.Clicks}, nil
}

// Sync fetches and persists the reading, returning the updated ad. Stored
// spend never decreases even if the platform reports less.
func (c *Collector) Sync(ctx context.Context, ad *livead.LiveAd) (*livead.LiveAd, error) {
	ins, err := c.Fetch(ctx, ad)
	if err != nil {
		return nil, err
	}
	return c.ads.UpdateSpend(ctx, ad.ID, ins.Spend, ins.Clicks)
}
