package spendsync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/business"
	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/pkg/metaads"
)

type credStub struct {
	conn *business.MetaConnection
	err  error
}

func (s credStub) MetaConnection(context.Context, uuid.UUID) (*business.MetaConnection, error) {
	return s.conn, s.err
}

type platformStub struct {
	res      metaads.Insights
	err      error
	gotToken string
}

func (p *platformStub) GetAdInsights(_ context.Context, _, token string) (metaads.Insights, error) {
	p.gotToken = token
	return p.res, p.err
}

type writerStub struct {
	calls int
	spend decimal.Decimal
}

func (w *writerStub) UpdateSpend(_ context.Context, id uuid.UUID, spend decimal.Decimal, clicks int64) (*livead.LiveAd, error) {
	w.calls++
	w.spend = spend
	return &livead.LiveAd{ID: id, Spend: spend, Clicks: clicks}, nil
}

func testAd() *livead.LiveAd {
	return &livead.LiveAd{
		ID:         uuid.New(),
		BusinessID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		MetaAdID:   "120000",
	}
}

func TestFetchUsesBusinessCredential(t *testing.T) {
	platform := &platformStub{res: metaads.Insights{Spend: decimal.NewFromInt(30), Clicks: 9}}
	writer := &writerStub{}
	c := NewCollector(credStub{conn: &business.MetaConnection{AccessToken: "biz-token"}}, platform, writer)

	got, err := c.Fetch(context.Background(), testAd())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !got.Spend.Equal(decimal.NewFromInt(30)) || got.Clicks != 9 {
		t.Fatalf("unexpected insights %+v", got)
	}
	if platform.gotToken != "biz-token" {
		t.Fatalf("expected business token, got %q", platform.gotToken)
	}
	if writer.calls != 0 {
		t.Fatal("Fetch must not persist")
	}
}

func TestFetchCredentialMissing(t *testing.T) {
	c := NewCollector(credStub{err: business.ErrConnectionNotFound}, &platformStub{}, &writerStub{})
	_, err := c.Fetch(context.Background(), testAd())
	if !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing, got %v", err)
	}
	if Code(err) != "META_CONNECTION_NOT_FOUND" {
		t.Fatalf("unexpected code %q", Code(err))
	}

	ad := testAd()
	ad.BusinessID = uuid.NullUUID{}
	if _, err := c.Fetch(context.Background(), ad); !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing for ad without business, got %v", err)
	}
}

func TestTokenLookupFailureIsNotMissingCredential(t *testing.T) {
	c := NewCollector(credStub{err: errors.New("connection refused")}, &platformStub{}, &writerStub{})
	_, err := c.Token(context.Background(), testAd())
	if !errors.Is(err, ErrCredentialLookup) || errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialLookup only, got %v", err)
	}
	if Code(err) != CodeCredentialLookup {
		t.Fatalf("unexpected code %q", Code(err))
	}
}

func TestFetchUpstreamFailure(t *testing.T) {
	c := NewCollector(credStub{conn: &business.MetaConnection{AccessToken: "t"}}, &platformStub{err: errors.New("503")}, &writerStub{})
	_, err := c.Fetch(context.Background(), testAd())
	if !errors.Is(err, ErrUpstreamFetch) || Code(err) != CodeUpstreamFetch {
		t.Fatalf("expected upstream failure, got %v", err)
	}
}

func TestSyncPersists(t *testing.T) {
	writer := &writerStub{}
	c := NewCollector(credStub{conn: &business.MetaConnection{AccessToken: "t"}},
		&platformStub{res: metaads.Insights{Spend: decimal.RequireFromString("12.50")}}, writer)

	ad, err := c.Sync(context.Background(), testAd())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if writer.calls != 1 || !ad.Spend.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected persisted spend, got calls=%d spend=%s", writer.calls, ad.Spend)
	}
}
