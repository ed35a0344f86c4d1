package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/domain/reconcile"
	"github.com/promohub/promohub-api/internal/domain/wallet"
	"github.com/promohub/promohub-api/internal/pkg/stripeconnect"
)

// memDB is an in-memory stand-in for the live_ads and ledger tables with the
// same conditional-update semantics as the SQL repositories.
type memDB struct {
	mu         sync.Mutex
	ads        map[uuid.UUID]*livead.LiveAd
	topUpsNet  map[string]decimal.Decimal
	deductions []wallet.Deduction
	failInsert bool
	failRevert bool
	balanceErr error
	claimCalls int
}

func newMemDB() *memDB {
	return &memDB{ads: map[uuid.UUID]*livead.LiveAd{}, topUpsNet: map[string]decimal.Decimal{}}
}

func (m *memDB) addAd(email, spend, transferred string) *livead.LiveAd {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad := &livead.LiveAd{
		ID:               uuid.New(),
		AffiliateEmail:   email,
		BusinessID:       uuid.NullUUID{UUID: uuid.New(), Valid: true},
		OfferID:          uuid.NullUUID{UUID: uuid.New(), Valid: true},
		MetaAdID:         "meta-" + email,
		Spend:            decimal.RequireFromString(spend),
		SpendTransferred: decimal.RequireFromString(transferred),
		Status:           livead.StatusActive,
	}
	m.ads[ad.ID] = ad
	return ad
}

func (m *memDB) setSpend(id uuid.UUID, spend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ads[id].Spend = decimal.RequireFromString(spend)
}

func (m *memDB) ad(id uuid.UUID) livead.LiveAd {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.ads[id]
}

func (m *memDB) GetByID(_ context.Context, id uuid.UUID) (*livead.LiveAd, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad, ok := m.ads[id]
	if !ok {
		return nil, livead.ErrNotFound
	}
	cp := *ad
	return &cp, nil
}

func (m *memDB) ClaimTransfer(_ context.Context, id uuid.UUID, expected, next decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimCalls++
	ad := m.ads[id]
	if !ad.SpendTransferred.Equal(expected) || next.GreaterThan(ad.Spend) {
		return false, nil
	}
	ad.SpendTransferred = next
	return true, nil
}

func (m *memDB) RevertClaim(_ context.Context, id uuid.UUID, claimed, original decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRevert {
		return false, errors.New("connection lost")
	}
	ad := m.ads[id]
	if !ad.SpendTransferred.Equal(claimed) {
		return false, nil
	}
	ad.SpendTransferred = original
	return true, nil
}

func (m *memDB) AvailableBalance(_ context.Context, email string) (wallet.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceErr != nil {
		return wallet.Balance{}, m.balanceErr
	}
	total := decimal.Zero
	for _, d := range m.deductions {
		if d.AffiliateEmail == email {
			total = total.Add(d.Amount)
		}
	}
	top := m.topUpsNet[email]
	return wallet.Balance{AffiliateEmail: email, TotalTopUpsNet: top, TotalDeductions: total, Available: top.Sub(total)}, nil
}

func (m *memDB) AppendDeduction(_ context.Context, d *wallet.Deduction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return errors.New("insert rejected")
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.deductions = append(m.deductions, *d)
	return nil
}

func (m *memDB) deductionsFor(id uuid.UUID) []wallet.Deduction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []wallet.Deduction
	for _, d := range m.deductions {
		if d.LiveAdID.Valid && d.LiveAdID.UUID == id {
			out = append(out, d)
		}
	}
	return out
}

type accountsStub struct {
	account string
	err     error
}

func (a accountsStub) PayoutAccount(context.Context, uuid.UUID) (string, error) {
	return a.account, a.err
}

type transferStub struct {
	mu   sync.Mutex
	reqs []stripeconnect.TransferRequest
	err  error
}

func (t *transferStub) CreateTransfer(_ context.Context, req stripeconnect.TransferRequest) (*stripeconnect.Transfer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reqs = append(t.reqs, req)
	if t.err != nil {
		return nil, t.err
	}
	return &stripeconnect.Transfer{ID: "tr_" + req.IdempotencyKey, Amount: req.Amount, Currency: req.Currency, Destination: req.Destination}, nil
}

type reconStub struct {
	mu    sync.Mutex
	kinds []reconcile.Kind
}

func (r *reconStub) Record(_ context.Context, _ uuid.UUID, kind reconcile.Kind, _, _ decimal.Decimal, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}
