package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/livead"
)

type adsStub struct {
	ads []livead.LiveAd
}

func (s adsStub) GetByID(_ context.Context, id uuid.UUID) (*livead.LiveAd, error) {
	for i := range s.ads {
		if s.ads[i].ID == id {
			return &s.ads[i], nil
		}
	}
	return nil, livead.ErrNotFound
}

func (s adsStub) ListAll(context.Context) ([]livead.LiveAd, error) {
	return s.ads, nil
}

type summerStub struct {
	sums map[uuid.UUID]decimal.Decimal
	fail map[uuid.UUID]bool
}

func (s summerStub) DeductedForLiveAd(_ context.Context, id uuid.UUID) (decimal.Decimal, error) {
	if s.fail[id] {
		return decimal.Zero, errors.New("read failed")
	}
	return s.sums[id], nil
}

// sequenceSummer returns the queued sums for an ad in order, repeating the last.
type sequenceSummer struct {
	mu   sync.Mutex
	sums map[uuid.UUID][]decimal.Decimal
}

func (s *sequenceSummer) DeductedForLiveAd(_ context.Context, id uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.sums[id]
	if len(queue) == 0 {
		return decimal.Zero, nil
	}
	v := queue[0]
	if len(queue) > 1 {
		s.sums[id] = queue[1:]
	}
	return v, nil
}

type eventStoreStub struct {
	events []Event
	err    error
}

func (s *eventStoreStub) Insert(_ context.Context, e *Event) error {
	if s.err != nil {
		return s.err
	}
	e.ID = uuid.New()
	s.events = append(s.events, *e)
	return nil
}

func (s *eventStoreStub) ListByLiveAd(_ context.Context, id uuid.UUID) ([]Event, error) {
	var out []Event
	for _, e := range s.events {
		if e.LiveAdID.UUID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAuditAllRecordsMismatches(t *testing.T) {
	good, bad, broken := uuid.New(), uuid.New(), uuid.New()
	ads := adsStub{ads: []livead.LiveAd{
		{ID: good, SpendTransferred: decimal.NewFromInt(30)},
		{ID: bad, SpendTransferred: decimal.NewFromInt(90)},
		{ID: broken, SpendTransferred: decimal.NewFromInt(5)},
	}}
	summer := summerStub{
		sums: map[uuid.UUID]decimal.Decimal{good: decimal.NewFromInt(30), bad: decimal.NewFromInt(30)},
		fail: map[uuid.UUID]bool{broken: true},
	}
	store := &eventStoreStub{}
	auditor := NewAuditor(ads, summer, NewRecorder(store))
	auditor.confirmDelay = 0

	report, err := auditor.AuditAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if report.Checked != 2 || report.Mismatched != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(store.events) != 1 || store.events[0].Kind != KindLedgerMismatch || store.events[0].LiveAdID.UUID != bad {
		t.Fatalf("expected one mismatch event for bad ad, got %+v", store.events)
	}
	if !store.events[0].Expected.Equal(decimal.NewFromInt(90)) || !store.events[0].Actual.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected expected/actual %s/%s", store.events[0].Expected, store.events[0].Actual)
	}
}

func TestAuditAllIgnoresSettlementInFlight(t *testing.T) {
	id := uuid.New()
	ads := adsStub{ads: []livead.LiveAd{{ID: id, SpendTransferred: decimal.NewFromInt(60)}}}
	// the claim moved the counter to 60 before the 30 deduction was inserted
	summer := &sequenceSummer{sums: map[uuid.UUID][]decimal.Decimal{
		id: {decimal.NewFromInt(30), decimal.NewFromInt(60)},
	}}
	store := &eventStoreStub{}
	auditor := NewAuditor(ads, summer, NewRecorder(store))
	auditor.confirmDelay = 0

	report, err := auditor.AuditAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if report.Mismatched != 0 || report.Transient != 1 || len(store.events) != 0 {
		t.Fatalf("expected transient mismatch only, got %+v events=%+v", report, store.events)
	}
}

func TestAuditAllRecordsStableMismatchOnce(t *testing.T) {
	id := uuid.New()
	ads := adsStub{ads: []livead.LiveAd{{ID: id, SpendTransferred: decimal.NewFromInt(30)}}}
	summer := &sequenceSummer{sums: map[uuid.UUID][]decimal.Decimal{id: {decimal.NewFromInt(35)}}}
	store := &eventStoreStub{}
	auditor := NewAuditor(ads, summer, NewRecorder(store))
	auditor.confirmDelay = 0

	report, err := auditor.AuditAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if report.Mismatched != 1 || report.Transient != 0 || len(store.events) != 1 {
		t.Fatalf("expected one recorded mismatch, got %+v events=%+v", report, store.events)
	}
}

func TestAuditAdConsistent(t *testing.T) {
	id := uuid.New()
	auditor := NewAuditor(
		adsStub{ads: []livead.LiveAd{{ID: id, SpendTransferred: decimal.NewFromInt(60)}}},
		summerStub{sums: map[uuid.UUID]decimal.Decimal{id: decimal.NewFromInt(60)}},
		NewRecorder(&eventStoreStub{}),
	)
	res, err := auditor.AuditAd(context.Background(), id)
	if err != nil || !res.Consistent {
		t.Fatalf("expected consistent audit, got %+v err=%v", res, err)
	}
	if _, err := auditor.AuditAd(context.Background(), uuid.New()); !errors.Is(err, livead.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecorderSwallowsStoreFailure(t *testing.T) {
	rec := NewRecorder(&eventStoreStub{err: errors.New("db down")})
	// must not panic or block
	rec.Record(context.Background(), uuid.New(), KindClaimWithoutDeduction, decimal.NewFromInt(1), decimal.Zero, "revert failed")
}
