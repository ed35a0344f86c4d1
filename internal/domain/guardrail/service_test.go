package guardrail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/domain/realtime"
	"github.com/promohub/promohub-api/internal/domain/settlement"
	"github.com/promohub/promohub-api/internal/domain/spendsync"
	"github.com/promohub/promohub-api/internal/domain/wallet"
	"github.com/promohub/promohub-api/internal/pkg/metaads"
	"github.com/promohub/promohub-api/internal/pkg/storage"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type adStoreStub struct {
	mu     sync.Mutex
	ads    []livead.LiveAd
	paused map[uuid.UUID]string
}

func (s *adStoreStub) ListByStatus(_ context.Context, status livead.Status) ([]livead.LiveAd, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []livead.LiveAd
	for _, ad := range s.ads {
		if ad.Status == status {
			out = append(out, ad)
		}
	}
	return out, nil
}

func (s *adStoreStub) MarkPaused(_ context.Context, id uuid.UUID, billing string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == nil {
		s.paused = map[uuid.UUID]string{}
	}
	s.paused[id] = billing
	return nil
}

type syncerStub struct {
	mu      sync.Mutex
	spend   map[uuid.UUID]decimal.Decimal
	syncErr error
	noToken map[uuid.UUID]bool
	synced  int
}

func (s *syncerStub) Sync(_ context.Context, ad *livead.LiveAd) (*livead.LiveAd, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced++
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	out := *ad
	if v, ok := s.spend[ad.ID]; ok && v.GreaterThan(out.Spend) {
		out.Spend = v
	}
	return &out, nil
}

func (s *syncerStub) Token(_ context.Context, ad *livead.LiveAd) (string, error) {
	if s.noToken[ad.ID] {
		return "", spendsync.ErrCredentialMissing
	}
	return "tok", nil
}

type controlStub struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (c *controlStub) SetAdStatus(_ context.Context, adID, _ string, status metaads.AdStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, adID+":"+string(status))
	if adID == c.failOn {
		return errors.New("graph 500")
	}
	return nil
}

type balancesStub map[string]decimal.Decimal

func (b balancesStub) AvailableBalance(_ context.Context, email string) (wallet.Balance, error) {
	v, ok := b[email]
	if !ok {
		return wallet.Balance{}, wallet.ErrLedgerRead
	}
	return wallet.Balance{AffiliateEmail: email, Available: v}, nil
}

type settlerStub struct {
	mu      sync.Mutex
	settled []uuid.UUID
	// remaining balance reported after the charge; empty leaves Wallet unset
	after string
}

func (s *settlerStub) Settle(_ context.Context, id uuid.UUID) (*settlement.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = append(s.settled, id)
	res := &settlement.Result{LiveAdID: id, Success: true, ChargedAmount: dec("10")}
	if s.after != "" {
		res.Wallet = &settlement.WalletState{AvailableBalanceBefore: dec(s.after).Add(dec("10")), AvailableBalanceAfter: dec(s.after)}
	}
	return res, nil
}

type notifierStub struct {
	mu     sync.Mutex
	events map[string][]realtime.Event
}

func (n *notifierStub) Notify(email string, e realtime.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = map[string][]realtime.Event{}
	}
	n.events[email] = append(n.events[email], e)
}

type archiveStub struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (a *archiveStub) Put(_ context.Context, key string, data []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objs == nil {
		a.objs = map[string][]byte{}
	}
	a.objs[key] = data
	return nil
}

func (a *archiveStub) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func activeAd(email, metaID, spend, transferred string) livead.LiveAd {
	return livead.LiveAd{
		ID:               uuid.New(),
		AffiliateEmail:   email,
		BusinessID:       uuid.NullUUID{UUID: uuid.New(), Valid: true},
		OfferID:          uuid.NullUUID{UUID: uuid.New(), Valid: true},
		MetaAdID:         metaID,
		Spend:            dec(spend),
		SpendTransferred: dec(transferred),
		Status:           livead.StatusActive,
	}
}

type fixture struct {
	ads      *adStoreStub
	syncer   *syncerStub
	control  *controlStub
	settler  *settlerStub
	notifier *notifierStub
	archive  *archiveStub
	svc      *Service
}

func newFixture(ads []livead.LiveAd, balances balancesStub) *fixture {
	f := &fixture{
		ads:      &adStoreStub{ads: ads},
		syncer:   &syncerStub{},
		control:  &controlStub{},
		settler:  &settlerStub{},
		notifier: &notifierStub{},
		archive:  &archiveStub{},
	}
	f.svc = NewService(f.ads, f.syncer, f.control, balances, f.settler, f.notifier, f.archive, Options{SettleOnSweep: true})
	f.svc.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return f
}

func resultFor(t *testing.T, s *Summary, id uuid.UUID) AdResult {
	t.Helper()
	for _, r := range s.Results {
		if r.LiveAdID == id {
			return r
		}
	}
	t.Fatalf("no result for %s", id)
	return AdResult{}
}

func TestSweepPausesWhenBalanceCannotCoverUnpaid(t *testing.T) {
	ad := activeAd("poor@x.io", "meta_1", "50", "10")
	f := newFixture([]livead.LiveAd{ad}, balancesStub{"poor@x.io": dec("39.99")})

	summary, err := f.svc.Sweep(context.Background(), false)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if summary.AutoPaused != 1 || summary.Failed != 0 {
		t.Fatalf("expected one auto pause, got %+v", summary)
	}
	if f.ads.paused[ad.ID] != livead.BillingPausedInsufficient {
		t.Fatalf("expected local pause, got %q", f.ads.paused[ad.ID])
	}
	if len(f.control.calls) != 1 || f.control.calls[0] != "meta_1:PAUSED" {
		t.Fatalf("expected platform pause, got %v", f.control.calls)
	}
	if len(f.settler.settled) != 0 {
		t.Fatal("paused ads must not be settled")
	}
	events := f.notifier.events["poor@x.io"]
	if len(events) != 1 || events[0].Type != realtime.EventAdPaused {
		t.Fatalf("expected pause notification, got %+v", events)
	}
}

func TestSweepSettlesCoveredAds(t *testing.T) {
	covered := activeAd("rich@x.io", "meta_2", "30", "20")
	idle := activeAd("rich@x.io", "meta_3", "5", "5")
	f := newFixture([]livead.LiveAd{covered, idle}, balancesStub{"rich@x.io": dec("100")})

	summary, err := f.svc.Sweep(context.Background(), false)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if summary.Settled != 1 || summary.OK != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(f.settler.settled) != 1 || f.settler.settled[0] != covered.ID {
		t.Fatalf("expected only the ad with unpaid spend settled, got %v", f.settler.settled)
	}
	if resultFor(t, summary, idle.ID).Action != ActionNone {
		t.Fatal("fully settled ad needs no action")
	}
}

func TestSweepAlertsLowBalanceAfterSettlement(t *testing.T) {
	ad := activeAd("thin@x.io", "meta_9", "30", "20")
	f := newFixture([]livead.LiveAd{ad}, balancesStub{"thin@x.io": dec("12")})
	f.settler.after = "2"
	f.svc.opts.LowBalanceThreshold = dec("5")

	if _, err := f.svc.Sweep(context.Background(), false); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	events := f.notifier.events["thin@x.io"]
	if len(events) != 2 || events[0].Type != realtime.EventAdSettled || events[1].Type != realtime.EventLowBalance {
		t.Fatalf("expected settled then low balance events, got %+v", events)
	}
	data, _ := events[1].Data.(map[string]string)
	if data["available_balance"] != "2.00" || data["threshold"] != "5.00" {
		t.Fatalf("unexpected low balance payload %+v", events[1].Data)
	}

	f = newFixture([]livead.LiveAd{ad}, balancesStub{"thin@x.io": dec("100")})
	f.settler.after = "90"
	f.svc.opts.LowBalanceThreshold = dec("5")
	if _, err := f.svc.Sweep(context.Background(), false); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if events := f.notifier.events["thin@x.io"]; len(events) != 1 {
		t.Fatalf("healthy balance must not alert, got %+v", events)
	}
}

func TestSweepDryRunMutatesNothing(t *testing.T) {
	poor := activeAd("poor@x.io", "meta_1", "50", "0")
	rich := activeAd("rich@x.io", "meta_2", "30", "0")
	f := newFixture([]livead.LiveAd{poor, rich}, balancesStub{"poor@x.io": dec("1"), "rich@x.io": dec("100")})

	summary, err := f.svc.Sweep(context.Background(), true)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !summary.DryRun {
		t.Fatal("expected dry run flag")
	}
	if resultFor(t, summary, poor.ID).Action != ActionWouldPause {
		t.Fatal("expected would_pause")
	}
	if resultFor(t, summary, rich.ID).Action != ActionWouldSettle {
		t.Fatal("expected would_settle")
	}
	if f.syncer.synced != 0 || len(f.control.calls) != 0 || len(f.ads.paused) != 0 || len(f.settler.settled) != 0 {
		t.Fatal("dry run must not sync, pause or settle")
	}
	if len(f.archive.objs) != 0 {
		t.Fatal("dry runs are not archived")
	}
}

func TestSweepFallsBackToStoredSpendWhenSyncFails(t *testing.T) {
	ad := activeAd("a@x.io", "meta_1", "20", "0")
	f := newFixture([]livead.LiveAd{ad}, balancesStub{"a@x.io": dec("5")})
	f.syncer.syncErr = errors.New("graph timeout")

	summary, err := f.svc.Sweep(context.Background(), false)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	res := resultFor(t, summary, ad.ID)
	if res.SyncError == "" {
		t.Fatal("expected sync_error to be reported")
	}
	if !res.Unpaid.Equal(dec("20")) || res.Action != ActionPaused {
		t.Fatalf("expected pause on stored spend, got %+v", res)
	}
}

func TestSweepUsesSyncedSpend(t *testing.T) {
	ad := activeAd("a@x.io", "meta_1", "10", "0")
	f := newFixture([]livead.LiveAd{ad}, balancesStub{"a@x.io": dec("15")})
	f.syncer.spend = map[uuid.UUID]decimal.Decimal{ad.ID: dec("25")}

	summary, err := f.svc.Sweep(context.Background(), false)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if res := resultFor(t, summary, ad.ID); res.Action != ActionPaused || !res.Spend.Equal(dec("25")) {
		t.Fatalf("expected pause on fresh spend, got %+v", res)
	}
}

func TestSweepReportsMissingCredentialWithoutLocalPause(t *testing.T) {
	ad := activeAd("a@x.io", "meta_1", "20", "0")
	f := newFixture([]livead.LiveAd{ad}, balancesStub{"a@x.io": dec("0")})
	f.syncer.noToken = map[uuid.UUID]bool{ad.ID: true}

	summary, err := f.svc.Sweep(context.Background(), false)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	res := resultFor(t, summary, ad.ID)
	if res.ErrorCode != spendsync.CodeCredentialMissing || summary.Failed != 1 {
		t.Fatalf("expected credential failure, got %+v", res)
	}
	if len(f.ads.paused) != 0 {
		t.Fatal("ad must stay active locally")
	}
}

func TestSweepPlatformPauseFailureLeavesAdActive(t *testing.T) {
	ad := activeAd("a@x.io", "meta_bad", "20", "0")
	f := newFixture([]livead.LiveAd{ad}, balancesStub{"a@x.io": dec("0")})
	f.control.failOn = "meta_bad"

	summary, _ := f.svc.Sweep(context.Background(), false)
	if res := resultFor(t, summary, ad.ID); res.ErrorCode != CodePauseFailed {
		t.Fatalf("expected pause failure, got %+v", res)
	}
	if len(f.ads.paused) != 0 {
		t.Fatal("ad must stay active locally")
	}
}

func TestSweepLedgerReadFailureIsPerAd(t *testing.T) {
	broken := activeAd("missing@x.io", "meta_1", "20", "0")
	fine := activeAd("a@x.io", "meta_2", "1", "1")
	f := newFixture([]livead.LiveAd{broken, fine}, balancesStub{"a@x.io": dec("0")})

	summary, err := f.svc.Sweep(context.Background(), false)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if summary.Failed != 1 || summary.OK != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if res := resultFor(t, summary, broken.ID); res.ErrorCode != wallet.CodeLedgerReadFailure || res.Action != ActionNone {
		t.Fatalf("ledger failure must neither pause nor settle, got %+v", res)
	}
}

func TestSweepArchivesSummary(t *testing.T) {
	f := newFixture([]livead.LiveAd{activeAd("a@x.io", "m", "1", "1")}, balancesStub{"a@x.io": dec("0")})
	if _, err := f.svc.Sweep(context.Background(), false); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	key := "guardrail-sweeps/2026/03/04/" + "1772600767.json"
	if _, ok := f.archive.objs[key]; !ok {
		t.Fatalf("expected archive at %s, got %v", key, f.archive.objs)
	}
	got, err := f.svc.Archived(context.Background(), key)
	if err != nil || got.Total != 1 {
		t.Fatalf("expected archived summary, got %+v err=%v", got, err)
	}
}

func TestGroupByAffiliateKeepsOrder(t *testing.T) {
	ads := []livead.LiveAd{
		activeAd("b@x.io", "1", "0", "0"),
		activeAd("A@x.io", "2", "0", "0"),
		activeAd("b@x.io", "3", "0", "0"),
		activeAd("a@x.io", "4", "0", "0"),
	}
	groups := groupByAffiliate(ads)
	if len(groups) != 2 || len(groups[0]) != 2 || len(groups[1]) != 2 {
		t.Fatalf("unexpected grouping %v", groups)
	}
	if groups[0][1].MetaAdID != "3" || groups[1][0].MetaAdID != "2" {
		t.Fatal("group order must follow input order")
	}
}

func TestHandlerDryRunQuery(t *testing.T) {
	f := newFixture([]livead.LiveAd{activeAd("a@x.io", "m", "10", "0")}, balancesStub{"a@x.io": dec("0")})
	h := NewHandler(f.svc).Routes()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sweep?dry_run=true", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data Summary `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Data.DryRun || body.Data.Results[0].Action != ActionWouldPause {
		t.Fatalf("unexpected body %+v", body.Data)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sweep?dry_run=maybe", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sweeps?key=../../etc/passwd", nil))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "archived sweep") {
		t.Fatalf("expected 400 for foreign key, got %d", w.Code)
	}
}
