package guardrail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/domain/realtime"
	"github.com/promohub/promohub-api/internal/domain/settlement"
	"github.com/promohub/promohub-api/internal/domain/spendsync"
	"github.com/promohub/promohub-api/internal/domain/wallet"
	"github.com/promohub/promohub-api/internal/pkg/logger"
	"github.com/promohub/promohub-api/internal/pkg/metaads"
	"github.com/promohub/promohub-api/internal/pkg/storage"
)

const (
	defaultBatchSize = 5
	archivePrefix    = "guardrail-sweeps"
)

type AdStore interface {
	ListByStatus(ctx context.Context, status livead.Status) ([]livead.LiveAd, error)
	MarkPaused(ctx context.Context, id uuid.UUID, billingState string) error
}

type SpendSyncer interface {
	Sync(ctx context.Context, ad *livead.LiveAd) (*livead.LiveAd, error)
	Token(ctx context.Context, ad *livead.LiveAd) (string, error)
}

type AdController interface {
	SetAdStatus(ctx context.Context, adID, token string, status metaads.AdStatus) error
}

type BalanceReader interface {
	AvailableBalance(ctx context.Context, affiliateEmail string) (wallet.Balance, error)
}

type Settler interface {
	Settle(ctx context.Context, liveAdID uuid.UUID) (*settlement.Result, error)
}

type Notifier interface {
	Notify(email string, event realtime.Event)
}

type Options struct {
	BatchSize     int
	SettleOnSweep bool
	// Zero disables low-balance alerts.
	LowBalanceThreshold decimal.Decimal
}

// Service enforces that no active ad runs with more unpaid spend than its
// affiliate's wallet can cover.
type Service struct {
	ads      AdStore
	syncer   SpendSyncer
	control  AdController
	balances BalanceReader
	settler  Settler
	notifier Notifier
	archive  storage.ObjectStore
	opts     Options
	now      func() time.Time
}

// NewService wires the sweep. notifier and archive may be nil.
func NewService(ads AdStore, syncer SpendSyncer, control AdController, balances BalanceReader, settler Settler, notifier Notifier, archive storage.ObjectStore, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Service{
		ads:      ads,
		syncer:   syncer,
		control:  control,
		balances: balances,
		settler:  settler,
		notifier: notifier,
		archive:  archive,
		opts:     opts,
		now:      time.Now,
	}
}

// Sweep checks every active ad once. Ads of one affiliate run sequentially;
// affiliates run in parallel up to the batch size.
func (s *Service) Sweep(ctx context.Context, dryRun bool) (*Summary, error) {
	summary := &Summary{DryRun: dryRun, StartedAt: s.now().UTC()}

	ads, err := s.ads.ListByStatus(ctx, livead.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("load active ads: %w", err)
	}

	groups := groupByAffiliate(ads)
	perGroup := make([][]AdResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchSize)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			results := make([]AdResult, 0, len(group))
			for j := range group {
				results = append(results, s.checkAd(gctx, &group[j], dryRun))
			}
			perGroup[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Results = make([]AdResult, 0, len(ads))
	for _, results := range perGroup {
		summary.Results = append(summary.Results, results...)
	}
	summary.tally()
	summary.FinishedAt = s.now().UTC()

	log.Info().
		Bool("dry_run", dryRun).
		Int("total", summary.Total).
		Int("failed", summary.Failed).
		Int("auto_paused", summary.AutoPaused).
		Int("settled", summary.Settled).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("guardrail sweep finished")

	if !dryRun {
		s.archiveSummary(ctx, summary)
	}
	return summary, nil
}

func groupByAffiliate(ads []livead.LiveAd) [][]livead.LiveAd {
	index := make(map[string]int)
	var groups [][]livead.LiveAd
	for _, ad := range ads {
		key := wallet.NormalizeEmail(ad.AffiliateEmail)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], ad)
	}
	return groups
}

func (s *Service) checkAd(ctx context.Context, ad *livead.LiveAd, dryRun bool) AdResult {
	ctx = logger.With(ctx, "live_ad_id", ad.ID.String())
	l := logger.FromContext(ctx)

	res := AdResult{
		LiveAdID:       ad.ID,
		AffiliateEmail: ad.AffiliateEmail,
		MetaAdID:       ad.MetaAdID,
		Action:         ActionNone,
	}

	if !dryRun {
		synced, err := s.syncer.Sync(ctx, ad)
		if err != nil {
			res.SyncError = err.Error()
			l.Warn().Err(err).Msg("spend sync failed, using stored spend")
		} else {
			ad = synced
		}
	}

	unpaid := ad.Unpaid()
	res.Spend = ad.Spend
	res.Unpaid = unpaid

	bal, err := s.balances.AvailableBalance(ctx, ad.AffiliateEmail)
	if err != nil {
		res.Error = err.Error()
		res.ErrorCode = wallet.Code(err)
		l.Error().Err(err).Msg("balance read failed")
		return res
	}
	available := bal.Available
	res.Balance = &available

	switch {
	case available.LessThan(unpaid):
		if dryRun {
			res.Action = ActionWouldPause
			return res
		}
		s.pause(ctx, ad, available, &res)
	case unpaid.IsPositive() && s.opts.SettleOnSweep:
		if dryRun {
			res.Action = ActionWouldSettle
			return res
		}
		s.settle(ctx, ad, &res)
	}
	return res
}

func (s *Service) pause(ctx context.Context, ad *livead.LiveAd, available decimal.Decimal, res *AdResult) {
	l := logger.FromContext(ctx)

	token, err := s.syncer.Token(ctx, ad)
	if err != nil {
		res.Error = err.Error()
		res.ErrorCode = spendsync.Code(err)
		l.Error().Err(err).Msg("cannot pause ad without platform credential")
		return
	}
	if err := s.control.SetAdStatus(ctx, ad.MetaAdID, token, metaads.StatusPaused); err != nil {
		res.Error = err.Error()
		res.ErrorCode = CodePauseFailed
		l.Error().Err(err).Msg("platform pause failed, ad stays active")
		return
	}
	if err := s.ads.MarkPaused(ctx, ad.ID, livead.BillingPausedInsufficient); err != nil {
		// Still active locally, so the next sweep repeats the pause.
		res.Error = err.Error()
		res.ErrorCode = CodeLocalPauseFailed
		l.Error().Err(err).Msg("ad paused on platform but local status update failed")
		return
	}
	res.Action = ActionPaused
	l.Info().Str("unpaid", res.Unpaid.StringFixed(2)).Str("available", available.StringFixed(2)).Msg("ad auto-paused")

	if s.notifier != nil {
		id := ad.ID
		s.notifier.Notify(ad.AffiliateEmail, realtime.Event{
			Type:     realtime.EventAdPaused,
			LiveAdID: &id,
			Data: map[string]string{
				"reason":            "insufficient_wallet_balance",
				"unpaid":            res.Unpaid.StringFixed(2),
				"available_balance": available.StringFixed(2),
			},
		})
	}
}

func (s *Service) settle(ctx context.Context, ad *livead.LiveAd, res *AdResult) {
	result, err := s.settler.Settle(ctx, ad.ID)
	if err != nil {
		res.Error = err.Error()
		res.ErrorCode = settlement.Code(err)
		logger.FromContext(ctx).Warn().Err(err).Msg("settlement during sweep failed")
		return
	}
	res.Settlement = result
	if !result.ChargedAmount.IsPositive() {
		return
	}
	res.Action = ActionSettled
	if s.notifier == nil {
		return
	}
	id := ad.ID
	s.notifier.Notify(ad.AffiliateEmail, realtime.Event{
		Type:     realtime.EventAdSettled,
		LiveAdID: &id,
		Data:     map[string]string{"charged": result.ChargedAmount.StringFixed(2)},
	})
	if result.Wallet != nil && s.lowBalance(result.Wallet.AvailableBalanceAfter) {
		s.notifier.Notify(ad.AffiliateEmail, realtime.Event{
			Type:     realtime.EventLowBalance,
			LiveAdID: &id,
			Data: map[string]string{
				"available_balance": result.Wallet.AvailableBalanceAfter.StringFixed(2),
				"threshold":         s.opts.LowBalanceThreshold.StringFixed(2),
			},
		})
	}
}

func (s *Service) lowBalance(available decimal.Decimal) bool {
	return s.opts.LowBalanceThreshold.IsPositive() && available.LessThan(s.opts.LowBalanceThreshold)
}

func archiveKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s/%s/%d.json", archivePrefix, t.Format("2006/01/02"), t.Unix())
}

func (s *Service) archiveSummary(ctx context.Context, summary *Summary) {
	if s.archive == nil {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode sweep summary")
		return
	}
	key := archiveKey(summary.StartedAt)
	if err := s.archive.Put(ctx, key, data, "application/json"); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to archive sweep summary")
		return
	}
	log.Debug().Str("key", key).Msg("sweep summary archived")
}

// Archived loads a previously archived summary.
func (s *Service) Archived(ctx context.Context, key string) (*Summary, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	data, err := s.archive.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrArchiveNotFound
		}
		return nil, err
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode archived summary: %w", err)
	}
	return &summary, nil
}
