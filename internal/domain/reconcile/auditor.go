package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/pkg/logger"
)

type AdSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*livead.LiveAd, error)
	ListAll(ctx context.Context) ([]livead.LiveAd, error)
}

type DeductionSummer interface {
	DeductedForLiveAd(ctx context.Context, liveAdID uuid.UUID) (decimal.Decimal, error)
}

// confirmDelay is how long a suspected mismatch waits before the second
// read. It covers the gap between a settlement claim and its deduction insert.
const confirmDelay = 2 * time.Second

// Auditor checks that every ad's spend_transferred equals the sum of the
// settlement deductions tagged to it.
type Auditor struct {
	ads          AdSource
	ledger       DeductionSummer
	recorder     *Recorder
	confirmDelay time.Duration
}

func NewAuditor(ads AdSource, ledger DeductionSummer, recorder *Recorder) *Auditor {
	return &Auditor{ads: ads, ledger: ledger, recorder: recorder, confirmDelay: confirmDelay}
}

func (a *Auditor) AuditAd(ctx context.Context, id uuid.UUID) (*AdAudit, error) {
	return a.check(ctx, id)
}

// check sums the deductions first and reads the counter second. A claim always
// lands before its deduction, so a settlement in flight can only show up as
// a counter ahead of the sum, never the other way round.
func (a *Auditor) check(ctx context.Context, id uuid.UUID) (*AdAudit, error) {
	deducted, err := a.ledger.DeductedForLiveAd(ctx, id)
	if err != nil {
		return nil, err
	}
	ad, err := a.ads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AdAudit{
		LiveAdID:         ad.ID,
		SpendTransferred: ad.SpendTransferred,
		Deducted:         deducted,
		Consistent:       deducted.Equal(ad.SpendTransferred),
	}, nil
}

// confirm repeats a failed check after confirmDelay. The mismatch is real only
// when the second read fails with the same figures.
func (a *Auditor) confirm(ctx context.Context, first *AdAudit) (*AdAudit, bool, error) {
	if a.confirmDelay > 0 {
		timer := time.NewTimer(a.confirmDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-timer.C:
		}
	}
	second, err := a.check(ctx, first.LiveAdID)
	if err != nil {
		return nil, false, err
	}
	stable := !second.Consistent &&
		second.SpendTransferred.Equal(first.SpendTransferred) &&
		second.Deducted.Equal(first.Deducted)
	return second, stable, nil
}

// AuditAll checks every ad and records a ledger_mismatch event per inconsistency.
func (a *Auditor) AuditAll(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{StartedAt: time.Now().UTC(), Mismatches: []AdAudit{}}

	ads, err := a.ads.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	l := logger.FromContext(ctx)
	for i := range ads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := a.check(ctx, ads[i].ID)
		if err != nil {
			report.Failed++
			l.Warn().Err(err).Str("live_ad_id", ads[i].ID.String()).Msg("audit read failed")
			continue
		}
		report.Checked++
		if res.Consistent {
			continue
		}
		res, stable, err := a.confirm(ctx, res)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Failed++
			l.Warn().Err(err).Str("live_ad_id", ads[i].ID.String()).Msg("audit re-read failed")
			continue
		}
		if !stable {
			report.Transient++
			l.Debug().Str("live_ad_id", ads[i].ID.String()).Msg("mismatch cleared on re-read")
			continue
		}
		report.Mismatched++
		report.Mismatches = append(report.Mismatches, *res)
		a.recorder.Record(ctx, res.LiveAdID, KindLedgerMismatch, res.SpendTransferred, res.Deducted,
			fmt.Sprintf("deductions %s != spend_transferred %s", res.Deducted, res.SpendTransferred))
	}

	report.FinishedAt = time.Now().UTC()
	l.Info().
		Int("checked", report.Checked).
		Int("mismatched", report.Mismatched).
		Int("failed", report.Failed).
		Int("transient", report.Transient).
		Msg("reconciliation audit finished")
	return report, nil
}
