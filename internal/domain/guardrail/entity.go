package guardrail

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/settlement"
)

type Action string

const (
	ActionNone        Action = "none"
	ActionPaused      Action = "paused"
	ActionSettled     Action = "settled"
	ActionWouldPause  Action = "would_pause"
	ActionWouldSettle Action = "would_settle"
)

// AdResult is the outcome of one ad in a sweep.
type AdResult struct {
	LiveAdID       uuid.UUID          `json:"live_ad_id"`
	AffiliateEmail string             `json:"affiliate_email"`
	MetaAdID       string             `json:"meta_ad_id"`
	Spend          decimal.Decimal    `json:"spend"`
	Unpaid         decimal.Decimal    `json:"unpaid"`
	Balance        *decimal.Decimal   `json:"available_balance,omitempty"`
	Action         Action             `json:"action"`
	SyncError      string             `json:"sync_error,omitempty"`
	Error          string             `json:"error,omitempty"`
	ErrorCode      string             `json:"error_code,omitempty"`
	Settlement     *settlement.Result `json:"settlement,omitempty"`
}

func (r *AdResult) failed() bool {
	return r.Error != ""
}

// Summary is returned by every sweep and archived for non-dry runs.
type Summary struct {
	Total      int        `json:"total"`
	OK         int        `json:"ok"`
	Failed     int        `json:"failed"`
	AutoPaused int        `json:"auto_paused"`
	Settled    int        `json:"settled"`
	DryRun     bool       `json:"dry_run"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Results    []AdResult `json:"results"`
}

func (s *Summary) tally() {
	s.Total = len(s.Results)
	for i := range s.Results {
		r := &s.Results[i]
		if r.failed() {
			s.Failed++
		} else {
			s.OK++
		}
		switch r.Action {
		case ActionPaused:
			s.AutoPaused++
		case ActionSettled:
			s.Settled++
		}
	}
}
