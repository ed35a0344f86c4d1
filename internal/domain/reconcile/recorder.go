package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/pkg/logger"
)

type EventStore interface {
	Insert(ctx context.Context, e *Event) error
	ListByLiveAd(ctx context.Context, liveAdID uuid.UUID) ([]Event, error)
}

// Recorder persists reconciliation events and logs them at error level.
// A failed insert is logged, never returned: the caller is already on a
// failure path and the log line is the fallback record.
type Recorder struct {
	store EventStore
}

func NewRecorder(store EventStore) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Record(ctx context.Context, liveAdID uuid.UUID, kind Kind, expected, actual decimal.Decimal, detail string) {
	e := &Event{
		LiveAdID: uuid.NullUUID{UUID: liveAdID, Valid: liveAdID != uuid.Nil},
		Kind:     kind,
		Expected: &expected,
		Actual:   &actual,
		Detail:   detail,
	}

	l := logger.FromContext(ctx)
	l.Error().
		Str("live_ad_id", liveAdID.String()).
		Str("kind", string(kind)).
		Str("expected", expected.String()).
		Str("actual", actual.String()).
		Str("detail", detail).
		Msg("reconciliation needed")

	if r.store == nil {
		return
	}
	if err := r.store.Insert(ctx, e); err != nil {
		l.Error().Err(err).Str("live_ad_id", liveAdID.String()).Msg("failed to persist reconciliation event")
	}
}

func (r *Recorder) ForLiveAd(ctx context.Context, liveAdID uuid.UUID) ([]Event, error) {
	return r.store.ListByLiveAd(ctx, liveAdID)
}
