package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avalon-clinic/scheduling-engine/internal/observability/metrics"
	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// SlotLister is the read surface the slot service needs from the store.
type SlotLister interface {
	ListOpenBlocks(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error)
}

// SlotService derives the bookable slots of a doctor/date from the block
// store. Availability filtering happens in the store query; this service adds
// the same-day lead-time rule, evaluated against the clinic civil timezone,
// and an optional read-through cache.
type SlotService struct {
	store    SlotLister
	cache    *SlotCache
	loc      *time.Location
	leadTime time.Duration
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
}

// NewSlotService creates a slot service. leadTime is the minimum notice for
// same-day bookings; future dates are never filtered by time of day.
func NewSlotService(store SlotLister, loc *time.Location, leadTime time.Duration, logger *logging.Logger) *SlotService {
	if store == nil {
		panic("scheduling: slot lister required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if leadTime < 0 {
		leadTime = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotService{
		store:    store,
		loc:      loc,
		leadTime: leadTime,
		now:      time.Now,
		logger:   logger,
	}
}

// WithCache attaches a read-through cache of raw open-block lists.
func (s *SlotService) WithCache(cache *SlotCache) *SlotService {
	s.cache = cache
	return s
}

// WithNow overrides the clock. Used by tests.
func (s *SlotService) WithNow(now func() time.Time) *SlotService {
	s.now = now
	return s
}

// WithMetrics attaches cache hit/miss metrics.
func (s *SlotService) WithMetrics(m *metrics.SchedulingMetrics) *SlotService {
	s.metrics = m
	return s
}

// ListSlots returns the ascending bookable slots of doctor/date. On the
// current civil date, slots starting before now+leadTime are excluded.
func (s *SlotService) ListSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error) {
	if doctorID == uuid.Nil {
		return nil, NewValidationError("doctor_id is required")
	}
	if _, err := time.ParseInLocation(DateLayout, date, s.loc); err != nil {
		return nil, NewValidationError("date %q is not a valid date", date)
	}

	slots, hit := s.cachedOpenBlocks(ctx, doctorID, date)
	if hit {
		s.metrics.ObserveSlotCache("hit")
	} else {
		if s.cache != nil {
			s.metrics.ObserveSlotCache("miss")
		}
		var err error
		slots, err = s.store.ListOpenBlocks(ctx, doctorID, date)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, doctorID, date, slots)
		}
	}

	return s.applyLeadTime(slots, date), nil
}

func (s *SlotService) cachedOpenBlocks(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, doctorID, date)
}

// applyLeadTime drops near-term slots on the current civil date. The cutoff
// is computed per read so cached lists stay correct as the clock advances.
func (s *SlotService) applyLeadTime(slots []Slot, date string) []Slot {
	now := s.now().In(s.loc)
	if now.Format(DateLayout) != date {
		return slots
	}
	cutoff := now.Add(s.leadTime)
	out := slots[:0:0]
	for _, slot := range slots {
		if slot.Start.In(s.loc).Before(cutoff) {
			continue
		}
		out = append(out, slot)
	}
	return out
}
