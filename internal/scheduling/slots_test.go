package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	slots []Slot
	err   error
	calls int
}

func (s *stubLister) ListOpenBlocks(_ context.Context, _ uuid.UUID, _ string) ([]Slot, error) {
	s.calls++
	return s.slots, s.err
}

func slotAt(loc *time.Location, value string) Slot {
	start, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		panic(err)
	}
	return Slot{BlockID: uuid.New(), Start: start.UTC(), End: start.Add(30 * time.Minute).UTC()}
}

func TestSlotServiceFutureDateUnfiltered(t *testing.T) {
	loc := santiago(t)
	lister := &stubLister{slots: []Slot{
		slotAt(loc, "2025-03-04 09:00"),
		slotAt(loc, "2025-03-04 09:30"),
	}}
	svc := NewSlotService(lister, loc, time.Hour, nil).
		WithNow(fixedClock(loc, "2025-03-03 20:00"))

	slots, err := svc.ListSlots(context.Background(), uuid.New(), "2025-03-04")
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestSlotServiceSameDayLeadTime(t *testing.T) {
	loc := santiago(t)
	lister := &stubLister{slots: []Slot{
		slotAt(loc, "2025-03-03 09:00"),
		slotAt(loc, "2025-03-03 10:00"),
		slotAt(loc, "2025-03-03 11:00"),
	}}
	// At 09:15 with a 60-minute lead time, only slots from 10:15 onward are
	// bookable.
	svc := NewSlotService(lister, loc, time.Hour, nil).
		WithNow(fixedClock(loc, "2025-03-03 09:15"))

	slots, err := svc.ListSlots(context.Background(), uuid.New(), "2025-03-03")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "11:00", slots[0].Start.In(loc).Format(TimeLayout))
}

func TestSlotServiceCutoffBoundary(t *testing.T) {
	loc := santiago(t)
	lister := &stubLister{slots: []Slot{
		slotAt(loc, "2025-03-03 10:00"),
	}}
	// A slot starting exactly at now+leadTime stays bookable.
	svc := NewSlotService(lister, loc, time.Hour, nil).
		WithNow(fixedClock(loc, "2025-03-03 09:00"))

	slots, err := svc.ListSlots(context.Background(), uuid.New(), "2025-03-03")
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestSlotServiceValidation(t *testing.T) {
	loc := santiago(t)
	svc := NewSlotService(&stubLister{}, loc, time.Hour, nil)

	_, err := svc.ListSlots(context.Background(), uuid.Nil, "2025-03-03")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = svc.ListSlots(context.Background(), uuid.New(), "03/03/2025")
	require.ErrorAs(t, err, &ve)
}

func TestSlotServiceCacheHitSkipsStore(t *testing.T) {
	loc := santiago(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewSlotCache(client, time.Minute, nil)

	lister := &stubLister{slots: []Slot{slotAt(loc, "2025-03-04 09:00")}}
	svc := NewSlotService(lister, loc, time.Hour, nil).
		WithCache(cache).
		WithNow(fixedClock(loc, "2025-03-03 20:00"))

	doctorID := uuid.New()
	first, err := svc.ListSlots(context.Background(), doctorID, "2025-03-04")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, lister.calls)

	second, err := svc.ListSlots(context.Background(), doctorID, "2025-03-04")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, lister.calls, "second read must come from the cache")
}

func TestSlotServiceCacheStoresRawList(t *testing.T) {
	loc := santiago(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewSlotCache(client, time.Minute, nil)

	lister := &stubLister{slots: []Slot{
		slotAt(loc, "2025-03-03 09:00"),
		slotAt(loc, "2025-03-03 11:00"),
	}}
	svc := NewSlotService(lister, loc, time.Hour, nil).
		WithCache(cache).
		WithNow(fixedClock(loc, "2025-03-03 09:30"))

	doctorID := uuid.New()
	slots, err := svc.ListSlots(context.Background(), doctorID, "2025-03-03")
	require.NoError(t, err)
	require.Len(t, slots, 1)

	// The cache holds both open blocks; the lead-time cutoff is re-applied on
	// every read.
	cached, hit := cache.Get(context.Background(), doctorID, "2025-03-03")
	require.True(t, hit)
	assert.Len(t, cached, 2)
}

func TestSlotCacheInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewSlotCache(client, time.Minute, nil)

	doctorID := uuid.New()
	ctx := context.Background()
	cache.Set(ctx, doctorID, "2025-03-03", []Slot{{BlockID: uuid.New()}})
	cache.Set(ctx, doctorID, "2025-03-04", []Slot{{BlockID: uuid.New()}})

	cache.Invalidate(ctx, doctorID, "2025-03-03", "2025-03-03")

	_, hit := cache.Get(ctx, doctorID, "2025-03-03")
	assert.False(t, hit)
	_, hit = cache.Get(ctx, doctorID, "2025-03-04")
	assert.True(t, hit)
}
