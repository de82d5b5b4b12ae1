package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func santiago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	return loc
}

func fixedClock(loc *time.Location, value string) func() time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestGeneratorExpandWeekdayPattern(t *testing.T) {
	loc := santiago(t)
	gen := NewGenerator(loc, 90).WithNow(fixedClock(loc, "2025-03-01 08:00"))

	candidates, err := gen.Expand(GenerationRequest{
		DoctorID:        uuid.New(),
		StartDate:       "2025-03-03",
		EndDate:         "2025-03-07",
		Weekdays:        []int{1, 2, 3, 4, 5},
		WindowStart:     "09:00",
		WindowEnd:       "12:00",
		DurationMinutes: 30,
	})
	require.NoError(t, err)

	// 6 blocks per day, Monday through Friday.
	require.Len(t, candidates, 30)

	first := candidates[0].StartsAt.In(loc)
	assert.Equal(t, "2025-03-03 09:00", first.Format("2006-01-02 15:04"))
	last := candidates[len(candidates)-1]
	assert.Equal(t, "2025-03-07 11:30", last.StartsAt.In(loc).Format("2006-01-02 15:04"))
	assert.Equal(t, "2025-03-07 12:00", last.EndsAt.In(loc).Format("2006-01-02 15:04"))

	for i := 1; i < len(candidates); i++ {
		assert.True(t, candidates[i].StartsAt.After(candidates[i-1].StartsAt) ||
			candidates[i].StartsAt.Equal(candidates[i-1].EndsAt),
			"candidates must be ascending and non-overlapping")
	}
}

func TestGeneratorExpandSkipsUnselectedWeekdays(t *testing.T) {
	loc := santiago(t)
	gen := NewGenerator(loc, 90).WithNow(fixedClock(loc, "2025-03-01 08:00"))

	candidates, err := gen.Expand(GenerationRequest{
		DoctorID:        uuid.New(),
		StartDate:       "2025-03-03",
		EndDate:         "2025-03-09",
		Weekdays:        []int{3}, // Wednesday only
		WindowStart:     "10:00",
		WindowEnd:       "11:00",
		DurationMinutes: 20,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	for _, c := range candidates {
		assert.Equal(t, time.Wednesday, c.StartsAt.In(loc).Weekday())
	}
}

func TestGeneratorExpandPartialSlotDropped(t *testing.T) {
	loc := santiago(t)
	gen := NewGenerator(loc, 90).WithNow(fixedClock(loc, "2025-03-01 08:00"))

	// 09:00-10:10 with 45-minute blocks fits exactly one block.
	candidates, err := gen.Expand(GenerationRequest{
		DoctorID:        uuid.New(),
		StartDate:       "2025-03-04",
		EndDate:         "2025-03-04",
		Weekdays:        []int{2},
		WindowStart:     "09:00",
		WindowEnd:       "10:10",
		DurationMinutes: 45,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "09:45", candidates[0].EndsAt.In(loc).Format(TimeLayout))
}

func TestGeneratorExpandValidation(t *testing.T) {
	loc := santiago(t)
	gen := NewGenerator(loc, 90).WithNow(fixedClock(loc, "2025-03-10 08:00"))

	base := GenerationRequest{
		DoctorID:        uuid.New(),
		StartDate:       "2025-03-17",
		EndDate:         "2025-03-21",
		Weekdays:        []int{1},
		WindowStart:     "09:00",
		WindowEnd:       "12:00",
		DurationMinutes: 30,
	}

	cases := []struct {
		name   string
		mutate func(*GenerationRequest)
	}{
		{"missing doctor", func(r *GenerationRequest) { r.DoctorID = uuid.Nil }},
		{"bad start date", func(r *GenerationRequest) { r.StartDate = "17-03-2025" }},
		{"bad end date", func(r *GenerationRequest) { r.EndDate = "soon" }},
		{"end before start", func(r *GenerationRequest) { r.EndDate = "2025-03-10" }},
		{"start in the past", func(r *GenerationRequest) { r.StartDate = "2025-03-01"; r.EndDate = "2025-03-05" }},
		{"range too long", func(r *GenerationRequest) { r.EndDate = "2025-07-01" }},
		{"no weekdays", func(r *GenerationRequest) { r.Weekdays = nil }},
		{"weekday out of range", func(r *GenerationRequest) { r.Weekdays = []int{7} }},
		{"bad window start", func(r *GenerationRequest) { r.WindowStart = "9am" }},
		{"window end before start", func(r *GenerationRequest) { r.WindowEnd = "08:00" }},
		{"window end equals start", func(r *GenerationRequest) { r.WindowEnd = "09:00" }},
		{"unsupported duration", func(r *GenerationRequest) { r.DurationMinutes = 25 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := gen.Expand(req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestGeneratorExpandMaxRangeCountsCivilDays(t *testing.T) {
	loc := santiago(t)
	gen := NewGenerator(loc, 90).WithNow(fixedClock(loc, "2025-03-10 08:00"))

	// Exactly 90 civil days spanning the Chilean DST fall-back in early
	// April, which makes the wall-clock span an hour longer than 90*24h.
	blocks, err := gen.Expand(GenerationRequest{
		DoctorID:        uuid.New(),
		StartDate:       "2025-03-10",
		EndDate:         "2025-06-08",
		Weekdays:        []int{1},
		WindowStart:     "09:00",
		WindowEnd:       "10:00",
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, blocks)
}

func TestGeneratorExpandAllowsStartToday(t *testing.T) {
	loc := santiago(t)
	gen := NewGenerator(loc, 90).WithNow(fixedClock(loc, "2025-03-17 15:00"))

	candidates, err := gen.Expand(GenerationRequest{
		DoctorID:        uuid.New(),
		StartDate:       "2025-03-17",
		EndDate:         "2025-03-17",
		Weekdays:        []int{1},
		WindowStart:     "09:00",
		WindowEnd:       "10:00",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	// Today's blocks are generated even when the window already passed; the
	// slot lead-time rule hides them from patients instead.
	require.Len(t, candidates, 1)
}

func TestFirstOverlap(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2025, 3, 3, h, 0, 0, 0, time.UTC) }
	iv := func(from, to int) Candidate { return Candidate{StartsAt: at(from), EndsAt: at(to)} }

	t.Run("disjoint", func(t *testing.T) {
		got := firstOverlap(
			[]Candidate{iv(9, 10), iv(10, 11)},
			[]Candidate{iv(8, 9), iv(11, 12)},
		)
		assert.Nil(t, got)
	})

	t.Run("touching edges do not overlap", func(t *testing.T) {
		got := firstOverlap([]Candidate{iv(9, 10)}, []Candidate{iv(10, 11)})
		assert.Nil(t, got)
	})

	t.Run("collision reported on first colliding candidate", func(t *testing.T) {
		got := firstOverlap(
			[]Candidate{iv(8, 9), iv(9, 10), iv(10, 11)},
			[]Candidate{iv(9, 11)},
		)
		require.NotNil(t, got)
		assert.Equal(t, at(9), got.StartsAt)
	})

	t.Run("containment", func(t *testing.T) {
		got := firstOverlap([]Candidate{iv(9, 12)}, []Candidate{iv(10, 11)})
		require.NotNil(t, got)
	})
}
