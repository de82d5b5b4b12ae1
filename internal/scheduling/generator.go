package scheduling

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

var allowedDurations = map[int]struct{}{
	15: {},
	20: {},
	30: {},
	45: {},
	60: {},
}

// GenerationRequest describes a recurring weekly pattern to expand into
// discrete availability blocks. Dates and times are civil values interpreted
// in the clinic timezone.
type GenerationRequest struct {
	DoctorID        uuid.UUID `json:"doctor_id"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	Weekdays        []int     `json:"weekdays"` // 0=Sunday .. 6=Saturday
	WindowStart     string    `json:"window_start"`
	WindowEnd       string    `json:"window_end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Candidate is one interval produced by expanding a pattern, in UTC.
type Candidate struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// Generator expands recurring patterns into block candidates. It owns the
// validation rules on date range, weekday set, time window and duration.
type Generator struct {
	loc          *time.Location
	maxRangeDays int
	now          func() time.Time
}

// NewGenerator creates a generator for the given clinic timezone.
func NewGenerator(loc *time.Location, maxRangeDays int) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	if maxRangeDays <= 0 {
		maxRangeDays = 90
	}
	return &Generator{
		loc:          loc,
		maxRangeDays: maxRangeDays,
		now:          time.Now,
	}
}

// WithNow overrides the clock. Used by tests.
func (g *Generator) WithNow(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Expand validates req and returns the candidate intervals in ascending
// order. Candidates never overlap each other by construction; callers are
// responsible for checking them against already persisted blocks.
func (g *Generator) Expand(req GenerationRequest) ([]Candidate, error) {
	if req.DoctorID == uuid.Nil {
		return nil, NewValidationError("doctor_id is required")
	}

	startDate, err := time.ParseInLocation(DateLayout, req.StartDate, g.loc)
	if err != nil {
		return nil, NewValidationError("start_date %q is not a valid date", req.StartDate)
	}
	endDate, err := time.ParseInLocation(DateLayout, req.EndDate, g.loc)
	if err != nil {
		return nil, NewValidationError("end_date %q is not a valid date", req.EndDate)
	}
	if endDate.Before(startDate) {
		return nil, NewValidationError("end_date must not be before start_date")
	}

	today := civilMidnight(g.now().In(g.loc))
	if startDate.Before(today) {
		return nil, NewValidationError("start_date must not be in the past")
	}
	// Compare civil days, not wall-clock hours; a range crossing a DST
	// fall-back is an hour longer on the clock than on the calendar.
	if endDate.After(startDate.AddDate(0, 0, g.maxRangeDays)) {
		return nil, NewValidationError("date range exceeds %d days", g.maxRangeDays)
	}

	if len(req.Weekdays) == 0 {
		return nil, NewValidationError("at least one weekday is required")
	}
	weekdays := make(map[time.Weekday]struct{}, len(req.Weekdays))
	for _, wd := range req.Weekdays {
		if wd < 0 || wd > 6 {
			return nil, NewValidationError("weekday %d is out of range 0-6", wd)
		}
		weekdays[time.Weekday(wd)] = struct{}{}
	}

	windowStart, err := parseClock(req.WindowStart)
	if err != nil {
		return nil, NewValidationError("window_start %q is not a valid time", req.WindowStart)
	}
	windowEnd, err := parseClock(req.WindowEnd)
	if err != nil {
		return nil, NewValidationError("window_end %q is not a valid time", req.WindowEnd)
	}
	if windowEnd <= windowStart {
		return nil, NewValidationError("window_end must be after window_start")
	}

	if _, ok := allowedDurations[req.DurationMinutes]; !ok {
		return nil, NewValidationError("duration %d is not supported (15, 20, 30, 45 or 60)", req.DurationMinutes)
	}
	step := time.Duration(req.DurationMinutes) * time.Minute

	var out []Candidate
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		if _, ok := weekdays[day.Weekday()]; !ok {
			continue
		}
		for offset := windowStart; offset+step <= windowEnd; offset += step {
			start := day.Add(offset)
			out = append(out, Candidate{
				StartsAt: start.UTC(),
				EndsAt:   start.Add(step).UTC(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// parseClock converts "HH:MM" into an offset from midnight.
func parseClock(value string) (time.Duration, error) {
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func civilMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
