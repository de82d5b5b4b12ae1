package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// DB abstracts the pgx pool interface so pgxmock can stand in for tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const blockColumns = `id, doctor_id, starts_at, ends_at, available, disabled_reason, appointment_id, created_at`

// Store persists availability blocks and owns every state change on them:
// bulk generation, enable/disable, bulk deletion and the atomic claim/release
// used by the booking flow.
type Store struct {
	db     DB
	gen    *Generator
	loc    *time.Location
	cache  *SlotCache
	logger *logging.Logger
}

// NewStore creates a block store evaluating civil dates in loc.
func NewStore(db DB, gen *Generator, loc *time.Location, logger *logging.Logger) *Store {
	if db == nil {
		panic("scheduling: db required")
	}
	if gen == nil {
		panic("scheduling: generator required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, gen: gen, loc: loc, logger: logger}
}

// WithCache attaches a slot cache; the store invalidates it synchronously on
// every mutation.
func (s *Store) WithCache(cache *SlotCache) *Store {
	s.cache = cache
	return s
}

// GenerateResult reports a successful bulk generation.
type GenerateResult struct {
	BlocksGenerated int    `json:"blocks_generated"`
	RangeUsed       string `json:"range_used"`
}

// Generate expands the pattern and persists every candidate in one
// transaction. If any candidate overlaps an existing block of the doctor the
// whole request is rejected with a ConflictError naming the first collision;
// nothing is committed.
func (s *Store) Generate(ctx context.Context, req GenerationRequest) (*GenerateResult, error) {
	candidates, err := s.gen.Expand(req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, NewValidationError("pattern yields no blocks for the requested range")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin generation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	first := candidates[0].StartsAt
	last := candidates[len(candidates)-1].EndsAt
	existing, err := s.loadIntervals(ctx, tx, req.DoctorID, first, last)
	if err != nil {
		return nil, err
	}
	if collision := firstOverlap(candidates, existing); collision != nil {
		return nil, NewConflictError("interval %s overlaps an existing block", s.formatInterval(*collision))
	}

	now := time.Now().UTC()
	for _, c := range candidates {
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_blocks (id, doctor_id, starts_at, ends_at, available, created_at)
			VALUES ($1, $2, $3, $4, TRUE, $5)`,
			uuid.New(), req.DoctorID, c.StartsAt, c.EndsAt, now,
		); err != nil {
			if isExclusionViolation(err) {
				return nil, NewConflictError("interval %s overlaps an existing block", s.formatInterval(c))
			}
			return nil, fmt.Errorf("scheduling: insert block: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return nil, NewConflictError("a concurrent generation created an overlapping block")
		}
		return nil, fmt.Errorf("scheduling: commit generation: %w", err)
	}

	s.invalidateDates(ctx, req.DoctorID, candidateDates(candidates, s.loc))
	s.logger.Info("blocks generated",
		"doctor_id", req.DoctorID,
		"count", len(candidates),
		"start_date", req.StartDate,
		"end_date", req.EndDate,
	)
	return &GenerateResult{
		BlocksGenerated: len(candidates),
		RangeUsed:       req.StartDate + ".." + req.EndDate,
	}, nil
}

// List returns the doctor's blocks grouped per civil date with per-date
// counts. The filter may name an exact date or a from/to range; an empty
// filter lists everything.
func (s *Store) List(ctx context.Context, doctorID uuid.UUID, filter BlockFilter) ([]DayBlocks, error) {
	query := `SELECT ` + blockColumns + ` FROM availability_blocks WHERE doctor_id = $1`
	args := []any{doctorID}

	if filter.Date != "" {
		from, to, err := s.dayBounds(filter.Date)
		if err != nil {
			return nil, err
		}
		query += ` AND starts_at >= $2 AND starts_at < $3`
		args = append(args, from, to)
	} else {
		if filter.DateFrom != "" {
			from, _, err := s.dayBounds(filter.DateFrom)
			if err != nil {
				return nil, err
			}
			args = append(args, from)
			query += fmt.Sprintf(` AND starts_at >= $%d`, len(args))
		}
		if filter.DateTo != "" {
			_, to, err := s.dayBounds(filter.DateTo)
			if err != nil {
				return nil, err
			}
			args = append(args, to)
			query += fmt.Sprintf(` AND starts_at < $%d`, len(args))
		}
	}
	query += ` ORDER BY starts_at ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list blocks: %w", err)
	}
	defer rows.Close()

	blocks, err := scanBlocks(rows)
	if err != nil {
		return nil, err
	}
	return s.groupByDate(blocks), nil
}

// GetBlock loads one block by id.
func (s *Store) GetBlock(ctx context.Context, blockID uuid.UUID) (*Block, error) {
	row := s.db.QueryRow(ctx, `SELECT `+blockColumns+` FROM availability_blocks WHERE id = $1`, blockID)
	b, err := scanBlock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "block", ID: blockID.String()}
		}
		return nil, fmt.Errorf("scheduling: load block: %w", err)
	}
	return b, nil
}

// Enable returns a block to the available pool and clears its disabled
// reason. Enabling never creates a conflict, so it is always permitted.
func (s *Store) Enable(ctx context.Context, blockID uuid.UUID) (*Block, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE availability_blocks
		SET available = TRUE, disabled_reason = NULL
		WHERE id = $1
		RETURNING `+blockColumns, blockID)
	b, err := scanBlock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "block", ID: blockID.String()}
		}
		return nil, fmt.Errorf("scheduling: enable block: %w", err)
	}
	s.invalidateBlock(ctx, b)
	return b, nil
}

// Disable takes a block out of the pool with a reason. Blocks holding a
// non-cancelled appointment are protected.
func (s *Store) Disable(ctx context.Context, blockID uuid.UUID, reason string) (*Block, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE availability_blocks
		SET available = FALSE, disabled_reason = $2
		WHERE id = $1 AND appointment_id IS NULL
		RETURNING `+blockColumns, blockID, reason)
	b, err := scanBlock(row)
	if err == nil {
		s.invalidateBlock(ctx, b)
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scheduling: disable block: %w", err)
	}

	// The update matched nothing: either the block does not exist or it is
	// held by an appointment.
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM availability_blocks WHERE id = $1)`, blockID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("scheduling: disable lookup: %w", err)
	}
	if !exists {
		return nil, &NotFoundError{Resource: "block", ID: blockID.String()}
	}
	return nil, NewProtectedResourceError("block %s holds an active appointment and cannot be disabled", blockID)
}

// BulkDelete removes the blocks matched by sel in one transaction. Blocks
// holding a non-cancelled appointment are skipped and counted, never removed.
func (s *Store) BulkDelete(ctx context.Context, doctorID uuid.UUID, sel DeleteSelection) (*DeleteResult, error) {
	if sel == nil {
		return nil, NewValidationError("a deletion criterion is required")
	}
	where, args, err := s.selectionClause(doctorID, sel)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin bulk delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var skipped int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM availability_blocks WHERE `+where+` AND appointment_id IS NOT NULL`,
		args...,
	).Scan(&skipped); err != nil {
		return nil, fmt.Errorf("scheduling: count protected blocks: %w", err)
	}

	rows, err := tx.Query(ctx,
		`DELETE FROM availability_blocks WHERE `+where+` AND appointment_id IS NULL RETURNING starts_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("scheduling: bulk delete: %w", err)
	}
	var dates []string
	deleted := 0
	for rows.Next() {
		var startsAt time.Time
		if err := rows.Scan(&startsAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scheduling: scan deleted block: %w", err)
		}
		deleted++
		dates = append(dates, startsAt.In(s.loc).Format(DateLayout))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: bulk delete rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("scheduling: commit bulk delete: %w", err)
	}

	s.invalidateDates(ctx, doctorID, dates)
	s.logger.Info("blocks deleted", "doctor_id", doctorID, "deleted", deleted, "skipped", skipped)
	return &DeleteResult{Deleted: deleted, Skipped: skipped}, nil
}

// ListOpenBlocks returns the doctor's available, unassigned blocks of one
// civil date as slots in ascending order. No lead-time filtering happens
// here; the slot service applies it on read.
func (s *Store) ListOpenBlocks(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error) {
	from, to, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, starts_at, ends_at FROM availability_blocks
		WHERE doctor_id = $1 AND available = TRUE AND appointment_id IS NULL
		  AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at ASC`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list open blocks: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.BlockID, &slot.Start, &slot.End); err != nil {
			return nil, fmt.Errorf("scheduling: scan open block: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: open block rows: %w", err)
	}
	return slots, nil
}

// Claim atomically reserves a block for an appointment. The conditional
// update is the only exclusivity point in the system: of N concurrent claims
// on one block exactly one can match the predicate.
func (s *Store) Claim(ctx context.Context, blockID, appointmentID uuid.UUID) (*Block, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE availability_blocks
		SET available = FALSE, appointment_id = $2
		WHERE id = $1 AND available = TRUE AND appointment_id IS NULL
		RETURNING `+blockColumns, blockID, appointmentID)
	b, err := scanBlock(row)
	if err == nil {
		s.invalidateBlock(ctx, b)
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scheduling: claim block: %w", err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM availability_blocks WHERE id = $1)`, blockID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("scheduling: claim lookup: %w", err)
	}
	if !exists {
		return nil, &NotFoundError{Resource: "block", ID: blockID.String()}
	}
	return nil, NewConflictError("this slot was just taken, pick another one")
}

// ReleaseByAppointment returns the block held by an appointment to the pool.
// Releasing an already released appointment is a no-op.
func (s *Store) ReleaseByAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	row := s.db.QueryRow(ctx, `
		UPDATE availability_blocks
		SET available = TRUE, appointment_id = NULL
		WHERE appointment_id = $1
		RETURNING doctor_id, starts_at`, appointmentID)
	var doctorID uuid.UUID
	var startsAt time.Time
	if err := row.Scan(&doctorID, &startsAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("scheduling: release block: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, doctorID, startsAt.In(s.loc).Format(DateLayout))
	}
	return nil
}

func (s *Store) selectionClause(doctorID uuid.UUID, sel DeleteSelection) (string, []any, error) {
	args := []any{doctorID}
	switch v := sel.(type) {
	case DeleteByIDs:
		if len(v.IDs) == 0 {
			return "", nil, NewValidationError("id selection must name at least one block")
		}
		args = append(args, v.IDs)
		return `doctor_id = $1 AND id = ANY($2)`, args, nil
	case DeleteSingleDate:
		from, to, err := s.dayBounds(v.Date)
		if err != nil {
			return "", nil, err
		}
		args = append(args, from, to)
		return `doctor_id = $1 AND starts_at >= $2 AND starts_at < $3`, args, nil
	case DeleteDateRange:
		from, _, err := s.dayBounds(v.From)
		if err != nil {
			return "", nil, err
		}
		_, to, err := s.dayBounds(v.To)
		if err != nil {
			return "", nil, err
		}
		args = append(args, from, to)
		return `doctor_id = $1 AND starts_at >= $2 AND starts_at < $3`, args, nil
	case DeleteAvailableInRange:
		from, _, err := s.dayBounds(v.From)
		if err != nil {
			return "", nil, err
		}
		_, to, err := s.dayBounds(v.To)
		if err != nil {
			return "", nil, err
		}
		args = append(args, from, to)
		return `doctor_id = $1 AND starts_at >= $2 AND starts_at < $3 AND available = TRUE`, args, nil
	default:
		return "", nil, NewValidationError("unsupported deletion criterion")
	}
}

func (s *Store) loadIntervals(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, from, to time.Time) ([]Candidate, error) {
	rows, err := tx.Query(ctx, `
		SELECT starts_at, ends_at FROM availability_blocks
		WHERE doctor_id = $1 AND ends_at > $2 AND starts_at < $3
		ORDER BY starts_at ASC`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: load existing intervals: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var iv Candidate
		if err := rows.Scan(&iv.StartsAt, &iv.EndsAt); err != nil {
			return nil, fmt.Errorf("scheduling: scan interval: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: interval rows: %w", err)
	}
	return out, nil
}

// firstOverlap returns the first candidate colliding with any existing
// interval. Both slices are sorted by start, so a single merge pass suffices.
func firstOverlap(candidates, existing []Candidate) *Candidate {
	j := 0
	for i := range candidates {
		for j < len(existing) && !existing[j].EndsAt.After(candidates[i].StartsAt) {
			j++
		}
		if j < len(existing) && existing[j].StartsAt.Before(candidates[i].EndsAt) {
			return &candidates[i]
		}
	}
	return nil
}

func (s *Store) groupByDate(blocks []Block) []DayBlocks {
	var out []DayBlocks
	index := map[string]int{}
	for _, b := range blocks {
		date := b.StartsAt.In(s.loc).Format(DateLayout)
		i, ok := index[date]
		if !ok {
			i = len(out)
			index[date] = i
			out = append(out, DayBlocks{Date: date})
		}
		out[i].Blocks = append(out[i].Blocks, b)
		out[i].Counts.Total++
		switch {
		case b.Reserved():
			out[i].Counts.Reserved++
		case b.Available:
			out[i].Counts.Available++
		default:
			out[i].Counts.Disabled++
		}
	}
	return out
}

func (s *Store) dayBounds(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, NewValidationError("date %q is not a valid date", date)
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// isExclusionViolation matches Postgres code 23P01, raised when an insert
// trips the blocks_no_overlap constraint under concurrent generation.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func (s *Store) formatInterval(c Candidate) string {
	start := c.StartsAt.In(s.loc)
	end := c.EndsAt.In(s.loc)
	return fmt.Sprintf("%s %s-%s", start.Format(DateLayout), start.Format(TimeLayout), end.Format(TimeLayout))
}

func (s *Store) invalidateBlock(ctx context.Context, b *Block) {
	if s.cache == nil || b == nil {
		return
	}
	s.cache.Invalidate(ctx, b.DoctorID, b.StartsAt.In(s.loc).Format(DateLayout))
}

func (s *Store) invalidateDates(ctx context.Context, doctorID uuid.UUID, dates []string) {
	if s.cache == nil || len(dates) == 0 {
		return
	}
	s.cache.Invalidate(ctx, doctorID, dates...)
}

func candidateDates(candidates []Candidate, loc *time.Location) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range candidates {
		date := c.StartsAt.In(loc).Format(DateLayout)
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		out = append(out, date)
	}
	return out
}

func scanBlock(row pgx.Row) (*Block, error) {
	var b Block
	if err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&b.StartsAt,
		&b.EndsAt,
		&b.Available,
		&b.DisabledReason,
		&b.AppointmentID,
		&b.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBlocks(rows pgx.Rows) ([]Block, error) {
	var out []Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan block: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: block rows: %w", err)
	}
	return out, nil
}
