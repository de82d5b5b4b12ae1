package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// SlotCache keeps short-lived per-doctor/per-date slot lists in Redis. The
// cache stores the raw open blocks of the date; the same-day lead-time cutoff
// is applied on every read so entries do not go stale as the clock advances.
//
// Every block mutation must invalidate the affected dates synchronously, so a
// patient never books from a list the store has already contradicted.
type SlotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewSlotCache creates a cache with the given TTL.
func NewSlotCache(client *redis.Client, ttl time.Duration, logger *logging.Logger) *SlotCache {
	if client == nil {
		panic("scheduling: redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached slot list for doctor/date, or ok=false on a miss.
// Redis failures are treated as misses.
func (c *SlotCache) Get(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, bool) {
	data, err := c.client.Get(ctx, slotKey(doctorID, date)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("slot cache read failed", "error", err, "doctor_id", doctorID, "date", date)
		}
		return nil, false
	}
	var slots []Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		c.logger.Warn("slot cache entry corrupt", "error", err, "doctor_id", doctorID, "date", date)
		return nil, false
	}
	return slots, true
}

// Set stores the slot list for doctor/date. Best effort.
func (c *SlotCache) Set(ctx context.Context, doctorID uuid.UUID, date string, slots []Slot) {
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, slotKey(doctorID, date), data, c.ttl).Err(); err != nil {
		c.logger.Warn("slot cache write failed", "error", err, "doctor_id", doctorID, "date", date)
	}
}

// Invalidate drops the cached lists for the given dates.
func (c *SlotCache) Invalidate(ctx context.Context, doctorID uuid.UUID, dates ...string) {
	if len(dates) == 0 {
		return
	}
	keys := make([]string, 0, len(dates))
	seen := make(map[string]struct{}, len(dates))
	for _, date := range dates {
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		keys = append(keys, slotKey(doctorID, date))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("slot cache invalidation failed", "error", err, "doctor_id", doctorID)
	}
}

func slotKey(doctorID uuid.UUID, date string) string {
	return fmt.Sprintf("slots:%s:%s", doctorID, date)
}
