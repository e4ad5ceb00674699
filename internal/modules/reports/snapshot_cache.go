package reports

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sandoghapp/sandogh/internal/database"
	"github.com/sandoghapp/sandogh/internal/events"
)

// snapshotTTL bounds staleness for snapshots that survive invalidation,
// e.g. when the process restarts between a write and the next read.
const snapshotTTL = 15 * time.Minute

// SnapshotCache stores computed reports in cache.db as msgpack blobs and
// drops them all whenever the ledger changes. Snapshots are always
// recomputable from the ledger.
type SnapshotCache struct {
	cacheDB *database.DB
	bus     *events.Bus
	log     zerolog.Logger
	done    chan struct{}
	subID   string
}

// NewSnapshotCache creates a snapshot cache. When bus is non-nil the cache
// subscribes to ledger events and invalidates itself on every mutation.
func NewSnapshotCache(cacheDB *database.DB, bus *events.Bus, log zerolog.Logger) *SnapshotCache {
	c := &SnapshotCache{
		cacheDB: cacheDB,
		bus:     bus,
		log:     log.With().Str("component", "report_cache").Logger(),
		done:    make(chan struct{}),
	}

	if bus != nil {
		var ch <-chan events.Event
		c.subID, ch = bus.Subscribe(16)
		go c.watch(ch)
	}

	return c
}

// watch invalidates the cache on every ledger mutation event
func (c *SnapshotCache) watch(ch <-chan events.Event) {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			switch event.Type {
			case events.TransactionCreated, events.TransactionUpdated, events.TransactionReversed, events.AccountUpdated:
				if err := c.InvalidateAll(); err != nil {
					c.log.Warn().Err(err).Msg("Failed to invalidate report snapshots")
				}
			}
		}
	}
}

// Close stops the event subscription
func (c *SnapshotCache) Close() {
	if c.bus != nil {
		c.bus.Unsubscribe(c.subID)
	}
	close(c.done)
}

// Get loads a snapshot into dest. The bool reports whether a fresh snapshot
// existed.
func (c *SnapshotCache) Get(key string, dest interface{}) (bool, error) {
	var payload []byte
	var createdAt int64

	err := c.cacheDB.QueryRow(
		"SELECT payload, created_at FROM report_snapshots WHERE key = ?", key,
	).Scan(&payload, &createdAt)
	if err != nil {
		return false, nil // Miss, including scan errors on an empty table
	}

	if time.Since(time.Unix(createdAt, 0)) > snapshotTTL {
		return false, nil
	}

	if err := msgpack.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to decode report snapshot %s: %w", key, err)
	}

	return true, nil
}

// Set stores a snapshot, replacing any previous one under the same key
func (c *SnapshotCache) Set(key string, value interface{}) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode report snapshot %s: %w", key, err)
	}

	_, err = c.cacheDB.Exec(`
		INSERT INTO report_snapshots (key, payload, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
	`, key, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store report snapshot %s: %w", key, err)
	}

	return nil
}

// InvalidateAll drops every stored snapshot
func (c *SnapshotCache) InvalidateAll() error {
	if _, err := c.cacheDB.Exec("DELETE FROM report_snapshots"); err != nil {
		return fmt.Errorf("failed to clear report snapshots: %w", err)
	}
	return nil
}
