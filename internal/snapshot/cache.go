package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/obstacle-panel/backend/internal/model"
	"github.com/obstacle-panel/backend/internal/storage"
)

// Store persists the snapshot blob.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Cache is the process-wide LocalSnapshot. Read and Write are its only entry
// points; Update composes them under one lock.
type Cache struct {
	store    Store
	key      string
	ledCount int
	now      func() time.Time
	logger   *slog.Logger

	mu sync.Mutex
}

func New(store Store, ledCount int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ledCount <= 0 {
		ledCount = model.DefaultLEDCount
	}
	return &Cache{
		store:    store,
		key:      model.SnapshotKey,
		ledCount: ledCount,
		now:      time.Now,
		logger:   logger,
	}
}

// Read returns the persisted snapshot, creating the default one when nothing
// usable is stored.
func (c *Cache) Read(ctx context.Context) (model.LocalSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(ctx)
}

// Write shallow-merges partial into the stored snapshot and persists it.
func (c *Cache) Write(ctx context.Context, partial model.Partial) (model.LocalSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, err := c.readLocked(ctx)
	if err != nil {
		return model.LocalSnapshot{}, err
	}
	return c.writeLocked(ctx, cur, partial)
}

// Update computes a partial from the current snapshot and writes it without
// letting another writer interleave. It returns the snapshot before and after.
func (c *Cache) Update(ctx context.Context, fn func(cur model.LocalSnapshot) (model.Partial, error)) (model.LocalSnapshot, model.LocalSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, err := c.readLocked(ctx)
	if err != nil {
		return model.LocalSnapshot{}, model.LocalSnapshot{}, err
	}
	partial, err := fn(cur.Clone())
	if err != nil {
		return cur, cur, err
	}
	next, err := c.writeLocked(ctx, cur, partial)
	if err != nil {
		return cur, cur, err
	}
	return cur, next, nil
}

// Reset drops the stored blob and seeds the default snapshot in its place.
func (c *Cache) Reset(ctx context.Context) (model.LocalSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(ctx, c.key); err != nil {
		return model.LocalSnapshot{}, fmt.Errorf("delete snapshot: %w", err)
	}
	return c.seedLocked(ctx)
}

func (c *Cache) readLocked(ctx context.Context) (model.LocalSnapshot, error) {
	raw, err := c.store.Get(ctx, c.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.seedLocked(ctx)
	case err != nil:
		return model.LocalSnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap model.LocalSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn("discarding corrupt snapshot", "key", c.key, "err", err)
		return c.seedLocked(ctx)
	}
	if len(snap.LEDs) == 0 {
		snap.LEDs = make([]bool, c.ledCount)
	}
	if snap.History == nil {
		snap.History = []model.HistoryPoint{}
	}
	return snap, nil
}

func (c *Cache) seedLocked(ctx context.Context) (model.LocalSnapshot, error) {
	snap := model.DefaultSnapshot(c.ledCount, c.now())
	if err := c.persist(ctx, snap); err != nil {
		return model.LocalSnapshot{}, err
	}
	return snap, nil
}

func (c *Cache) writeLocked(ctx context.Context, cur model.LocalSnapshot, partial model.Partial) (model.LocalSnapshot, error) {
	now := c.now().UTC()
	next := cur.Clone()
	if partial.LEDs != nil {
		next.LEDs = slices.Clone(*partial.LEDs)
	}
	if partial.Foco != nil {
		next.Foco = *partial.Foco
	}
	if partial.Sensor != nil {
		next.Sensor = *partial.Sensor
	}
	if partial.History != nil {
		next.History = slices.Clone(*partial.History)
	}
	if partial.ObstacleCount != nil {
		next.ObstacleCount = *partial.ObstacleCount
		if *partial.ObstacleCount != cur.ObstacleCount {
			next.History = append(next.History, model.HistoryPoint{Timestamp: now, ObstacleCount: *partial.ObstacleCount})
		}
	}
	if next.History == nil {
		next.History = []model.HistoryPoint{}
	}
	if over := len(next.History) - model.SnapshotHistoryLimit; over > 0 {
		next.History = slices.Clone(next.History[over:])
	}
	next.LastUpdate = now

	if err := c.persist(ctx, next); err != nil {
		return model.LocalSnapshot{}, err
	}
	return next, nil
}

func (c *Cache) persist(ctx context.Context, snap model.LocalSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.store.Put(ctx, c.key, body); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
