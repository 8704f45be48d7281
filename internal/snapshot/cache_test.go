package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/obstacle-panel/backend/internal/model"
	"github.com/obstacle-panel/backend/internal/storage"
)

func newTestCache(t *testing.T) (*Cache, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	cache := New(store, 3, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return cache, store
}

func intPtr(v int) *int { return &v }

func TestReadCreatesDefaultWhenAbsent(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)

	snap, err := cache.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(snap.LEDs, []bool{false, false, false}) {
		t.Fatalf("unexpected default leds %v", snap.LEDs)
	}
	if snap.ObstacleCount != 0 || len(snap.History) != 0 {
		t.Fatalf("unexpected default snapshot %+v", snap)
	}
	if _, err := store.Get(ctx, model.SnapshotKey); err != nil {
		t.Fatalf("expected default snapshot persisted: %v", err)
	}
}

func TestReadTreatsCorruptBlobAsAbsent(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)
	if err := store.Put(ctx, model.SnapshotKey, []byte("{not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap, err := cache.Read(ctx)
	if err != nil {
		t.Fatalf("read should self-heal, got %v", err)
	}
	if len(snap.LEDs) != 3 {
		t.Fatalf("expected default leds, got %v", snap.LEDs)
	}

	raw, err := store.Get(ctx, model.SnapshotKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var healed model.LocalSnapshot
	if err := json.Unmarshal(raw, &healed); err != nil {
		t.Fatalf("expected healed blob to decode: %v", err)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingStore) Put(context.Context, string, []byte) error { return errors.New("disk gone") }
func (failingStore) Delete(context.Context, string) error { return errors.New("disk gone") }

type countingStore struct {
	*storage.MemoryStore
	deletes int
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.deletes++
	return s.MemoryStore.Delete(ctx, key)
}

func TestReadSurfacesStoreFailure(t *testing.T) {
	cache := New(failingStore{}, 3, nil)
	if _, err := cache.Read(context.Background()); err == nil {
		t.Fatal("expected store failure to surface")
	}
}

func TestWriteMergesAndStamps(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	before, err := cache.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	leds := []bool{true, false, true}
	foco := true
	next, err := cache.Write(ctx, model.Partial{LEDs: &leds, Foco: &foco})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !reflect.DeepEqual(next.LEDs, leds) || !next.Foco {
		t.Fatalf("merge failed: %+v", next)
	}
	if !next.LastUpdate.After(before.LastUpdate) {
		t.Fatalf("expected lastUpdate to advance")
	}
	if len(next.History) != 0 {
		t.Fatalf("expected no history sample without obstacleCount, got %+v", next.History)
	}

	leds[0] = false
	again, err := cache.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !again.LEDs[0] {
		t.Fatalf("cache shares the caller's slice")
	}
}

func TestWriteAppendsHistoryOnlyWhenCountChanges(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	if _, err := cache.Write(ctx, model.Partial{ObstacleCount: intPtr(0)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := cache.Write(ctx, model.Partial{ObstacleCount: intPtr(2)})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err = cache.Write(ctx, model.Partial{ObstacleCount: intPtr(2)})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(snap.History) != 1 || snap.History[0].ObstacleCount != 2 {
		t.Fatalf("expected a single sample for the change to 2, got %+v", snap.History)
	}
}

func TestWriteTrimsHistory(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	var snap model.LocalSnapshot
	var err error
	for i := 1; i <= model.SnapshotHistoryLimit+25; i++ {
		snap, err = cache.Write(ctx, model.Partial{ObstacleCount: intPtr(i)})
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if len(snap.History) != model.SnapshotHistoryLimit {
		t.Fatalf("expected %d samples, got %d", model.SnapshotHistoryLimit, len(snap.History))
	}
	if snap.History[0].ObstacleCount != 26 || snap.History[len(snap.History)-1].ObstacleCount != 125 {
		t.Fatalf("expected the most recent samples, got first=%d last=%d",
			snap.History[0].ObstacleCount, snap.History[len(snap.History)-1].ObstacleCount)
	}
}

func TestUpdateReturnsBeforeAndAfter(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	prev, next, err := cache.Update(ctx, func(cur model.LocalSnapshot) (model.Partial, error) {
		cur.LEDs[1] = !cur.LEDs[1]
		return model.Partial{LEDs: &cur.LEDs}, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if prev.LEDs[1] || !next.LEDs[1] {
		t.Fatalf("unexpected before/after: %v -> %v", prev.LEDs, next.LEDs)
	}
}

func TestUpdateAbortsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	boom := errors.New("boom")

	_, _, err := cache.Update(ctx, func(cur model.LocalSnapshot) (model.Partial, error) {
		return model.Partial{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestResetRestoresDefault(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	if _, err := cache.Write(ctx, model.Partial{ObstacleCount: intPtr(4)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := cache.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if snap.ObstacleCount != 0 || len(snap.History) != 0 {
		t.Fatalf("expected default snapshot, got %+v", snap)
	}
}

func TestResetDeletesBlobBeforeSeeding(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	cache := New(store, 3, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := store.Put(ctx, model.SnapshotKey, []byte(`{"leds":[true,true,true],"obstacleCount":9}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap, err := cache.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if store.deletes != 1 {
		t.Fatalf("expected one delete, got %d", store.deletes)
	}
	if !reflect.DeepEqual(snap.LEDs, []bool{false, false, false}) || snap.ObstacleCount != 0 {
		t.Fatalf("expected default snapshot, got %+v", snap)
	}
	raw, err := store.Get(ctx, model.SnapshotKey)
	if err != nil {
		t.Fatalf("expected default snapshot persisted: %v", err)
	}
	var persisted model.LocalSnapshot
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("decode persisted: %v", err)
	}
	if persisted.ObstacleCount != 0 {
		t.Fatalf("persisted count = %d, want 0", persisted.ObstacleCount)
	}
}

func TestResetSurfacesDeleteFailure(t *testing.T) {
	if _, err := New(failingStore{}, 3, nil).Reset(context.Background()); err == nil {
		t.Fatalf("expected delete failure to surface")
	}
}
