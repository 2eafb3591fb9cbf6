package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func newTestStore(t *testing.T) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s, err := OpenSnapshotStore(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()), time.Minute)
	if err != nil {
		t.Fatalf("OpenSnapshotStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestSnapshotSaveLoad(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	snap := arenadto.Snapshot{
		SessionID:  "s1",
		Seq:        3,
		FEN:        "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1",
		SideToMove: "black",
		MovesUCI:   []string{"e2e4"},
		Clocks:     arenadto.Clocks{WhiteMillis: 299000, BlackMillis: 300000, Active: "black", Running: true},
	}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "s1")
	if err != nil || got == nil {
		t.Fatalf("Load: %v %v", got, err)
	}
	if diff := cmp.Diff(snap.MovesUCI, got.MovesUCI); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if got.Clocks != snap.Clocks || got.FEN != snap.FEN {
		t.Fatalf("loaded = %+v", got)
	}
	if ttl := mr.TTL(snapshotKey("s1")); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	stale := snap
	stale.Seq = 2
	stale.SideToMove = "white"
	if err := s.Save(ctx, stale); err != nil {
		t.Fatalf("Save stale: %v", err)
	}
	got, _ = s.Load(ctx, "s1")
	if got.Seq != 3 || got.SideToMove != "black" {
		t.Fatalf("older snapshot replaced newer: %+v", got)
	}
}

func TestSnapshotLoadMissing(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Load(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("Load missing = %v, %v", got, err)
	}
	if err := s.Save(context.Background(), arenadto.Snapshot{}); err == nil {
		t.Fatalf("snapshot without id accepted")
	}
}

func TestSessionsPrunesExpired(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := s.Save(ctx, arenadto.Snapshot{SessionID: id, Seq: 1}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	mr.Del(snapshotKey("a"))
	ids, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, ids); diff != "" {
		t.Fatalf("sessions (-want +got):\n%s", diff)
	}
	if ok, _ := mr.SIsMember(sessionsKey(), "a"); ok {
		t.Fatalf("stale index entry kept")
	}
	if err := s.Forget(ctx, "b"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if ids, _ := s.Sessions(ctx); len(ids) != 0 {
		t.Fatalf("sessions after forget = %v", ids)
	}
}

func TestParseRedisURL(t *testing.T) {
	cases := []struct {
		in   string
		want redis.Options
	}{
		{"redis://localhost", redis.Options{Addr: "localhost:6379"}},
		{"redis://:secret@cache:6380/2", redis.Options{Addr: "cache:6380", Password: "secret", DB: 2}},
		{"rediss://user:pw@h:1/0", redis.Options{Addr: "h:1", Username: "user", Password: "pw"}},
	}
	for _, tc := range cases {
		got, err := ParseRedisURL(tc.in)
		if err != nil {
			t.Fatalf("ParseRedisURL(%q): %v", tc.in, err)
		}
		if got.Addr != tc.want.Addr || got.Password != tc.want.Password || got.DB != tc.want.DB || got.Username != tc.want.Username {
			t.Fatalf("ParseRedisURL(%q) = %+v", tc.in, got)
		}
	}
	for _, bad := range []string{"http://x", "redis://h/abc"} {
		if _, err := ParseRedisURL(bad); err == nil {
			t.Fatalf("ParseRedisURL(%q) accepted", bad)
		}
	}
}

func TestMemoryRepositoryUpsert(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	g := &domain.FinishedGame{SessionID: "s1", Result: "abandoned", MovesUCI: []string{"e2e4"}, EndedAt: base}
	id1, err := repo.Save(ctx, g)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	g.Result = "checkmate"
	g.MovesUCI[0] = "d2d4"
	id2, _ := repo.Save(ctx, g)
	if id1 != id2 {
		t.Fatalf("upsert changed id %d -> %d", id1, id2)
	}
	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Result != "checkmate" || got.MovesUCI[0] != "d2d4" {
		t.Fatalf("got = %+v", got)
	}
	got.MovesUCI[0] = "zzzz"
	again, _ := repo.Get(ctx, "s1")
	if again.MovesUCI[0] != "d2d4" {
		t.Fatalf("repository shares slices with callers")
	}

	_, _ = repo.Save(ctx, &domain.FinishedGame{SessionID: "s2", EndedAt: base.Add(time.Hour)})
	_, _ = repo.Save(ctx, &domain.FinishedGame{SessionID: "s3", EndedAt: base.Add(-time.Hour)})
	recent, _ := repo.Recent(ctx, 2)
	if len(recent) != 2 || recent[0].SessionID != "s2" || recent[1].SessionID != "s1" {
		t.Fatalf("recent = %v", recent)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("missing game: %v", err)
	}
}
