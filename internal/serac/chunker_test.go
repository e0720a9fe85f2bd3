package serac_test

import (
	"testing"
	"time"

	"serac-go/internal/model"
	"serac-go/internal/serac"
	"serac-go/internal/testutil"
)

func TestChunkIDGenerator(t *testing.T) {
	t.Run("sequence numbers within a run", func(t *testing.T) {
		g := serac.NewChunkIDGenerator(testutil.NewStubClock(epoch), "")
		want := []model.ChunkID{"20240706-114654-000000", "20240706-114654-000001", "20240706-114654-000002"}
		for i, w := range want {
			if got := g.Next(); got != w {
				t.Errorf("Next() #%d = %s, want %s", i, got, w)
			}
		}
	})

	t.Run("time moves on", func(t *testing.T) {
		clock := testutil.NewStubClock(epoch)
		g := serac.NewChunkIDGenerator(clock, "20240101-000000-000005")
		first := g.Next()
		clock.Advance(90 * time.Second)
		second := g.Next()
		if first != "20240706-114654-000000" || second != "20240706-114824-000001" {
			t.Errorf("ids = %s, %s", first, second)
		}
	})

	t.Run("prior chunk in the same second", func(t *testing.T) {
		g := serac.NewChunkIDGenerator(testutil.NewStubClock(epoch), "20240706-114654-000337")
		if got := g.Next(); got != "20240706-114654-000338" {
			t.Errorf("Next() = %s, want 20240706-114654-000338", got)
		}
		if got := g.Next(); got != "20240706-114654-000339" {
			t.Errorf("Next() = %s, want 20240706-114654-000339", got)
		}
	})

	t.Run("clock behind the destination", func(t *testing.T) {
		g := serac.NewChunkIDGenerator(testutil.NewStubClock(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)), "20240706-114654-000001")
		prev := model.ChunkID("20240706-114654-000001")
		for range 3 {
			got := g.Next()
			if got <= prev {
				t.Fatalf("Next() = %s, not after %s", got, prev)
			}
			prev = got
		}
		if prev != "20240706-114654-000004" {
			t.Errorf("third id = %s, want 20240706-114654-000004", prev)
		}
	})

	t.Run("clock stepped back during a run", func(t *testing.T) {
		clock := testutil.NewStubClock(epoch)
		g := serac.NewChunkIDGenerator(clock, "")
		first := g.Next()
		clock.Advance(-time.Minute)
		if second := g.Next(); second != "20240706-114654-000001" {
			t.Errorf("Next() after %s = %s, want 20240706-114654-000001", first, second)
		}
	})

	t.Run("sequence exhausted in the last id", func(t *testing.T) {
		g := serac.NewChunkIDGenerator(testutil.NewStubClock(epoch), "20240706-114654-999999")
		if got := g.Next(); got != "20240706-114655-000000" {
			t.Errorf("Next() = %s, want 20240706-114655-000000", got)
		}
	})

	t.Run("ids parse", func(t *testing.T) {
		g := serac.NewChunkIDGenerator(testutil.NewStubClock(epoch), "")
		if _, err := model.ParseChunkID(string(g.Next())); err != nil {
			t.Errorf("generated id does not parse: %v", err)
		}
	})
}
