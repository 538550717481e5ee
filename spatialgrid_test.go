package talon

import (
	"testing"

	"github.com/akmonengine/talon/actor"
	"github.com/go-gl/mathgl/mgl64"
)

func TestSpatialGridCollectPairs(t *testing.T) {
	w := testWorld()
	a := addSphere(w, mgl64.Vec3{0, 0, 0}, 1, actor.MobilityDynamic)
	b := addSphere(w, mgl64.Vec3{1.5, 0, 0}, 1, actor.MobilityDynamic)
	addSphere(w, mgl64.Vec3{50, 0, 0}, 1, actor.MobilityDynamic)

	w.SpatialGrid.Update(w.Bodies, w.Shapes)
	pairs := w.SpatialGrid.CollectPairs(nil)

	if len(pairs) != 1 {
		t.Fatalf("expected exactly one candidate pair, got %d", len(pairs))
	}
	handles := map[actor.Handle]bool{
		pairs[0].A.Handle(): true,
		pairs[0].B.Handle(): true,
	}
	if !handles[a] || !handles[b] {
		t.Errorf("expected the overlapping pair (%v, %v), got %+v", a, b, pairs[0])
	}

	t.Run("static static pairs skipped", func(t *testing.T) {
		w := testWorld()
		addGroundBox(w, mgl64.Vec3{5, 0.5, 5}, mgl64.Vec3{0, 0, 0})
		addGroundBox(w, mgl64.Vec3{5, 0.5, 5}, mgl64.Vec3{1, 0, 0})

		w.SpatialGrid.Update(w.Bodies, w.Shapes)
		if pairs := w.SpatialGrid.CollectPairs(nil); len(pairs) != 0 {
			t.Errorf("expected no static-static pairs, got %d", len(pairs))
		}
	})

	t.Run("speculative margin inflates bounds", func(t *testing.T) {
		w := testWorld()
		// A gap of 0.15 with margins of 0.1 each: inflated bounds overlap.
		addSphere(w, mgl64.Vec3{0, 0, 0}, 1, actor.MobilityDynamic)
		addSphere(w, mgl64.Vec3{2.15, 0, 0}, 1, actor.MobilityDynamic)

		w.SpatialGrid.Update(w.Bodies, w.Shapes)
		if pairs := w.SpatialGrid.CollectPairs(nil); len(pairs) != 1 {
			t.Errorf("expected the near pair captured by the margin, got %d", len(pairs))
		}
	})

	t.Run("deterministic order across rebuilds", func(t *testing.T) {
		w := testWorld()
		for i := 0; i < 8; i++ {
			addSphere(w, mgl64.Vec3{float64(i) * 1.2, 0, 0}, 1, actor.MobilityDynamic)
		}
		w.SpatialGrid.Update(w.Bodies, w.Shapes)
		first := w.SpatialGrid.CollectPairs(nil)
		w.SpatialGrid.Update(w.Bodies, w.Shapes)
		second := w.SpatialGrid.CollectPairs(nil)

		if len(first) != len(second) {
			t.Fatalf("pair counts differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Errorf("pair %d differs between rebuilds: %+v vs %+v", i, first[i], second[i])
			}
		}
	})
}
