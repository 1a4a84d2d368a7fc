package placement

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"lumbercamp.ai/internal/sim/geom"
)

const radius = 40.0

func TestResolve_DirectWhenClear(t *testing.T) {
	r := Resolver{Radius: radius}
	target := geom.V(100, 100)
	got, how := r.Resolve("W1", target, geom.V(0, 0), []Occupant{
		{ID: "W1", Pos: target}, // self never conflicts
		{ID: "W2", Pos: geom.V(300, 300)},
	})
	require.Equal(t, Direct, how)
	require.Equal(t, target, got)
}

func TestResolve_SpiralKeepsSeparation(t *testing.T) {
	r := Resolver{Radius: radius}
	occ := []Occupant{
		{ID: "W2", Pos: geom.V(100, 100)},
		{ID: "W3", Pos: geom.V(130, 100)},
	}
	got, how := r.Resolve("W1", geom.V(100, 100), geom.V(0, 100), occ)
	require.Equal(t, Spiral, how)
	for _, o := range occ {
		require.GreaterOrEqual(t, got.Dist(o.Pos), radius, "too close to %s", o.ID)
	}
}

func TestResolve_IsDeterministicAcrossOrder(t *testing.T) {
	r := Resolver{Radius: radius}
	a := []Occupant{{ID: "W2", Pos: geom.V(0, 0)}, {ID: "W3", Pos: geom.V(10, 0)}, {ID: "W4", Pos: geom.V(0, 10)}}
	b := []Occupant{a[2], a[0], a[1]}
	p1, _ := r.Resolve("W1", geom.V(5, 5), geom.V(-50, -50), a)
	p2, _ := r.Resolve("W1", geom.V(5, 5), geom.V(-50, -50), b)
	require.Equal(t, p1, p2)
}

func TestResolve_FallbackOffsetsFromNearest(t *testing.T) {
	r := Resolver{Radius: radius}
	// A dense grid covering every spiral probe (probe radii reach 3*radius).
	var occ []Occupant
	n := 0
	for x := -200.0; x <= 200; x += 20 {
		for y := -200.0; y <= 200; y += 20 {
			n++
			occ = append(occ, Occupant{ID: idFor(n), Pos: geom.V(x, y)})
		}
	}
	target := geom.V(5, 0)
	got, how := r.Resolve("W0", target, geom.V(-100, 0), occ)
	require.Equal(t, Fallback, how)

	// Nearest occupant to (5,0) is the one at the origin.
	require.InDelta(t, radius, got.Dist(geom.V(0, 0)), 1e-9)
	require.InDelta(t, 0, geom.V(0, 0).AngleTo(got), 1e-9)
}

func TestResolve_FallbackTieBreaksByID(t *testing.T) {
	r := Resolver{Radius: radius}
	var occ []Occupant
	n := 100
	for x := -200.0; x <= 200; x += 20 {
		for y := -200.0; y <= 200; y += 20 {
			n++
			occ = append(occ, Occupant{ID: idFor(n), Pos: geom.V(x, y)})
		}
	}
	// (10,0) is equidistant from (0,0) and (20,0).
	target := geom.V(10, 0)
	var low, high string
	for _, o := range occ {
		if o.Pos == geom.V(0, 0) {
			low = o.ID
		}
		if o.Pos == geom.V(20, 0) {
			high = o.ID
		}
	}
	require.Less(t, low, high)
	got, how := r.Resolve("W0", target, geom.V(-100, 0), occ)
	require.Equal(t, Fallback, how)
	require.InDelta(t, radius, got.Dist(geom.V(0, 0)), 1e-9)
}

func TestAllocate_FirstHarvesterApproachesDirectly(t *testing.T) {
	s := SlotAllocator{MinRange: 35, MaxRange: 38}
	node := geom.V(200, 0)
	slot := s.Allocate("W1", node, geom.V(0, 0), nil, rand.New(rand.NewSource(1)))
	require.InDelta(t, 35, slot.Distance, 1e-9)
	require.InDelta(t, 165, slot.Pos.X, 1e-9)
	require.InDelta(t, 0, slot.Pos.Y, 1e-9)
}

func TestAllocate_OppositeOfSingleHarvester(t *testing.T) {
	s := SlotAllocator{MinRange: 35, MaxRange: 38}
	node := geom.V(0, 0)
	claimed := []Occupant{{ID: "W2", Pos: node.Polar(0, 36)}}
	slot := s.Allocate("W1", node, geom.V(-100, 0), claimed, rand.New(rand.NewSource(7)))
	require.InDelta(t, math.Pi, slot.Angle, 1e-9)
	require.GreaterOrEqual(t, slot.Distance, 35.0)
	require.LessOrEqual(t, slot.Distance, 38.0)
}

func TestAllocate_LargestGapIsChosen(t *testing.T) {
	s := SlotAllocator{MinRange: 35, MaxRange: 38}
	node := geom.V(0, 0)
	taken := []float64{0.1, 0.9, 1.2, 4.0}
	var claimed []Occupant
	for i, a := range taken {
		claimed = append(claimed, Occupant{ID: idFor(i + 2), Pos: node.Polar(a, 36)})
	}
	slot := s.Allocate("W1", node, geom.V(50, 50), claimed, rand.New(rand.NewSource(3)))

	// Compare against every sampled alternative angle: none gets a larger
	// distance to its nearest neighbour.
	nearest := func(a float64) float64 {
		best := math.Inf(1)
		for _, t := range taken {
			best = math.Min(best, geom.AngularDistance(a, t))
		}
		return best
	}
	got := nearest(slot.Angle)
	require.InDelta(t, slot.Gap/2, got, 1e-9)
	for i := 0; i < 360; i++ {
		alt := float64(i) * 2 * math.Pi / 360
		require.LessOrEqual(t, nearest(alt), got+1e-9, "alt angle %v beats slot", alt)
	}
}

func TestLargestGap_WrapsAcrossZero(t *testing.T) {
	mid, gap := LargestGap([]float64{1, 2, 3})
	require.InDelta(t, 2*math.Pi-2, gap, 1e-9)
	require.InDelta(t, geom.NormalizeAngle(3+(2*math.Pi-2)/2), mid, 1e-9)
}

func idFor(n int) string {
	return "W" + string(rune('A'+n/26%26)) + string(rune('A'+n%26)) + string(rune('0'+n/676%10))
}
