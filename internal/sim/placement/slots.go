package placement

import (
	"math"
	"sort"

	"lumbercamp.ai/internal/sim/geom"
)

// Rand is the subset of *math/rand.Rand the allocator needs.
type Rand interface {
	Float64() float64
}

// SlotAllocator spreads harvesters around a resource node.
type SlotAllocator struct {
	MinRange float64
	MaxRange float64
}

// Slot is an approach point around a node.
type Slot struct {
	Angle    float64 // in [0, 2π), measured from the node
	Distance float64
	Pos      geom.Vec2
	// Gap is the angular gap the slot was placed in; 0 when there were no neighbours.
	Gap float64
}

// Allocate picks a slot for self around node. claimed holds the points of
// workers already harvesting (or walking to) the node; self is skipped.
func (s SlotAllocator) Allocate(self string, node, from geom.Vec2, claimed []Occupant, rng Rand) Slot {
	angles := make([]float64, 0, len(claimed))
	for _, c := range claimed {
		if c.ID == self {
			continue
		}
		angles = append(angles, geom.NormalizeAngle(node.AngleTo(c.Pos)))
	}

	if len(angles) == 0 {
		// Nearest point on the approach line.
		a := geom.NormalizeAngle(node.AngleTo(from))
		if from == node {
			a = 0
		}
		return Slot{Angle: a, Distance: s.MinRange, Pos: node.Polar(a, s.MinRange)}
	}

	angle, gap := LargestGap(angles)
	d := s.MinRange
	if s.MaxRange > s.MinRange && rng != nil {
		d += rng.Float64() * (s.MaxRange - s.MinRange)
	}
	return Slot{Angle: angle, Distance: d, Pos: node.Polar(angle, d), Gap: gap}
}

// LargestGap returns the midpoint and width of the widest angular gap between
// the given angles, including the gap that wraps across 0/2π. angles must be
// non-empty; they need not be sorted or normalized.
func LargestGap(angles []float64) (mid, gap float64) {
	sorted := make([]float64, len(angles))
	for i, a := range angles {
		sorted[i] = geom.NormalizeAngle(a)
	}
	sort.Float64s(sorted)

	last := sorted[len(sorted)-1]
	gap = sorted[0] + 2*math.Pi - last
	mid = last + gap/2
	for i := 1; i < len(sorted); i++ {
		g := sorted[i] - sorted[i-1]
		if g > gap {
			gap = g
			mid = sorted[i-1] + g/2
		}
	}
	return geom.NormalizeAngle(mid), gap
}
