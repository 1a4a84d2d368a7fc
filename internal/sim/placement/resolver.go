package placement

import (
	"math"
	"sort"

	"lumbercamp.ai/internal/sim/geom"
)

const (
	spiralAngleStep     = math.Pi / 8
	spiralProbesPerRing = 8
	spiralMaxProbes     = 32
)

// Occupant is another worker's claim on space: its target while moving,
// its position otherwise.
type Occupant struct {
	ID  string
	Pos geom.Vec2
}

// Resolver finds collision-free movement targets.
type Resolver struct {
	// Radius is the minimum center-to-center distance between workers.
	Radius float64
}

// Resolution reports how a target was chosen.
type Resolution int

const (
	Direct Resolution = iota
	Spiral
	Fallback
)

func (r Resolution) String() string {
	switch r {
	case Direct:
		return "direct"
	case Spiral:
		return "spiral"
	case Fallback:
		return "fallback"
	}
	return "unknown"
}

// Resolve returns a point near target that keeps Radius from every occupant
// other than self. from seeds the spiral direction.
func (r Resolver) Resolve(self string, target, from geom.Vec2, occupants []Occupant) (geom.Vec2, Resolution) {
	others := make([]Occupant, 0, len(occupants))
	for _, o := range occupants {
		if o.ID != self {
			others = append(others, o)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].ID < others[j].ID })

	if r.clear(target, others) {
		return target, Direct
	}

	radius := r.Radius
	radiusStep := r.Radius / 2
	angle := from.AngleTo(target)
	if from == target {
		angle = 0
	}
	for i := 0; i < spiralMaxProbes; i++ {
		angle += spiralAngleStep
		if i%spiralProbesPerRing == 0 {
			radius += radiusStep
		}
		p := target.Polar(angle, radius)
		if r.clear(p, others) {
			return p, Spiral
		}
	}

	// Nearest conflicting occupant; others is id-sorted so ties keep the lowest id.
	nearest := -1
	best := math.Inf(1)
	for i, o := range others {
		d := target.Dist(o.Pos)
		if d < r.Radius && d < best {
			best = d
			nearest = i
		}
	}
	if nearest < 0 {
		return target, Direct
	}
	o := others[nearest].Pos
	a := o.AngleTo(target)
	if target == o {
		a = o.AngleTo(from)
		if from == o {
			a = 0
		}
	}
	return o.Polar(a, r.Radius), Fallback
}

func (r Resolver) clear(p geom.Vec2, others []Occupant) bool {
	for _, o := range others {
		if p.Dist(o.Pos) < r.Radius {
			return false
		}
	}
	return true
}
