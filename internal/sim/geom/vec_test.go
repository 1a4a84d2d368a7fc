package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLerp_ClampsAndSnaps(t *testing.T) {
	a := V(0, 0)
	b := V(10, -4)
	require.Equal(t, a, a.Lerp(b, -1))
	require.Equal(t, b, a.Lerp(b, 1))
	require.Equal(t, b, a.Lerp(b, 1.5))
	require.Equal(t, V(5, -2), a.Lerp(b, 0.5))
}

func TestNormalizeAngle(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{-math.Pi / 2, 3 * math.Pi / 2},
		{2 * math.Pi, 0},
		{5 * math.Pi, math.Pi},
	}
	for _, c := range cases {
		require.InDelta(t, c.want, NormalizeAngle(c.in), 1e-9, "in=%v", c.in)
	}
}

func TestAngularDistance_Wraps(t *testing.T) {
	require.InDelta(t, 0.2, AngularDistance(0.1, 2*math.Pi-0.1), 1e-9)
	require.InDelta(t, math.Pi, AngularDistance(0, math.Pi), 1e-9)
}

func TestPolar(t *testing.T) {
	p := V(1, 1).Polar(math.Pi/2, 3)
	require.InDelta(t, 1, p.X, 1e-9)
	require.InDelta(t, 4, p.Y, 1e-9)
	require.InDelta(t, 3, V(1, 1).Dist(p), 1e-9)
}
