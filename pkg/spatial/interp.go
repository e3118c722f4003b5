package spatial

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// GridSize is the per-axis resolution of the interpolated obstacle grid.
const GridSize = 100

// Grid is the interpolated obstacle surface over the fixed bounding square
// [-maxRange, maxRange] on both axes. Z[row][col] holds the estimated
// distance-to-origin at (Xs[col], Ys[row]).
type Grid struct {
	Xs     []float64   `json:"xs"`
	Ys     []float64   `json:"ys"`
	Z      [][]float64 `json:"z"`
	Method string      `json:"method"`
}

// interpolator estimates the obstacle surface on a regular grid from
// scattered scan points. Strategies are tried in order; each guards its own
// precondition instead of relying on failure-driven fallback.
type interpolator interface {
	Name() string
	CanInterpolate(pointCount int) bool
	Interpolate(points []Point, values []float64, xs, ys []float64) ([][]float64, error)
}

// defaultStrategies is the ordered fallback chain: cubic RBF, then inverse
// distance weighting, then nearest neighbour.
func defaultStrategies() []interpolator {
	return []interpolator{
		cubicRBF{},
		idw{neighbors: 8, power: 2},
		nearestNeighbor{},
	}
}

func buildGrid(points []Point, maxRange float64, strategies []interpolator) (*Grid, error) {
	xs := linspace(-maxRange, maxRange, GridSize)
	ys := linspace(-maxRange, maxRange, GridSize)

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = math.Hypot(p.X, p.Y)
	}

	for _, s := range strategies {
		if !s.CanInterpolate(len(points)) {
			continue
		}
		z, err := s.Interpolate(points, values, xs, ys)
		if err != nil {
			continue
		}
		return &Grid{Xs: xs, Ys: ys, Z: z, Method: s.Name()}, nil
	}
	return nil, fmt.Errorf("no interpolation strategy applicable for %d points", len(points))
}

func linspace(min, max float64, n int) []float64 {
	out := make([]float64, n)
	step := (max - min) / float64(n-1)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	return out
}

// cubicRBF interpolates with a cubic radial basis function phi(r) = r^3
// augmented by a linear polynomial term. It needs enough points for a
// well-posed system and is capped to keep the dense solve tractable.
type cubicRBF struct{}

func (cubicRBF) Name() string { return "cubic" }

func (cubicRBF) CanInterpolate(pointCount int) bool {
	return pointCount >= 16 && pointCount <= 400
}

func (cubicRBF) Interpolate(points []Point, values []float64, xs, ys []float64) ([][]float64, error) {
	n := len(points)
	dim := n + 3

	// System: [A P; P^T 0] [w; c] = [v; 0] with A_ij = phi(|p_i - p_j|)
	// and P_i = (1, x_i, y_i).
	a := mat.NewDense(dim, dim, nil)
	rhs := mat.NewVecDense(dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r := math.Hypot(points[i].X-points[j].X, points[i].Y-points[j].Y)
			a.Set(i, j, r*r*r)
		}
		a.Set(i, n, 1)
		a.Set(i, n+1, points[i].X)
		a.Set(i, n+2, points[i].Y)
		a.Set(n, i, 1)
		a.Set(n+1, i, points[i].X)
		a.Set(n+2, i, points[i].Y)
		rhs.SetVec(i, values[i])
	}

	var lu mat.LU
	lu.Factorize(a)
	coef := mat.NewVecDense(dim, nil)
	if err := lu.SolveVecTo(coef, false, rhs); err != nil {
		return nil, fmt.Errorf("rbf system is singular: %w", err)
	}

	z := make([][]float64, len(ys))
	for row, y := range ys {
		z[row] = make([]float64, len(xs))
		for col, x := range xs {
			v := coef.AtVec(n) + coef.AtVec(n+1)*x + coef.AtVec(n+2)*y
			for i := 0; i < n; i++ {
				r := math.Hypot(x-points[i].X, y-points[i].Y)
				v += coef.AtVec(i) * r * r * r
			}
			z[row][col] = v
		}
	}
	return z, nil
}

// idw interpolates with inverse distance weighting over the k nearest
// scan points, found through a kd-tree.
type idw struct {
	neighbors int
	power     float64
}

func (idw) Name() string { return "linear" }

func (s idw) CanInterpolate(pointCount int) bool {
	return pointCount >= 3
}

func (s idw) Interpolate(points []Point, values []float64, xs, ys []float64) ([][]float64, error) {
	tree := kdtree.New(newSamples(points, values), false)

	k := s.neighbors
	if k > len(points) {
		k = len(points)
	}

	z := make([][]float64, len(ys))
	for row, y := range ys {
		z[row] = make([]float64, len(xs))
		for col, x := range xs {
			keeper := kdtree.NewNKeeper(k)
			tree.NearestSet(keeper, sample{x: x, y: y})

			var num, den float64
			exact := math.NaN()
			for _, c := range keeper.Heap {
				if c.Comparable == nil {
					continue
				}
				sp := c.Comparable.(sample)
				// kd-tree distances are squared euclidean.
				d := math.Sqrt(c.Dist)
				if d == 0 {
					exact = sp.value
					break
				}
				w := 1 / math.Pow(d, s.power)
				num += w * sp.value
				den += w
			}
			if !math.IsNaN(exact) {
				z[row][col] = exact
			} else {
				z[row][col] = num / den
			}
		}
	}
	return z, nil
}

// nearestNeighbor assigns each grid node the value of its closest scan
// point. It is the last resort and always applicable.
type nearestNeighbor struct{}

func (nearestNeighbor) Name() string { return "nearest" }

func (nearestNeighbor) CanInterpolate(pointCount int) bool {
	return pointCount >= 1
}

func (nearestNeighbor) Interpolate(points []Point, values []float64, xs, ys []float64) ([][]float64, error) {
	tree := kdtree.New(newSamples(points, values), false)

	z := make([][]float64, len(ys))
	for row, y := range ys {
		z[row] = make([]float64, len(xs))
		for col, x := range xs {
			got, _ := tree.Nearest(sample{x: x, y: y})
			z[row][col] = got.(sample).value
		}
	}
	return z, nil
}

// sample is a scan point with its surface value, indexable by the kd-tree.
type sample struct {
	x, y, value float64
}

func (s sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(sample)
	switch d {
	case 0:
		return s.x - q.x
	default:
		return s.y - q.y
	}
}

func (s sample) Dims() int { return 2 }

func (s sample) Distance(c kdtree.Comparable) float64 {
	q := c.(sample)
	dx, dy := s.x-q.x, s.y-q.y
	return dx*dx + dy*dy
}

type samples []sample

func newSamples(points []Point, values []float64) samples {
	out := make(samples, len(points))
	for i, p := range points {
		out[i] = sample{x: p.X, y: p.Y, value: values[i]}
	}
	return out
}

func (p samples) Index(i int) kdtree.Comparable { return p[i] }
func (p samples) Len() int                      { return len(p) }
func (p samples) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p samples) Pivot(d kdtree.Dim) int {
	return samplePlane{samples: p, Dim: d}.Pivot()
}

// samplePlane satisfies kdtree.SortSlicer for pivot selection.
type samplePlane struct {
	kdtree.Dim
	samples
}

func (p samplePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.samples[i].x < p.samples[j].x
	default:
		return p.samples[i].y < p.samples[j].y
	}
}
func (p samplePlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}
func (p samplePlane) Slice(start, end int) kdtree.SortSlicer {
	p.samples = p.samples[start:end]
	return p
}
func (p samplePlane) Swap(i, j int) {
	p.samples[i], p.samples[j] = p.samples[j], p.samples[i]
}
