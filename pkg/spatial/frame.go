package spatial

import (
	"math"
	"time"
)

// Point is a cartesian scan point in mm, x forward, y left.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Obstacle is one sensed range reading.
type Obstacle struct {
	Angle    float64 `json:"angle"`    // radians, [-pi, pi)
	Distance float64 `json:"distance"` // mm
}

// Sector is the minimum sensed distance within one angular wedge.
type Sector struct {
	MidAngle    float64 `json:"mid_angle"`
	MinDistance float64 `json:"min_distance"`
}

// Frame is one accepted scan: filtered polar readings, their cartesian
// projection and the interpolated obstacle grid. Frames are immutable; a new
// scan replaces the whole frame.
type Frame struct {
	ScanID    uint64
	Timestamp time.Time
	MaxRange  float64
	Angles    []float64 // radians, [-pi, pi)
	Distances []float64 // mm
	Points    []Point
	Grid      *Grid
}

// NearestObstacle returns the minimum-distance reading in the frame.
func (f *Frame) NearestObstacle() (Obstacle, bool) {
	if len(f.Distances) == 0 {
		return Obstacle{}, false
	}
	best := 0
	for i, d := range f.Distances {
		if d < f.Distances[best] {
			best = i
		}
	}
	return Obstacle{Angle: f.Angles[best], Distance: f.Distances[best]}, true
}

// NearestObstacleWithin returns the minimum-distance reading whose angle
// falls in [minAngle, maxAngle]. The window wraps at +-pi, so a rearward
// cone sees readings on both sides of the seam.
func (f *Frame) NearestObstacleWithin(minAngle, maxAngle float64) (Obstacle, bool) {
	center := normalizeAngle((minAngle + maxAngle) / 2)
	halfWidth := (maxAngle - minAngle) / 2
	best := -1
	for i, a := range f.Angles {
		if angularDistance(a, center) > halfWidth {
			continue
		}
		if best < 0 || f.Distances[i] < f.Distances[best] {
			best = i
		}
	}
	if best < 0 {
		return Obstacle{}, false
	}
	return Obstacle{Angle: f.Angles[best], Distance: f.Distances[best]}, true
}

// SectorProfile partitions the full circle into numSectors equal wedges
// starting at -pi and reports the minimum distance per wedge. A wedge with
// no readings reports MaxRange, treated as clear.
func (f *Frame) SectorProfile(numSectors int) []Sector {
	width := 2 * math.Pi / float64(numSectors)
	sectors := make([]Sector, numSectors)

	for i := range sectors {
		min := float64(i)*width - math.Pi
		sectors[i] = Sector{MidAngle: min + width/2, MinDistance: f.MaxRange}
	}
	for i, a := range f.Angles {
		idx := int((a + math.Pi) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= numSectors {
			idx = numSectors - 1
		}
		if f.Distances[i] < sectors[idx].MinDistance {
			sectors[idx].MinDistance = f.Distances[i]
		}
	}
	return sectors
}

// normalizeAngle wraps a into [-pi, pi).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
