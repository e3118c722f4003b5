package spatial

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pyroscout/controller/pkg/config"
	customlog "github.com/pyroscout/controller/pkg/log"
)

const (
	// minScanPoints is the minimum number of valid readings for a scan to
	// be accepted.
	minScanPoints = 10

	// safetyCone is the half-width of the cone inspected by
	// DirectionalSafety, about 45 degrees.
	safetyCone = 0.78

	// pathCone is the half-width of the cone inspected by PathClear, about
	// 30 degrees.
	pathCone = 0.5

	// safetyThreshold is the score above which a candidate heading counts
	// as safe in BestDirection.
	safetyThreshold = 0.7

	// neutralSafety is reported when no readings cover the queried cone.
	neutralSafety = 0.5
)

// Model converts raw range scans into a queryable obstacle representation.
// The current frame is replaced wholesale under a single update, so readers
// always see a fully formed frame. Update is called from the transport
// dispatch worker only; queries may run concurrently from any goroutine.
type Model struct {
	maxRange   float64
	maxPoints  int
	strategies []interpolator
	rnd        *rand.Rand
	logger     customlog.Logger

	mu    sync.RWMutex
	frame *Frame
	scans uint64
}

// NewModel creates a spatial model for the given lidar settings.
func NewModel(cfg config.LidarConfig, logger customlog.Logger) *Model {
	return &Model{
		maxRange:   cfg.MaxDistance,
		maxPoints:  cfg.MaxPoints,
		strategies: defaultStrategies(),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:     logger,
	}
}

// MaxRange returns the configured maximum sensing range in mm.
func (m *Model) MaxRange() float64 {
	return m.maxRange
}

// Current returns the latest accepted frame, or nil when no scan has been
// accepted yet.
func (m *Model) Current() *Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frame
}

// Update ingests one raw scan of (angleDeg, distanceMm) pairs. It reports
// false and keeps the previous frame when fewer than ten readings pass the
// validity filter (distance > 0 and <= maxRange).
func (m *Model) Update(raw [][2]float64) bool {
	var (
		angles    []float64
		distances []float64
		points    []Point
	)
	for _, r := range raw {
		angleDeg, distance := r[0], r[1]
		if distance <= 0 || distance > m.maxRange {
			continue
		}
		angle := normalizeAngle(angleDeg * math.Pi / 180)
		angles = append(angles, angle)
		distances = append(distances, distance)
		points = append(points, Point{
			X: distance * math.Cos(angle),
			Y: distance * math.Sin(angle),
		})
	}

	if len(points) < minScanPoints {
		m.logger.Warnf("Scan rejected: only %d valid points", len(points))
		return false
	}

	if len(points) > m.maxPoints {
		idx := m.rnd.Perm(len(points))[:m.maxPoints]
		sampledAngles := make([]float64, len(idx))
		sampledDistances := make([]float64, len(idx))
		sampledPoints := make([]Point, len(idx))
		for i, j := range idx {
			sampledAngles[i] = angles[j]
			sampledDistances[i] = distances[j]
			sampledPoints[i] = points[j]
		}
		angles, distances, points = sampledAngles, sampledDistances, sampledPoints
	}

	grid, err := buildGrid(points, m.maxRange, m.strategies)
	if err != nil {
		// Queries work off the raw readings; a missing grid only degrades
		// visualization.
		m.logger.Warnf("Obstacle grid not computed: %v", err)
	}

	frame := &Frame{
		Timestamp: time.Now(),
		MaxRange:  m.maxRange,
		Angles:    angles,
		Distances: distances,
		Points:    points,
		Grid:      grid,
	}

	m.mu.Lock()
	m.scans++
	frame.ScanID = m.scans
	m.frame = frame
	m.mu.Unlock()

	m.logger.Debugf("Scan %d accepted: %d points, grid=%v", frame.ScanID, len(points), grid != nil)
	return true
}

// NearestObstacle returns the minimum-distance reading across the whole
// current frame.
func (m *Model) NearestObstacle() (Obstacle, bool) {
	f := m.Current()
	if f == nil {
		return Obstacle{}, false
	}
	return f.NearestObstacle()
}

// NearestObstacleWithin returns the minimum-distance reading within the
// angular window [minAngle, maxAngle].
func (m *Model) NearestObstacleWithin(minAngle, maxAngle float64) (Obstacle, bool) {
	f := m.Current()
	if f == nil {
		return Obstacle{}, false
	}
	return f.NearestObstacleWithin(minAngle, maxAngle)
}

// SectorProfile partitions the circle into numSectors wedges starting at
// -pi. Wedges without readings report maxRange, treated as clear, including
// when no scan has been accepted yet.
func (m *Model) SectorProfile(numSectors int) []Sector {
	f := m.Current()
	if f == nil {
		f = &Frame{MaxRange: m.maxRange}
	}
	return f.SectorProfile(numSectors)
}

// DirectionalSafety scores how clear the heading at angle is: the minimum
// distance within about 45 degrees either side, normalized by maxRange and
// clamped to [0, 1]. It returns 0.5 (neutral) when no readings cover the
// cone or no scan has been accepted.
func (m *Model) DirectionalSafety(angle float64) float64 {
	f := m.Current()
	if f == nil {
		return neutralSafety
	}
	obs, ok := f.NearestObstacleWithin(angle-safetyCone, angle+safetyCone)
	if !ok {
		return neutralSafety
	}
	return math.Min(1, math.Max(0, obs.Distance/m.maxRange))
}

// BestDirection samples resolution equally spaced headings and returns the
// safe one closest to current, or the globally safest when none clears the
// safety threshold. Without scan data it returns current unchanged.
func (m *Model) BestDirection(current float64, resolution int) float64 {
	if m.Current() == nil {
		return current
	}
	if resolution <= 0 {
		resolution = 16
	}

	angles := make([]float64, resolution)
	safeties := make([]float64, resolution)
	for i := 0; i < resolution; i++ {
		angles[i] = float64(i)*(2*math.Pi/float64(resolution)) - math.Pi
		safeties[i] = m.DirectionalSafety(angles[i])
	}

	best := -1
	for i, s := range safeties {
		if s <= safetyThreshold {
			continue
		}
		if best < 0 || angularDistance(angles[i], current) < angularDistance(angles[best], current) {
			best = i
		}
	}
	if best < 0 {
		best = 0
		for i, s := range safeties {
			if s > safeties[best] {
				best = i
			}
		}
	}
	return angles[best]
}

// PathClear reports whether the heading at direction is free of readings
// closer than thresholdMm within a cone of about 30 degrees either side.
// An empty cone counts as clear.
func (m *Model) PathClear(direction, thresholdMm float64) bool {
	f := m.Current()
	if f == nil {
		return true
	}
	obs, ok := f.NearestObstacleWithin(direction-pathCone, direction+pathCone)
	if !ok {
		return true
	}
	return obs.Distance > thresholdMm
}

// angularDistance is the absolute wrapped difference between two headings.
func angularDistance(a, b float64) float64 {
	return math.Abs(normalizeAngle(a - b))
}
