package spatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyroscout/controller/pkg/config"
)

// nopLogger discards all log output in tests.
type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}

func testLidarConfig() config.LidarConfig {
	return config.LidarConfig{
		Enabled:     true,
		MaxDistance: 3000,
		MaxPoints:   1000,
	}
}

// ringScan builds a full-circle scan at stepDeg increments, with distance
// overridden for angles matched by the override function.
func ringScan(stepDeg float64, base float64, override func(deg float64) (float64, bool)) [][2]float64 {
	var raw [][2]float64
	for deg := 0.0; deg < 360; deg += stepDeg {
		d := base
		if override != nil {
			if v, ok := override(deg); ok {
				d = v
			}
		}
		raw = append(raw, [2]float64{deg, d})
	}
	return raw
}

func TestUpdateRejectsSparseScan(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	require.False(t, m.Update(nil))
	require.Nil(t, m.Current())

	// Nine valid readings is one short of the acceptance minimum.
	var raw [][2]float64
	for i := 0; i < 9; i++ {
		raw = append(raw, [2]float64{float64(i * 30), 1000})
	}
	require.False(t, m.Update(raw))
	require.Nil(t, m.Current())

	// Invalid readings do not count toward the minimum.
	raw = append(raw,
		[2]float64{300, 0},     // zero distance
		[2]float64{310, -5},    // negative
		[2]float64{320, 99999}, // beyond max range
	)
	require.False(t, m.Update(raw))

	raw = append(raw, [2]float64{330, 1500})
	require.True(t, m.Update(raw))
	require.NotNil(t, m.Current())
	require.Len(t, m.Current().Points, 10)
}

func TestUpdateKeepsPreviousFrameOnRejection(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	require.True(t, m.Update(ringScan(30, 2000, nil)))
	first := m.Current()
	require.NotNil(t, first)

	require.False(t, m.Update([][2]float64{{0, 500}}))
	require.Same(t, first, m.Current())
}

func TestUpdateNormalizesAnglesAndProjects(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	// A near obstacle at 350 degrees, which wraps to about -10 degrees and
	// therefore counts as frontal.
	raw := ringScan(30, 2000, nil)
	raw = append(raw, [2]float64{350, 800})
	require.True(t, m.Update(raw))

	obs, ok := m.NearestObstacle()
	require.True(t, ok)
	assert.InDelta(t, 800, obs.Distance, 1e-9)
	assert.InDelta(t, -10*math.Pi/180, obs.Angle, 1e-9)

	front, ok := m.NearestObstacleWithin(-0.5, 0.5)
	require.True(t, ok, "a 350-degree reading must fall inside the front cone")
	assert.InDelta(t, 800, front.Distance, 1e-9)

	// Projection: a reading at 90 degrees lands on the positive Y axis.
	frame := m.Current()
	for i, a := range frame.Angles {
		if math.Abs(a-math.Pi/2) < 1e-9 {
			assert.InDelta(t, 0, frame.Points[i].X, 1e-6)
			assert.InDelta(t, 2000, frame.Points[i].Y, 1e-6)
			return
		}
	}
	t.Fatal("no reading at 90 degrees found")
}

func TestUpdateDownsamplesLargeScans(t *testing.T) {
	cfg := testLidarConfig()
	cfg.MaxPoints = 50
	m := NewModel(cfg, nopLogger{})
	m.rnd = rand.New(rand.NewSource(1))

	require.True(t, m.Update(ringScan(1, 2000, nil))) // 360 readings
	frame := m.Current()
	require.Len(t, frame.Points, 50)
	require.Len(t, frame.Angles, 50)
	require.Len(t, frame.Distances, 50)
}

func TestSectorProfileAlwaysComplete(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	// No scan yet: every wedge reports max range.
	width := math.Pi / 4
	want := make([]Sector, 8)
	for i := range want {
		want[i] = Sector{
			MidAngle:    float64(i)*width - math.Pi + width/2,
			MinDistance: 3000,
		}
	}
	if diff := cmp.Diff(want, m.SectorProfile(8)); diff != "" {
		t.Errorf("Sector profile mismatch (-want +got):\n%s", diff)
	}

	// A lone close reading at 0 degrees only affects its wedge.
	raw := ringScan(36, 2900, func(deg float64) (float64, bool) {
		if deg == 0 {
			return 500, true
		}
		return 0, false
	})
	require.True(t, m.Update(raw))

	sectors := m.SectorProfile(8)
	require.Len(t, sectors, 8)
	assert.Equal(t, 500.0, sectors[4].MinDistance, "0 rad falls in the wedge starting at 0")
	assert.Equal(t, 2900.0, sectors[0].MinDistance)
}

func TestDirectionalSafety(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	// No scan: neutral.
	assert.Equal(t, 0.5, m.DirectionalSafety(0))

	raw := ringScan(15, 2900, func(deg float64) (float64, bool) {
		if deg == 0 {
			return 1500, true
		}
		return 0, false
	})
	require.True(t, m.Update(raw))

	// Frontal cone is dominated by the 1500 mm reading.
	assert.InDelta(t, 0.5, m.DirectionalSafety(0), 1e-9)
	// The rear is clear at 2900 mm.
	rear := m.DirectionalSafety(math.Pi - 1)
	assert.InDelta(t, 2900.0/3000.0, rear, 1e-9)
}

func TestAngularWindowWrapsAtPi(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	// A close reading at 170 degrees sits just under +pi after
	// normalization.
	raw := ringScan(10, 2900, func(deg float64) (float64, bool) {
		if deg == 170 {
			return 500, true
		}
		return 0, false
	})
	require.True(t, m.Update(raw))

	// A rearward cone centered on -pi must see it across the seam.
	obs, ok := m.NearestObstacleWithin(-math.Pi-0.3, -math.Pi+0.3)
	require.True(t, ok)
	assert.InDelta(t, 500, obs.Distance, 1e-9)

	assert.InDelta(t, 500.0/3000.0, m.DirectionalSafety(-math.Pi), 1e-9)
	assert.False(t, m.PathClear(-math.Pi, 600))
	assert.True(t, m.PathClear(-math.Pi, 400))
}

func TestBestDirectionAvoidsBlockedFront(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	// Front blocked within +-45 degrees, everything else clear.
	raw := ringScan(15, 2900, func(deg float64) (float64, bool) {
		if deg <= 45 || deg >= 315 {
			return 300, true
		}
		return 0, false
	})
	require.True(t, m.Update(raw))

	best := m.BestDirection(0, 16)
	assert.InDelta(t, math.Pi/2, math.Abs(best), 1e-9,
		"the nearest safe heading to straight ahead is a quarter turn")
}

func TestBestDirectionFallsBackToSafest(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	// Everything close: no heading clears the safety threshold, so the
	// globally safest candidate is returned.
	require.True(t, m.Update(ringScan(15, 300, nil)))
	best := m.BestDirection(0, 16)
	assert.InDelta(t, -math.Pi, best, 1e-9)
}

func TestBestDirectionWithoutScan(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})
	assert.Equal(t, 1.23, m.BestDirection(1.23, 16))
}

func TestPathClear(t *testing.T) {
	m := NewModel(testLidarConfig(), nopLogger{})

	// No scan: clear.
	assert.True(t, m.PathClear(0, 500))

	raw := ringScan(15, 2900, func(deg float64) (float64, bool) {
		if deg == 0 {
			return 400, true
		}
		return 0, false
	})
	require.True(t, m.Update(raw))

	assert.False(t, m.PathClear(0, 500))
	assert.True(t, m.PathClear(0, 300))
	// A heading away from the obstacle is clear.
	assert.True(t, m.PathClear(math.Pi/2, 500))
}
