package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// nopLogger discards all log output in tests.
type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewDispatcher(nopLogger{})

	var lidar, sensor []Message
	d.RegisterHandlerFunc(MsgTypeLidarData, func(msg Message) { lidar = append(lidar, msg) })
	d.RegisterHandlerFunc(MsgTypeSensorData, func(msg Message) { sensor = append(sensor, msg) })

	d.Dispatch(Message{Type: MsgTypeLidarData})
	d.Dispatch(Message{Type: MsgTypeLidarData})
	d.Dispatch(Message{Type: MsgTypeSensorData})

	require.Len(t, lidar, 2)
	require.Len(t, sensor, 1)
}

func TestDispatcherCatchAll(t *testing.T) {
	d := NewDispatcher(nopLogger{})

	var seen []string
	d.RegisterAnyFunc(func(msg Message) { seen = append(seen, msg.Type) })
	d.RegisterHandlerFunc(MsgTypeHeartbeat, func(msg Message) { seen = append(seen, "typed") })

	d.Dispatch(Message{Type: MsgTypeHeartbeat})
	d.Dispatch(Message{Type: MsgTypeCameraFrame})

	// Catch-all handlers run before typed ones.
	require.Equal(t, []string{MsgTypeHeartbeat, "typed", MsgTypeCameraFrame}, seen)
}

func TestDispatcherNoHandlers(t *testing.T) {
	d := NewDispatcher(nopLogger{})
	// Must not panic.
	d.Dispatch(Message{Type: "unknown"})
}

func TestMessagePayloadDecoding(t *testing.T) {
	raw := []byte(`{"type":"lidar_data","data":[[0,1000],[90,2000]]}`)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))

	points, err := msg.ScanPoints()
	require.NoError(t, err)
	require.Equal(t, [][2]float64{{0, 1000}, {90, 2000}}, points)

	// Wrong type refuses to decode.
	_, err = msg.SensorReadings()
	require.Error(t, err)

	raw = []byte(`{"type":"sensor_data","data":{"temperature":22.5,"co":3}}`)
	require.NoError(t, json.Unmarshal(raw, &msg))
	readings, err := msg.SensorReadings()
	require.NoError(t, err)
	require.Equal(t, 22.5, readings["temperature"])
}
