package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Fatalf(string, ...interface{}) {}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewTelemetryHub(nopLogger{})

	a := hub.subscribe()
	b := hub.subscribe()
	require.Equal(t, 2, hub.Subscribers())

	hub.Broadcast("nav_status", map[string]string{"mode": "manual"})

	for _, ch := range []chan TelemetryEvent{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, "nav_status", ev.Type)
			assert.False(t, ev.Timestamp.IsZero())
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewTelemetryHub(nopLogger{})

	ch := hub.subscribe()
	hub.unsubscribe(ch)
	require.Equal(t, 0, hub.Subscribers())

	hub.Broadcast("obstacle", nil)

	select {
	case <-ch:
		t.Fatal("unsubscribed channel received an event")
	default:
	}
}

func TestHubDropsFramesForLaggingSubscriber(t *testing.T) {
	hub := NewTelemetryHub(nopLogger{})

	ch := hub.subscribe()
	for i := 0; i < cap(ch)+10; i++ {
		hub.Broadcast("lidar_scan", i)
	}

	// The queue holds the oldest frames; the overflow was discarded.
	assert.Len(t, ch, cap(ch))
	first := <-ch
	assert.Equal(t, 0, first.Data)
}
