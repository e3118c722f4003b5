package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopLogger discards all log output in tests.
type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"), nopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	id, err := s.StartSession("pyroscout-01", "smoke test")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := s.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, "pyroscout-01", sess.RobotID)
	assert.Equal(t, "smoke test", sess.Notes)
	assert.Nil(t, sess.EndedAt)

	require.NoError(t, s.EndSession(id))
	sess, err = s.GetSession(id)
	require.NoError(t, err)
	require.NotNil(t, sess.EndedAt)
	assert.False(t, sess.EndedAt.Before(sess.StartedAt))

	// Ending twice fails: the session is no longer active.
	require.Error(t, s.EndSession(id))
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetSession("no-such-session")
	require.Error(t, err)
}

func TestRecordAndListEvents(t *testing.T) {
	s := openTestStore(t)

	id, err := s.StartSession("pyroscout-01", "")
	require.NoError(t, err)

	require.NoError(t, s.RecordEvent(id, CategoryNav, map[string]interface{}{"direction": "forward"}))
	require.NoError(t, s.RecordEvent(id, CategoryObstacle, map[string]interface{}{"distance": 320}))
	require.NoError(t, s.RecordEvent(id, CategoryNav, map[string]interface{}{"direction": "stop"}))

	all, err := s.ListEvents(id, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, CategoryNav, all[0].Category)
	assert.JSONEq(t, `{"direction":"forward"}`, string(all[0].Detail))

	navOnly, err := s.ListEvents(id, CategoryNav, 0)
	require.NoError(t, err)
	require.Len(t, navOnly, 2)

	count, err := s.EventCount(id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	first, err := s.StartSession("robot-a", "")
	require.NoError(t, err)
	second, err := s.StartSession("robot-b", "")
	require.NoError(t, err)

	sessions, err := s.ListSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
}
