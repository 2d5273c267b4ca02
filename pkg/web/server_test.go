package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-freefield/internal/log"
	"github.com/teslashibe/go-freefield/pkg/experiment"
	"github.com/teslashibe/go-freefield/pkg/gaze"
	"github.com/teslashibe/go-freefield/pkg/storage"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(filepath.Join(t.TempDir(), "web.db"), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seed(t *testing.T, st *storage.Store) storage.Session {
	t.Helper()
	ctx := context.Background()
	_, err := st.CreateSubject(ctx, storage.Subject{Name: "sub01"})
	require.NoError(t, err)
	sess, err := st.CreateSession(ctx, storage.Session{Subject: "sub01", Paradigm: experiment.NameUnmasking, Plane: "v"})
	require.NoError(t, err)
	for i := range 3 {
		_, err := st.RecordTrial(ctx, storage.Trial{SessionID: sess.ID, N: i, Level: 70 - 4*float64(i), Response: 1, Solution: 1, Correct: true})
		require.NoError(t, err)
	}
	_, err = st.RecordThreshold(ctx, storage.Threshold{SessionID: sess.ID, MaskerSpeaker: 20, Value: 62.5, Reversals: 2, Trials: 3, Converged: true})
	require.NoError(t, err)
	return sess
}

func get(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func TestServer_SessionEndpoints(t *testing.T) {
	st := newStore(t)
	sess := seed(t, st)
	s := NewServer(st, log.Discard())

	var sessions []storage.Session
	assert.Equal(t, http.StatusOK, get(t, s, "/api/sessions?subject=sub01", &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)

	var one storage.Session
	assert.Equal(t, http.StatusOK, get(t, s, "/api/sessions/"+sess.ID.String(), &one))
	assert.Equal(t, experiment.NameUnmasking, one.Paradigm)

	var trials []storage.Trial
	assert.Equal(t, http.StatusOK, get(t, s, "/api/sessions/"+sess.ID.String()+"/trials", &trials))
	assert.Len(t, trials, 3)

	var ths []storage.Threshold
	assert.Equal(t, http.StatusOK, get(t, s, "/api/sessions/"+sess.ID.String()+"/thresholds", &ths))
	require.Len(t, ths, 1)
	assert.Equal(t, 62.5, ths[0].Value)
}

func TestServer_SessionErrors(t *testing.T) {
	s := NewServer(newStore(t), log.Discard())

	tests := []struct {
		path string
		want int
	}{
		{"/api/sessions/not-a-uuid", http.StatusBadRequest},
		{"/api/sessions/6f1c2b9e-52a4-4d55-9a53-1d4f3b0c8e11", http.StatusNotFound},
		{"/api/sessions/6f1c2b9e-52a4-4d55-9a53-1d4f3b0c8e11/trials", http.StatusNotFound},
		{"/ws/status", http.StatusUpgradeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, s, tt.path, nil))
		})
	}

	noStore := NewServer(nil, log.Discard())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, noStore, "/api/sessions", nil))
}

func TestServer_ObserveFoldsEvents(t *testing.T) {
	s := NewServer(nil, log.Discard())
	e := experiment.Event{Paradigm: experiment.NameLocalization, Time: time.Now()}

	e.Type, e.Message = experiment.EventSessionStarted, "sub01"
	s.Observe(e)
	e.Type, e.Trial = experiment.EventTrial, &storage.Trial{N: 0, Correct: true}
	s.Observe(e)
	e.Type, e.Trial = experiment.EventTrial, &storage.Trial{N: 1}
	s.Observe(e)
	e.Type, e.Gate = experiment.EventGate, &gaze.Event{Attempt: 1, Deviation: 3, HasPose: true, Compliant: true}
	s.Observe(e)
	for range maxWarnings + 5 {
		e.Type, e.Message = experiment.EventWarning, "no pose"
		s.Observe(e)
	}
	e.Type, e.Message = experiment.EventSessionFinished, "completed"
	s.Observe(e)

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "sub01", st.Subject)
	assert.Equal(t, 2, st.Trials)
	assert.Equal(t, 1, st.Correct)
	require.NotNil(t, st.LastTrial)
	assert.Equal(t, 1, st.LastTrial.N)
	require.NotNil(t, st.Gaze)
	assert.True(t, st.Gaze.Compliant)
	assert.Len(t, st.Warnings, maxWarnings)
	assert.Equal(t, "completed", st.Result)

	var got Status
	assert.Equal(t, http.StatusOK, get(t, s, "/api/status", &got))
	assert.Equal(t, 2, got.Trials)
}

func TestServer_StatusWebsocket(t *testing.T) {
	s := NewServer(nil, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws/status"
	var conn *gws.Conn
	require.Eventually(t, func() bool {
		conn, _, err = gws.DefaultDialer.Dial(url, nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	var first Update
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.False(t, first.Status.Running)

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	s.Observe(experiment.Event{Type: experiment.EventSessionStarted, Paradigm: experiment.NameNumerosity, Message: "sub02", Time: time.Now()})

	var next Update
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, experiment.EventSessionStarted, next.Event.Type)
	assert.True(t, next.Status.Running)
	assert.Equal(t, "sub02", next.Status.Subject)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
